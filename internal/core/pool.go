package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolStopped = errors.New("execution pool stopped")
	ErrPoolFull    = errors.New("execution pool queue is full")
)

// Task is a unit of work handed to the execution pool.
type Task struct {
	ConfigID string
	Run      func(ctx context.Context)
}

// Pool runs tasks on a fixed set of worker goroutines so that timer dispatch
// never waits on a browser run.
type Pool struct {
	taskQueue chan Task
	workers   int
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	quit     chan struct{}
	quitOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
	active   atomic.Int64
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		taskQueue: make(chan Task, queueSize),
		workers:   workers,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.logger.Info("starting execution pool", "workers", p.workers, "queue_size", cap(p.taskQueue))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a task, blocking while the queue is full until ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// TrySubmit enqueues a task without waiting. It returns ErrPoolFull when no
// queue slot or idle worker is available.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop refuses new tasks and waits for queued and in-flight tasks until ctx is
// done. Then the context handed to running tasks is cancelled and Stop waits
// for the workers to return.
func (p *Pool) Stop(ctx context.Context) error {
	p.quitOnce.Do(func() { close(p.quit) })
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("execution pool stop timed out, cancelling in-flight runs", "active", p.active.Load())
		err = ctx.Err()
	}
	p.cancel()
	<-done
	p.logger.Info("execution pool stopped")
	return err
}

// Active returns the number of tasks currently executing.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// QueueSize returns the number of tasks waiting for a worker.
func (p *Pool) QueueSize() int {
	return len(p.taskQueue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.runTask(id, task)
	}
}

func (p *Pool) runTask(id int, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker", id, "config_id", task.ConfigID, "panic", r)
		}
	}()
	start := time.Now()
	task.Run(p.ctx)
	p.logger.Debug("task finished", "worker", id, "config_id", task.ConfigID, "elapsed", time.Since(start))
}
