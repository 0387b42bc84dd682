package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// timerHandle is the live registration of one configuration's trigger.
type timerHandle struct {
	configID  string
	trigger   *Trigger
	entryID   cron.EntryID
	cancelled atomic.Bool
}

// Registry keeps at most one live timer per configuration and hands fired
// timers to the execution pool.
type Registry struct {
	store    ConfigStore
	runner   Runner
	pool     *Pool
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	handles map[string]*timerHandle

	running sync.Map // configID -> chan struct{}, closed on release
	fired   atomic.Int64
	skipped atomic.Int64

	ctx context.Context
}

// NewRegistry constructs a registry with the given dependencies.
func NewRegistry(store ConfigStore, runner Runner, pool *Pool, logger *slog.Logger, location *time.Location) *Registry {
	if location == nil {
		location = time.Local
	}
	return &Registry{
		store:    store,
		runner:   runner,
		pool:     pool,
		logger:   logger,
		location: location,
		now:      time.Now,
		cron:     cron.New(cron.WithLocation(location)),
		handles:  make(map[string]*timerHandle),
	}
}

// Start begins the timer loop and the execution pool. ctx is used for
// background work such as loading configurations when a timer fires.
func (r *Registry) Start(ctx context.Context) {
	r.ctx = ctx
	r.pool.Start()
	r.cron.Start()
}

// Schedule registers a timer for cfg, replacing any existing one. Inactive
// or unscheduled configurations are ignored. An invalid schedule leaves the
// configuration without a timer and returns *InvalidScheduleError.
func (r *Registry) Schedule(cfg *Configuration) error {
	if !cfg.IsSchedulable() {
		return nil
	}
	r.mu.Lock()
	r.cancelLocked(cfg.ID)
	trigger, err := ComputeTrigger(cfg.Schedule, r.now().In(r.location))
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("schedule automation", "config_id", cfg.ID, "config", cfg.Name, "err", err)
		return err
	}
	h := &timerHandle{configID: cfg.ID, trigger: trigger}
	h.entryID = r.cron.Schedule(timerSchedule{trigger: trigger}, cron.FuncJob(func() { r.onFire(h) }))
	r.handles[cfg.ID] = h
	r.mu.Unlock()

	r.logger.Info("scheduled automation", "config_id", cfg.ID, "config", cfg.Name, "kind", trigger.Kind.String(), "next", r.nextFire(h))
	if trigger.FiresImmediately() {
		r.dispatch(h)
	}
	return nil
}

// Unschedule cancels the configuration's timer if it has one.
func (r *Registry) Unschedule(configID string) {
	r.mu.Lock()
	removed := r.cancelLocked(configID)
	r.mu.Unlock()
	if removed {
		r.logger.Info("unscheduled automation", "config_id", configID)
	}
}

// Reschedule re-derives the timer from the configuration's current state.
func (r *Registry) Reschedule(cfg *Configuration) error {
	r.Unschedule(cfg.ID)
	return r.Schedule(cfg)
}

// IsScheduled reports whether the configuration holds a live timer.
func (r *Registry) IsScheduled(configID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[configID]
	return ok && !h.cancelled.Load()
}

// NextFire returns the next fire instant of the configuration's timer.
func (r *Registry) NextFire(configID string) (time.Time, bool) {
	r.mu.Lock()
	h, ok := r.handles[configID]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := r.nextFire(h)
	return next, !next.IsZero()
}

// Count returns the number of live timers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// FiredCount returns how many timer fires have been observed.
func (r *Registry) FiredCount() int64 { return r.fired.Load() }

// SkippedCount returns how many fires were dropped because the previous run
// of the same configuration was still executing or the pool queue was full.
func (r *Registry) SkippedCount() int64 { return r.skipped.Load() }

// IsRunning reports whether a run of the configuration is queued or executing.
func (r *Registry) IsRunning(configID string) bool {
	_, ok := r.running.Load(configID)
	return ok
}

// ScheduleAllActive loads all active configurations and schedules each.
// Individual failures are logged and skipped; the count of scheduled
// configurations is returned.
func (r *Registry) ScheduleAllActive(ctx context.Context) (int, error) {
	configs, err := r.store.ListActiveConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active configurations: %w", err)
	}
	scheduled := 0
	for _, cfg := range configs {
		if !cfg.IsSchedulable() {
			continue
		}
		if err := r.Schedule(cfg); err != nil {
			continue
		}
		scheduled++
	}
	r.logger.Info("active automations scheduled", "scheduled", scheduled, "active", len(configs))
	return scheduled, nil
}

// RunNow executes the configuration on the calling goroutine. It fails with
// ErrAlreadyRunning while another run of the same configuration is in progress.
func (r *Registry) RunNow(ctx context.Context, cfg *Configuration) (*RunResult, error) {
	if !r.claim(cfg.ID) {
		return nil, ErrAlreadyRunning
	}
	defer r.unclaim(cfg.ID)
	return r.runner.Execute(ctx, cfg.Clone(), TriggerManual), nil
}

// Shutdown cancels every timer, then gives in-flight runs until ctx is done
// before their contexts are cancelled.
func (r *Registry) Shutdown(ctx context.Context) error {
	stopCtx := r.cron.Stop()

	r.mu.Lock()
	for id := range r.handles {
		r.cancelLocked(id)
	}
	r.mu.Unlock()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		r.logger.Warn("timer loop stop timed out")
	}
	return r.pool.Stop(ctx)
}

func (r *Registry) cancelLocked(configID string) bool {
	h, ok := r.handles[configID]
	if !ok {
		return false
	}
	h.cancelled.Store(true)
	r.cron.Remove(h.entryID)
	delete(r.handles, configID)
	return true
}

// release drops a handle that will not fire again, unless it was already replaced.
func (r *Registry) release(h *timerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[h.configID]; ok && current == h {
		r.cancelLocked(h.configID)
	}
}

func (r *Registry) nextFire(h *timerHandle) time.Time {
	return timerSchedule{trigger: h.trigger}.Next(r.now().In(r.location))
}

func (r *Registry) onFire(h *timerHandle) {
	if h.cancelled.Load() {
		return
	}
	r.fired.Add(1)
	if !h.trigger.Repeats() {
		r.release(h)
	}
	r.dispatch(h)
}

// dispatch claims the configuration's run slot and enqueues the run without
// waiting. A repeating fire that finds the previous run still going, or the
// queue full, is dropped. A one-shot fire waits for both instead.
func (r *Registry) dispatch(h *timerHandle) {
	id := h.configID
	if !h.trigger.Repeats() {
		go r.dispatchOneShot(id)
		return
	}
	if !r.claim(id) {
		r.skipped.Add(1)
		r.logger.Info("skipping fire because configuration is still running", "config_id", id)
		return
	}
	err := r.pool.TrySubmit(r.scheduledTask(id))
	if err == nil {
		return
	}
	r.unclaim(id)
	if errors.Is(err, ErrPoolFull) {
		r.skipped.Add(1)
		r.logger.Warn("skipping fire because execution queue is full", "config_id", id)
		return
	}
	r.logger.Error("enqueue scheduled run", "config_id", id, "err", err)
}

func (r *Registry) dispatchOneShot(id string) {
	ctx := r.ctxOrBackground()
	if err := r.awaitClaim(ctx, id); err != nil {
		r.logger.Error("one-shot run abandoned", "config_id", id, "err", err)
		return
	}
	if err := r.pool.Submit(ctx, r.scheduledTask(id)); err != nil {
		r.unclaim(id)
		r.logger.Error("enqueue scheduled run", "config_id", id, "err", err)
	}
}

func (r *Registry) scheduledTask(id string) Task {
	return Task{
		ConfigID: id,
		Run: func(ctx context.Context) {
			defer r.unclaim(id)
			r.runScheduled(ctx, id)
		},
	}
}

func (r *Registry) runScheduled(ctx context.Context, configID string) {
	cfg, err := r.store.GetConfig(ctx, configID)
	if err != nil {
		r.logger.Error("fetch configuration for scheduled run", "config_id", configID, "err", err)
		return
	}
	if !cfg.Active {
		r.logger.Debug("skipping scheduled run of inactive configuration", "config_id", configID)
		return
	}
	r.runner.Execute(ctx, cfg, TriggerScheduled)
}

func (r *Registry) claim(configID string) bool {
	_, loaded := r.running.LoadOrStore(configID, make(chan struct{}))
	return !loaded
}

// awaitClaim blocks until the run slot is free and claims it.
func (r *Registry) awaitClaim(ctx context.Context, configID string) error {
	for {
		v, loaded := r.running.LoadOrStore(configID, make(chan struct{}))
		if !loaded {
			return nil
		}
		select {
		case <-v.(chan struct{}):
		case <-r.pool.quit:
			return ErrPoolStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Registry) unclaim(configID string) {
	if v, ok := r.running.LoadAndDelete(configID); ok {
		close(v.(chan struct{}))
	}
}

func (r *Registry) ctxOrBackground() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}
