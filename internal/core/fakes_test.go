package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeElement struct{ sel string }

func (e fakeElement) Selector() string { return e.sel }

// fakeHandle records every call as "op:arg".
type fakeHandle struct {
	mu      sync.Mutex
	calls   []string
	missing map[string]bool
	options map[string]bool
	failNav error
	image   []byte
	closed  atomic.Int32
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{missing: map[string]bool{}, options: map[string]bool{}, image: []byte("png")}
}

func (h *fakeHandle) record(op, arg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, op+":"+arg)
}

func (h *fakeHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHandle) Navigate(_ context.Context, url string) error {
	h.record("navigate", url)
	return h.failNav
}

func (h *fakeHandle) Find(_ context.Context, selector string) (Element, error) {
	h.record("find", selector)
	if h.missing[selector] {
		return nil, ErrElementNotFound
	}
	return fakeElement{sel: selector}, nil
}

func (h *fakeHandle) Click(_ context.Context, el Element) error {
	h.record("click", el.Selector())
	return nil
}

func (h *fakeHandle) Type(_ context.Context, el Element, text string) error {
	h.record("type", el.Selector()+"="+text)
	return nil
}

func (h *fakeHandle) SelectOption(_ context.Context, el Element, value string) error {
	h.record("select", el.Selector()+"="+value)
	if !h.options[value] {
		return ErrOptionNotFound
	}
	return nil
}

func (h *fakeHandle) ScrollTo(_ context.Context, offset int) error {
	h.record("scroll", fmt.Sprint(offset))
	return nil
}

func (h *fakeHandle) CaptureImage(_ context.Context, el Element) ([]byte, error) {
	if el == nil {
		h.record("capture", "viewport")
	} else {
		h.record("capture", el.Selector())
	}
	return h.image, nil
}

func (h *fakeHandle) ExecuteScript(_ context.Context, script string, _ any) error {
	h.record("script", script)
	return nil
}

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

type fakeDriver struct {
	handle  *fakeHandle
	openErr error
	opened  atomic.Int32
}

func (d *fakeDriver) Open(context.Context) (Handle, error) {
	d.opened.Add(1)
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.handle, nil
}

type fakeShots struct {
	mu    sync.Mutex
	saved []string
}

func (s *fakeShots) SaveScreenshot(configName string, stepNumber int, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := fmt.Sprintf("%s/step%d_%d.png", configName, stepNumber, len(s.saved))
	s.saved = append(s.saved, path)
	return path, nil
}

// memStore is an in-memory ConfigStore and ResultSink.
type memStore struct {
	mu      sync.Mutex
	configs map[string]*Configuration
	results []*RunResult
}

func newMemStore() *memStore {
	return &memStore{configs: map[string]*Configuration{}}
}

func (s *memStore) GetConfig(_ context.Context, id string) (*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrConfigNotFound
	}
	return cfg.Clone(), nil
}

func (s *memStore) ListConfigs(context.Context) ([]*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Configuration, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ListActiveConfigs(ctx context.Context) ([]*Configuration, error) {
	all, _ := s.ListConfigs(ctx)
	active := all[:0]
	for _, cfg := range all {
		if cfg.Active {
			active = append(active, cfg)
		}
	}
	return active, nil
}

func (s *memStore) SaveConfig(_ context.Context, cfg *Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg.Clone()
	return nil
}

func (s *memStore) DeleteConfig(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return ErrConfigNotFound
	}
	delete(s.configs, id)
	return nil
}

func (s *memStore) CountResults(_ context.Context, configID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.results {
		if r.ConfigID == configID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteResults(_ context.Context, configID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.results[:0]
	removed := 0
	for _, r := range s.results {
		if r.ConfigID == configID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.results = kept
	return removed, nil
}

func (s *memStore) SaveResult(_ context.Context, result *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *memStore) Results() []*RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*RunResult(nil), s.results...)
}

// fakeRunner counts executions and optionally blocks each one until release
// is closed or receives.
type fakeRunner struct {
	started  chan string
	release  chan struct{}
	calls    atomic.Int32
	finished atomic.Int32

	mu       sync.Mutex
	triggers []RunTrigger
}

func newFakeRunner(block bool) *fakeRunner {
	r := &fakeRunner{started: make(chan string, 16)}
	if block {
		r.release = make(chan struct{})
	}
	return r
}

func (r *fakeRunner) Execute(ctx context.Context, cfg *Configuration, trigger RunTrigger) *RunResult {
	r.calls.Add(1)
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()
	r.started <- cfg.ID
	result := newRunResult(cfg, trigger, time.Now())
	status := RunStatusSuccess
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			status = RunStatusCancelled
		}
	}
	result.finalize(status, "", time.Now())
	r.finished.Add(1)
	return result
}

func (r *fakeRunner) Triggers() []RunTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunTrigger(nil), r.triggers...)
}

func noSleep(context.Context, time.Duration) error { return nil }

func sampleConfig(name string, steps ...Step) *Configuration {
	if len(steps) == 0 {
		steps = []Step{{Type: StepNavigate, Value: "example.com"}}
	}
	return &Configuration{ID: NewID(), Name: name, Steps: steps, Active: true}
}
