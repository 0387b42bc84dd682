package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultPreviewCount = 5

// ScheduleStatus reports whether a configuration currently holds a timer.
type ScheduleStatus struct {
	ConfigID    string     `json:"configId"`
	ConfigName  string     `json:"configName"`
	IsActive    bool       `json:"isActive"`
	IsScheduled bool       `json:"isScheduled"`
	IsRunning   bool       `json:"isRunning"`
	NextFireAt  *time.Time `json:"nextFireAt,omitempty"`
	Schedule    *Schedule  `json:"schedule,omitempty"`
}

// SchedulePreview is the outcome of evaluating a schedule without storing it.
type SchedulePreview struct {
	Valid bool        `json:"valid"`
	Kind  string      `json:"kind,omitempty"`
	Error string      `json:"error,omitempty"`
	Next  []time.Time `json:"next,omitempty"`
}

// Orchestrator is the entry point for API and MCP callers. Every mutation of
// a configuration is serialized per id so the store and the registry never
// disagree about which timer a configuration holds.
type Orchestrator struct {
	store    ConfigStore
	registry *Registry
	logger   *slog.Logger
	locks    keyedMutex
}

// NewOrchestrator wires the store and registry together.
func NewOrchestrator(store ConfigStore, registry *Registry, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// List returns every configuration.
func (o *Orchestrator) List(ctx context.Context) ([]*Configuration, error) {
	return o.store.ListConfigs(ctx)
}

// Get returns one configuration.
func (o *Orchestrator) Get(ctx context.Context, id string) (*Configuration, error) {
	return o.store.GetConfig(ctx, id)
}

// Create validates, stores and schedules a new configuration. When the
// configuration is stored but its schedule cannot produce a timer, the stored
// configuration is returned together with an *InvalidScheduleError.
func (o *Orchestrator) Create(ctx context.Context, cfg *Configuration) (*Configuration, error) {
	if err := ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	now := o.registry.now()
	cfg.ID = NewID()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	unlock := o.locks.Lock(cfg.ID)
	defer unlock()
	if err := o.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save configuration: %w", err)
	}
	o.logger.Info("configuration created", "config_id", cfg.ID, "config", cfg.Name, "active", cfg.Active)
	return cfg, o.registry.Schedule(cfg)
}

// Update replaces a configuration's fields, steps and schedule and re-derives
// its timer. Same error contract as Create.
func (o *Orchestrator) Update(ctx context.Context, id string, cfg *Configuration) (*Configuration, error) {
	if err := ValidateConfiguration(cfg); err != nil {
		return nil, err
	}
	unlock := o.locks.Lock(id)
	defer unlock()

	existing, err := o.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg.ID = id
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = o.registry.now()
	if err := o.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save configuration: %w", err)
	}
	o.logger.Info("configuration updated", "config_id", id, "config", cfg.Name, "active", cfg.Active)
	return cfg, o.registry.Reschedule(cfg)
}

// Delete cancels the configuration's timer and removes it. A configuration
// with run results is only removed when force is set, in which case its
// results go too; the number of removed results is returned.
func (o *Orchestrator) Delete(ctx context.Context, id string, force bool) (int, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	if _, err := o.store.GetConfig(ctx, id); err != nil {
		return 0, err
	}
	count, err := o.store.CountResults(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("count run results: %w", err)
	}
	if count > 0 && !force {
		return 0, &HasResultsError{Count: count}
	}

	o.registry.Unschedule(id)
	removed := 0
	if count > 0 {
		if removed, err = o.store.DeleteResults(ctx, id); err != nil {
			return 0, fmt.Errorf("delete run results: %w", err)
		}
	}
	if err := o.store.DeleteConfig(ctx, id); err != nil {
		return removed, fmt.Errorf("delete configuration: %w", err)
	}
	o.logger.Info("configuration deleted", "config_id", id, "results_removed", removed)
	return removed, nil
}

// Toggle flips the active flag and schedules or unschedules accordingly.
// Same error contract as Create.
func (o *Orchestrator) Toggle(ctx context.Context, id string) (*Configuration, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	cfg, err := o.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg.Active = !cfg.Active
	cfg.UpdatedAt = o.registry.now()
	if err := o.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save configuration: %w", err)
	}
	o.logger.Info("configuration toggled", "config_id", id, "active", cfg.Active)
	if !cfg.Active {
		o.registry.Unschedule(id)
		return cfg, nil
	}
	return cfg, o.registry.Schedule(cfg)
}

// Status reports the configuration's scheduling state.
func (o *Orchestrator) Status(ctx context.Context, id string) (*ScheduleStatus, error) {
	cfg, err := o.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	status := &ScheduleStatus{
		ConfigID:    cfg.ID,
		ConfigName:  cfg.Name,
		IsActive:    cfg.Active,
		IsScheduled: o.registry.IsScheduled(id),
		IsRunning:   o.registry.IsRunning(id),
		Schedule:    cfg.Schedule,
	}
	if next, ok := o.registry.NextFire(id); ok {
		status.NextFireAt = &next
	}
	return status, nil
}

// RunNow executes the configuration immediately and waits for the result.
func (o *Orchestrator) RunNow(ctx context.Context, id string) (*RunResult, error) {
	cfg, err := o.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	o.logger.Info("manual run requested", "config_id", id, "config", cfg.Name)
	return o.registry.RunNow(ctx, cfg)
}

// Preview evaluates a schedule against the current time and lists up to n
// upcoming fire instants.
func (o *Orchestrator) Preview(s *Schedule, n int) *SchedulePreview {
	if n <= 0 {
		n = defaultPreviewCount
	}
	if s == nil {
		return &SchedulePreview{Error: "schedule is required"}
	}
	sched := *s
	if err := ValidateSchedule(&sched); err != nil {
		return &SchedulePreview{Error: previewError(err)}
	}
	trigger, err := ComputeTrigger(&sched, o.registry.now().In(o.registry.location))
	if err != nil {
		return &SchedulePreview{Error: previewError(err)}
	}
	return &SchedulePreview{Valid: true, Kind: trigger.Kind.String(), Next: trigger.Upcoming(n)}
}

func previewError(err error) string {
	var serr *InvalidScheduleError
	if errors.As(err, &serr) {
		return serr.Reason
	}
	return err.Error()
}
