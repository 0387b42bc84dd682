package core

import (
	"strings"
	"sync"
	"time"
)

// StepType identifies the browser action a step performs.
type StepType string

const (
	StepNavigate   StepType = "NAVIGATE"
	StepClick      StepType = "CLICK"
	StepInput      StepType = "INPUT"
	StepWait       StepType = "WAIT"
	StepScreenshot StepType = "SCREENSHOT"
	StepScroll     StepType = "SCROLL"
	StepSelect     StepType = "SELECT"
)

// ScheduleType selects which schedule payload field is meaningful.
type ScheduleType string

const (
	ScheduleOnce     ScheduleType = "ONCE"
	ScheduleInterval ScheduleType = "INTERVAL"
	ScheduleCron     ScheduleType = "CRON"
)

// RunStatus describes the state of an individual run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSuccess   RunStatus = "SUCCESS"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RunTrigger records what started a run.
type RunTrigger string

const (
	TriggerManual    RunTrigger = "manual"
	TriggerScheduled RunTrigger = "scheduled"
)

// Step is one browser action within a configuration, in its persisted form.
// Action decodes it into the typed variant the dispatcher executes.
type Step struct {
	Order             int      `json:"order"`
	Type              StepType `json:"type"`
	Selector          string   `json:"selector,omitempty"`
	Value             string   `json:"value,omitempty"`
	WaitSeconds       int      `json:"waitSeconds"`
	CaptureScreenshot bool     `json:"captureScreenshot"`
	CaptureSelector   string   `json:"captureSelector,omitempty"`
}

// Schedule is the optional rule that makes a configuration run automatically.
type Schedule struct {
	Type            ScheduleType `json:"type"`
	RunOnceAt       string       `json:"runOnceAt,omitempty"`
	IntervalMinutes int          `json:"intervalMinutes,omitempty"`
	CronExpression  string       `json:"cronExpression,omitempty"`
}

// Configuration is a named, ordered automation workflow plus optional schedule.
type Configuration struct {
	ID          string
	Name        string
	Description string
	Steps       []Step
	Schedule    *Schedule
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy so a run can hold steps that later edits cannot touch.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Steps = append([]Step(nil), c.Steps...)
	if c.Schedule != nil {
		sched := *c.Schedule
		cp.Schedule = &sched
	}
	return &cp
}

// IsSchedulable reports whether the configuration should hold a timer.
func (c *Configuration) IsSchedulable() bool {
	return c != nil && c.Active && c.Schedule != nil
}

// RunResult captures a single execution attempt of a configuration.
type RunResult struct {
	ID                string
	ConfigID          string
	ConfigName        string
	ConfigDescription string
	Trigger           RunTrigger
	Status            RunStatus
	StartTime         time.Time
	EndTime           *time.Time
	Logs              string
	Screenshots       []string
	Error             *string

	mu  sync.Mutex
	log strings.Builder
}

func newRunResult(cfg *Configuration, trigger RunTrigger, now time.Time) *RunResult {
	return &RunResult{
		ID:                NewID(),
		ConfigID:          cfg.ID,
		ConfigName:        cfg.Name,
		ConfigDescription: cfg.Description,
		Trigger:           trigger,
		Status:            RunStatusRunning,
		StartTime:         now,
		Screenshots:       []string{},
	}
}

// Logf appends one line to the run log.
func (r *RunResult) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.WriteString(sprintf(format, args...))
	r.log.WriteByte('\n')
}

// AddScreenshot appends a captured screenshot path.
func (r *RunResult) AddScreenshot(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Screenshots = append(r.Screenshots, path)
}

// finalize sets the terminal status and end time. Only the first call has effect.
func (r *RunResult) finalize(status RunStatus, errMsg string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Status != RunStatusRunning {
		return
	}
	r.Status = status
	end := now
	r.EndTime = &end
	if errMsg != "" {
		r.Error = &errMsg
	}
	r.Logs = r.log.String()
}

// Finished reports whether the run reached a terminal status.
func (r *RunResult) Finished() bool {
	return r.Status != RunStatusRunning
}

// Duration returns the run's wall time, or zero while it is running.
func (r *RunResult) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
