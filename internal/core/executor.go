package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"
)

const resultSaveTimeout = 10 * time.Second

// AutomationExecutor runs a configuration's steps against a fresh driver
// handle and records the outcome.
type AutomationExecutor struct {
	driver     Driver
	sink       ResultSink
	dispatcher *StepDispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewAutomationExecutor creates a new executor.
func NewAutomationExecutor(driver Driver, sink ResultSink, shots ScreenshotStore, logger *slog.Logger) *AutomationExecutor {
	return &AutomationExecutor{
		driver:     driver,
		sink:       sink,
		dispatcher: NewStepDispatcher(shots, logger),
		logger:     logger,
		now:        time.Now,
	}
}

// Execute runs every step in order and hands the finished result to the sink.
// Step and driver failures are captured in the result, never returned.
func (e *AutomationExecutor) Execute(ctx context.Context, cfg *Configuration, trigger RunTrigger) *RunResult {
	result := newRunResult(cfg, trigger, e.now())
	logger := e.logger.With("config_id", cfg.ID, "run_id", result.ID)
	logger.Info("run started", "config", cfg.Name, "trigger", trigger, "steps", len(cfg.Steps))

	status, errMsg := e.run(ctx, cfg, result, logger)
	result.finalize(status, errMsg, e.now())

	if status == RunStatusSuccess {
		logger.Info("run finished", "status", status, "elapsed", result.Duration())
	} else {
		logger.Warn("run finished", "status", status, "elapsed", result.Duration(), "err", errMsg)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resultSaveTimeout)
	defer cancel()
	if err := e.sink.SaveResult(saveCtx, result); err != nil {
		logger.Error("save run result", "err", err)
	}
	return result
}

func (e *AutomationExecutor) run(ctx context.Context, cfg *Configuration, result *RunResult, logger *slog.Logger) (status RunStatus, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			result.Logf("Error: panic: %v", r)
			status, errMsg = RunStatusFailed, fmt.Sprintf("panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Logf("Run cancelled before start")
		return RunStatusCancelled, "run cancelled before start"
	}

	handle, err := e.driver.Open(ctx)
	if err != nil {
		aerr := &ResourceAcquisitionError{Err: err}
		result.Logf("Error: %v", aerr)
		return RunStatusFailed, aerr.Error()
	}
	result.Logf("Driver initialized")
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("close driver", "err", err)
		}
	}()

	for _, step := range orderedSteps(cfg.Steps) {
		result.Logf("Executing step %d: %s", step.Order+1, step.Type)
		if err := e.dispatcher.Run(ctx, handle, step, result); err != nil {
			if ctx.Err() != nil {
				result.Logf("Run cancelled during step %d", step.Order+1)
				return RunStatusCancelled, "run cancelled: " + err.Error()
			}
			result.Logf("Error: %v", err)
			return RunStatusFailed, err.Error()
		}
		result.Logf("Step %d (%s) completed", step.Order+1, step.Type)
	}
	result.Logf("Automation completed successfully")
	return RunStatusSuccess, ""
}

func orderedSteps(steps []Step) []Step {
	ordered := append([]Step(nil), steps...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}
