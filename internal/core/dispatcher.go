package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SleepFunc suspends the calling run for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepDispatcher executes one step against a driver handle.
type StepDispatcher struct {
	shots  ScreenshotStore
	sleep  SleepFunc
	logger *slog.Logger
}

// NewStepDispatcher creates a dispatcher writing screenshots to shots.
func NewStepDispatcher(shots ScreenshotStore, logger *slog.Logger) *StepDispatcher {
	return &StepDispatcher{shots: shots, sleep: sleepContext, logger: logger}
}

// Run executes step on h, recording log lines and screenshot paths on result.
// Any failure is returned as *StepExecutionError.
func (d *StepDispatcher) Run(ctx context.Context, h Handle, step Step, result *RunResult) error {
	action, err := step.Action()
	if err != nil {
		return &StepExecutionError{Order: step.Order, Type: step.Type, Err: err}
	}
	if err := d.perform(ctx, h, step, action, result); err != nil {
		return &StepExecutionError{Order: step.Order, Type: step.Type, Err: err}
	}
	if step.CaptureScreenshot {
		path, err := d.capture(ctx, h, step.CaptureSelector, result.ConfigName, step.Order+1)
		if err != nil {
			return &StepExecutionError{Order: step.Order, Type: step.Type, Err: fmt.Errorf("step screenshot: %w", err)}
		}
		result.AddScreenshot(path)
		result.Logf("Step screenshot captured: %s", path)
	}
	if step.WaitSeconds > 0 && step.Type != StepWait {
		if err := d.sleep(ctx, time.Duration(step.WaitSeconds)*time.Second); err != nil {
			return &StepExecutionError{Order: step.Order, Type: step.Type, Err: err}
		}
	}
	return nil
}

func (d *StepDispatcher) perform(ctx context.Context, h Handle, step Step, action Action, result *RunResult) error {
	switch a := action.(type) {
	case NavigateAction:
		if err := h.Navigate(ctx, a.URL); err != nil {
			return err
		}
		result.Logf("Navigated to: %s", a.URL)
	case ClickAction:
		el, err := h.Find(ctx, a.Selector)
		if err != nil {
			return err
		}
		if err := h.Click(ctx, el); err != nil {
			return err
		}
		result.Logf("Clicked element: %s", a.Selector)
	case InputAction:
		el, err := h.Find(ctx, a.Selector)
		if err != nil {
			return err
		}
		if err := h.Type(ctx, el, a.Text); err != nil {
			return err
		}
		result.Logf("Input text to: %s", a.Selector)
	case WaitAction:
		if err := d.sleep(ctx, time.Duration(a.Seconds)*time.Second); err != nil {
			return err
		}
		result.Logf("Waited for: %d seconds", a.Seconds)
	case ScreenshotAction:
		path, err := d.capture(ctx, h, a.Selector, result.ConfigName, step.Order+1)
		if err != nil {
			return err
		}
		result.AddScreenshot(path)
		result.Logf("Screenshot captured: %s", path)
	case ScrollAction:
		if err := h.ScrollTo(ctx, a.Offset); err != nil {
			return err
		}
		result.Logf("Scrolled to position: %d", a.Offset)
	case SelectAction:
		el, err := h.Find(ctx, a.Selector)
		if err != nil {
			return err
		}
		if err := h.SelectOption(ctx, el, a.Value); err != nil {
			return err
		}
		result.Logf("Selected option: %s", a.Value)
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
	return nil
}

// capture screenshots the element matching selector, falling back to the
// viewport when selector is empty or matches nothing.
func (d *StepDispatcher) capture(ctx context.Context, h Handle, selector, configName string, stepNumber int) (string, error) {
	var el Element
	if selector != "" {
		found, err := h.Find(ctx, selector)
		switch {
		case err == nil:
			el = found
		case errors.Is(err, ErrElementNotFound):
			d.logger.Warn("screenshot element not found, capturing viewport", "selector", selector)
		default:
			return "", err
		}
	}
	png, err := h.CaptureImage(ctx, el)
	if err != nil {
		return "", fmt.Errorf("capture image: %w", err)
	}
	path, err := d.shots.SaveScreenshot(configName, stepNumber, png)
	if err != nil {
		return "", fmt.Errorf("save screenshot: %w", err)
	}
	return path, nil
}
