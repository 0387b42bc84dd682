package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	slept []time.Duration
}

func (s *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

func newTestDispatcher() (*StepDispatcher, *fakeShots, *recordingSleep) {
	shots := &fakeShots{}
	sleeper := &recordingSleep{}
	d := NewStepDispatcher(shots, discardLogger())
	d.sleep = sleeper.sleep
	return d, shots, sleeper
}

func newTestResult() *RunResult {
	return newRunResult(&Configuration{ID: "cfg", Name: "demo"}, TriggerManual, time.Now())
}

func TestDispatcherStepTypes(t *testing.T) {
	tests := []struct {
		name  string
		step  Step
		calls []string
		log   string
	}{
		{"navigate", Step{Type: StepNavigate, Value: "example.com"}, []string{"navigate:https://example.com"}, "Navigated to: https://example.com"},
		{"click", Step{Type: StepClick, Selector: "#btn"}, []string{"find:#btn", "click:#btn"}, "Clicked element: #btn"},
		{"input", Step{Type: StepInput, Selector: "#q", Value: "golang"}, []string{"find:#q", "type:#q=golang"}, "Input text to: #q"},
		{"scroll", Step{Type: StepScroll, Value: "300"}, []string{"scroll:300"}, "Scrolled to position: 300"},
		{"select", Step{Type: StepSelect, Selector: "#lang", Value: "go"}, []string{"find:#lang", "select:#lang=go"}, "Selected option: go"},
		{"screenshot viewport", Step{Type: StepScreenshot}, []string{"capture:viewport"}, "Screenshot captured: demo/step1_0.png"},
		{"screenshot element", Step{Type: StepScreenshot, CaptureSelector: "#main"}, []string{"find:#main", "capture:#main"}, "Screenshot captured: demo/step1_0.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, sleeper := newTestDispatcher()
			h := newFakeHandle()
			h.options["go"] = true
			result := newTestResult()

			require.NoError(t, d.Run(context.Background(), h, tt.step, result))
			result.finalize(RunStatusSuccess, "", time.Now())

			assert.Equal(t, tt.calls, h.Calls())
			assert.Contains(t, result.Logs, tt.log)
			assert.Empty(t, sleeper.slept)
		})
	}
}

func TestDispatcherWait(t *testing.T) {
	d, _, sleeper := newTestDispatcher()
	result := newTestResult()

	require.NoError(t, d.Run(context.Background(), newFakeHandle(), Step{Type: StepWait, WaitSeconds: 0}, result))
	require.NoError(t, d.Run(context.Background(), newFakeHandle(), Step{Type: StepWait, WaitSeconds: 2}, result))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.slept)
}

func TestDispatcherTrailingWaitAndCapture(t *testing.T) {
	d, shots, sleeper := newTestDispatcher()
	h := newFakeHandle()
	result := newTestResult()
	step := Step{Order: 2, Type: StepClick, Selector: "#btn", WaitSeconds: 3, CaptureScreenshot: true, CaptureSelector: "#panel"}

	require.NoError(t, d.Run(context.Background(), h, step, result))

	assert.Equal(t, []string{"find:#btn", "click:#btn", "find:#panel", "capture:#panel"}, h.Calls())
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeper.slept)
	assert.Equal(t, []string{"demo/step3_0.png"}, result.Screenshots)
	assert.Equal(t, shots.saved, result.Screenshots)
}

func TestDispatcherScreenshotStepWithCaptureFlagTakesTwoShots(t *testing.T) {
	d, _, _ := newTestDispatcher()
	result := newTestResult()

	step := Step{Type: StepScreenshot, CaptureScreenshot: true}
	require.NoError(t, d.Run(context.Background(), newFakeHandle(), step, result))
	assert.Equal(t, []string{"demo/step1_0.png", "demo/step1_1.png"}, result.Screenshots)
}

func TestDispatcherScreenshotFallsBackToViewport(t *testing.T) {
	d, _, _ := newTestDispatcher()
	h := newFakeHandle()
	h.missing["#gone"] = true
	result := newTestResult()

	require.NoError(t, d.Run(context.Background(), h, Step{Type: StepScreenshot, CaptureSelector: "#gone"}, result))
	assert.Equal(t, []string{"find:#gone", "capture:viewport"}, h.Calls())
	assert.Len(t, result.Screenshots, 1)
}

func TestDispatcherFailures(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	tests := []struct {
		name   string
		step   Step
		target error
	}{
		{"element not found", Step{Type: StepClick, Selector: "#gone"}, ErrElementNotFound},
		{"option not found", Step{Type: StepSelect, Selector: "#lang", Value: "cobol"}, ErrOptionNotFound},
		{"navigation", Step{Type: StepNavigate, Value: "nowhere.invalid"}, navErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := newTestDispatcher()
			h := newFakeHandle()
			h.missing["#gone"] = true
			h.failNav = navErr

			err := d.Run(context.Background(), h, tt.step, newTestResult())
			var serr *StepExecutionError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.step.Type, serr.Type)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, strings.HasPrefix(err.Error(), "step 1 ("))
		})
	}
}

func TestDispatcherInvalidStep(t *testing.T) {
	d, _, _ := newTestDispatcher()
	h := newFakeHandle()
	err := d.Run(context.Background(), h, Step{Type: StepClick}, newTestResult())

	var serr *StepExecutionError
	require.ErrorAs(t, err, &serr)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, h.Calls())
}

func TestDispatcherWaitHonoursCancellation(t *testing.T) {
	d := NewStepDispatcher(&fakeShots{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx, newFakeHandle(), Step{Type: StepWait, WaitSeconds: 30}, newTestResult())
	assert.ErrorIs(t, err, context.Canceled)
}
