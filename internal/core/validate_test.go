package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepAction(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want Action
	}{
		{"navigate adds scheme", Step{Type: StepNavigate, Value: " example.com "}, NavigateAction{URL: "https://example.com"}},
		{"navigate keeps scheme", Step{Type: StepNavigate, Value: "http://localhost:8080"}, NavigateAction{URL: "http://localhost:8080"}},
		{"click", Step{Type: StepClick, Selector: "#btn"}, ClickAction{Selector: "#btn"}},
		{"input blank text", Step{Type: StepInput, Selector: "#q"}, InputAction{Selector: "#q"}},
		{"input keeps spaces", Step{Type: StepInput, Selector: "#q", Value: " go "}, InputAction{Selector: "#q", Text: " go "}},
		{"wait minimum", Step{Type: StepWait}, WaitAction{Seconds: 1}},
		{"wait", Step{Type: StepWait, WaitSeconds: 3}, WaitAction{Seconds: 3}},
		{"viewport screenshot", Step{Type: StepScreenshot}, ScreenshotAction{}},
		{"element screenshot", Step{Type: StepScreenshot, CaptureSelector: "#main"}, ScreenshotAction{Selector: "#main"}},
		{"scroll default", Step{Type: StepScroll}, ScrollAction{}},
		{"scroll", Step{Type: StepScroll, Value: "640"}, ScrollAction{Offset: 640}},
		{"select", Step{Type: StepSelect, Selector: "#country", Value: "de"}, SelectAction{Selector: "#country", Value: "de"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.step.Action()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.step.Type, got.Type())
		})
	}
}

func TestStepActionRejectsMissingFields(t *testing.T) {
	tests := []struct {
		step  Step
		field string
	}{
		{Step{Type: StepNavigate, Value: "  "}, "value"},
		{Step{Type: StepClick}, "selector"},
		{Step{Type: StepInput, Value: "x"}, "selector"},
		{Step{Type: StepSelect, Value: "de"}, "selector"},
		{Step{Type: StepSelect, Selector: "#country"}, "value"},
		{Step{Type: StepScroll, Value: "down"}, "value"},
		{Step{}, "type"},
		{Step{Type: "HOVER"}, "type"},
	}
	for _, tt := range tests {
		_, err := tt.step.Action()
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "%+v", tt.step)
		assert.Equal(t, tt.field, verr.Field)
	}
}

func TestValidateConfigurationRenumbersSteps(t *testing.T) {
	cfg := &Configuration{
		Name: "  Daily check  ",
		Steps: []Step{
			{Order: 7, Type: StepNavigate, Value: "example.com"},
			{Order: 3, Type: StepClick, Selector: "#btn"},
			{Order: 3, Type: StepScreenshot},
		},
	}
	require.NoError(t, ValidateConfiguration(cfg))
	assert.Equal(t, "Daily check", cfg.Name)
	for i, step := range cfg.Steps {
		assert.Equal(t, i, step.Order)
	}
}

func TestValidateConfigurationErrors(t *testing.T) {
	nav := Step{Type: StepNavigate, Value: "example.com"}
	tests := []struct {
		name  string
		cfg   *Configuration
		field string
	}{
		{"nil", nil, ""},
		{"blank name", &Configuration{Name: " ", Steps: []Step{nav}}, "name"},
		{"no steps", &Configuration{Name: "x"}, "steps"},
		{"negative wait", &Configuration{Name: "x", Steps: []Step{nav, {Type: StepWait, WaitSeconds: -1}}}, "steps[1].waitSeconds"},
		{"bad step", &Configuration{Name: "x", Steps: []Step{nav, {Type: StepClick}}}, "steps[1].selector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfiguration(tt.cfg)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateConfigurationRejectsInvalidCron(t *testing.T) {
	cfg := &Configuration{
		Name:     "cron",
		Steps:    []Step{{Type: StepNavigate, Value: "example.com"}},
		Schedule: &Schedule{Type: ScheduleCron, CronExpression: "invalid"},
	}
	err := ValidateConfiguration(cfg)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	var serr *InvalidScheduleError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ScheduleCron, serr.Type)
}

func TestValidateSchedule(t *testing.T) {
	valid := []*Schedule{
		{Type: ScheduleOnce, RunOnceAt: "2020-01-01T00:00:00"},
		{Type: ScheduleInterval, IntervalMinutes: 1},
		{Type: ScheduleCron, CronExpression: "0 0 12 * * ?"},
	}
	for _, s := range valid {
		assert.NoError(t, ValidateSchedule(s), "%+v", s)
	}

	invalid := []*Schedule{
		{Type: ScheduleOnce},
		{Type: ScheduleOnce, RunOnceAt: "soon"},
		{Type: ScheduleInterval},
		{Type: ScheduleCron},
		{Type: ScheduleCron, CronExpression: "0 0 12 * *"},
		{Type: "HOURLY"},
	}
	for _, s := range invalid {
		assert.ErrorIs(t, ValidateSchedule(s), ErrInvalidSchedule, "%+v", s)
	}
}
