package core

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateConfiguration checks a configuration before it is stored or scheduled.
// It normalizes the name and renumbers step order to match list position.
// Schedule problems are reported as *InvalidScheduleError, everything else as
// *ValidationError.
func ValidateConfiguration(cfg *Configuration) error {
	if cfg == nil {
		return invalid("", "configuration is required")
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return invalid("name", "configuration name is required")
	}
	if len(cfg.Steps) == 0 {
		return invalid("steps", "at least one step is required")
	}
	for i := range cfg.Steps {
		cfg.Steps[i].Order = i
		if cfg.Steps[i].WaitSeconds < 0 {
			return invalid(fmt.Sprintf("steps[%d].waitSeconds", i), "must be non-negative")
		}
		if _, err := cfg.Steps[i].Action(); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return invalid(fmt.Sprintf("steps[%d].%s", i, verr.Field), "step %d (%s): %s", i+1, cfg.Steps[i].Type, verr.Message)
			}
			return err
		}
	}
	if cfg.Schedule != nil {
		if err := ValidateSchedule(cfg.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSchedule checks the payload required by the schedule type without
// looking at the clock: a syntactically valid once-date in the past passes here
// and is rejected when a trigger is computed.
func ValidateSchedule(s *Schedule) error {
	s.RunOnceAt = strings.TrimSpace(s.RunOnceAt)
	s.CronExpression = strings.TrimSpace(s.CronExpression)
	switch s.Type {
	case ScheduleOnce:
		if s.RunOnceAt == "" {
			return &InvalidScheduleError{Type: s.Type, Reason: "run once date/time is required"}
		}
		if _, err := ParseLocalDateTime(s.RunOnceAt, nil); err != nil {
			return &InvalidScheduleError{Type: s.Type, Reason: "unparsable run once date/time", Err: err}
		}
	case ScheduleInterval:
		if s.IntervalMinutes <= 0 {
			return &InvalidScheduleError{Type: s.Type, Reason: "interval must be greater than 0"}
		}
	case ScheduleCron:
		if s.CronExpression == "" {
			return &InvalidScheduleError{Type: s.Type, Reason: "cron expression is required"}
		}
		if _, err := ParseCron(s.CronExpression); err != nil {
			return &InvalidScheduleError{Type: s.Type, Reason: "malformed cron expression", Err: err}
		}
	default:
		return &InvalidScheduleError{Type: s.Type, Reason: fmt.Sprintf("unknown schedule type %q", s.Type)}
	}
	return nil
}
