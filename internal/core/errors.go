package core

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrResultNotFound  = errors.New("run result not found")
	ErrAlreadyRunning  = errors.New("configuration is already running")
	ErrHasResults      = errors.New("configuration has run results")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrElementNotFound = errors.New("element not found")
	ErrOptionNotFound  = errors.New("option not found")
)

// ValidationError reports a malformed configuration, step or schedule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: sprintf(format, args...)}
}

// InvalidScheduleError reports a schedule that cannot produce a trigger.
// It matches ErrInvalidSchedule with errors.Is.
type InvalidScheduleError struct {
	Type   ScheduleType
	Reason string
	Err    error
}

func (e *InvalidScheduleError) Error() string {
	msg := fmt.Sprintf("invalid %s schedule: %s", e.Type, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidScheduleError) Unwrap() error { return e.Err }

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

// StepExecutionError aborts the current run at the step that raised it.
type StepExecutionError struct {
	Order int
	Type  StepType
	Err   error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Order+1, e.Type, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// ResourceAcquisitionError reports that no driver handle could be opened.
type ResourceAcquisitionError struct {
	Err error
}

func (e *ResourceAcquisitionError) Error() string {
	return "acquire driver: " + e.Err.Error()
}

func (e *ResourceAcquisitionError) Unwrap() error { return e.Err }

// HasResultsError is returned when deleting a configuration that still owns run results.
type HasResultsError struct {
	Count int
}

func (e *HasResultsError) Error() string {
	return fmt.Sprintf("configuration has %d run results; delete them first or force deletion", e.Count)
}

func (e *HasResultsError) Is(target error) bool { return target == ErrHasResults }
