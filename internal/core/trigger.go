package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron expressions carry six fields: seconds, minutes, hours, day of month,
// month, day of week.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron ensures the expression is a valid 6-field cron definition and returns the underlying schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@") {
		return nil, fmt.Errorf("only 6-field cron expressions are supported")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocalDateTime parses an ISO-8601 local date-time such as
// "2025-03-01T09:30:00" in loc (time.Local when nil). Values carrying an
// explicit offset are accepted as RFC 3339.
func ParseLocalDateTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a local date-time", value)
}

// TriggerKind describes how a timer repeats.
type TriggerKind int

const (
	TriggerOneShot TriggerKind = iota
	TriggerFixedRate
	TriggerCronDriven
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerOneShot:
		return "one-shot"
	case TriggerFixedRate:
		return "fixed-rate"
	case TriggerCronDriven:
		return "cron"
	default:
		return "unknown"
	}
}

// Trigger is the computed firing rule for a schedule.
type Trigger struct {
	Kind TriggerKind
	// At is the single fire instant of a one-shot trigger.
	At time.Time
	// Start anchors a fixed-rate trigger; fires happen at Start + k*Every.
	Start time.Time
	Every time.Duration
	Expr  string

	cron       cron.Schedule
	computedAt time.Time
}

// ComputeTrigger turns a schedule into a trigger relative to now. Once-dates
// are read in now's location.
func ComputeTrigger(s *Schedule, now time.Time) (*Trigger, error) {
	if s == nil {
		return nil, &InvalidScheduleError{Reason: "schedule is required"}
	}
	switch s.Type {
	case ScheduleOnce:
		at, err := ParseLocalDateTime(s.RunOnceAt, now.Location())
		if err != nil {
			return nil, &InvalidScheduleError{Type: s.Type, Reason: "unparsable run once date/time", Err: err}
		}
		if !at.After(now) {
			return nil, &InvalidScheduleError{Type: s.Type, Reason: fmt.Sprintf("run once time %s is in the past", at.Format(time.RFC3339))}
		}
		return &Trigger{Kind: TriggerOneShot, At: at, computedAt: now}, nil
	case ScheduleInterval:
		if s.IntervalMinutes <= 0 {
			return nil, &InvalidScheduleError{Type: s.Type, Reason: "interval must be greater than 0"}
		}
		return &Trigger{
			Kind:       TriggerFixedRate,
			Start:      now,
			Every:      time.Duration(s.IntervalMinutes) * time.Minute,
			computedAt: now,
		}, nil
	case ScheduleCron:
		schedule, err := ParseCron(s.CronExpression)
		if err != nil {
			return nil, &InvalidScheduleError{Type: s.Type, Reason: "malformed cron expression", Err: err}
		}
		return &Trigger{Kind: TriggerCronDriven, Expr: strings.TrimSpace(s.CronExpression), cron: schedule, computedAt: now}, nil
	default:
		return nil, &InvalidScheduleError{Type: s.Type, Reason: fmt.Sprintf("unknown schedule type %q", s.Type)}
	}
}

// Next returns the first fire instant strictly after t, or the zero time when
// the trigger will not fire again. A fixed-rate trigger also reports Start
// itself for any t before it.
func (t *Trigger) Next(after time.Time) time.Time {
	switch t.Kind {
	case TriggerOneShot:
		if after.Before(t.At) {
			return t.At
		}
		return time.Time{}
	case TriggerFixedRate:
		if after.Before(t.Start) {
			return t.Start
		}
		k := after.Sub(t.Start)/t.Every + 1
		return t.Start.Add(k * t.Every)
	case TriggerCronDriven:
		return t.cron.Next(after)
	default:
		return time.Time{}
	}
}

// Repeats reports whether the trigger fires more than once.
func (t *Trigger) Repeats() bool {
	return t.Kind != TriggerOneShot
}

// FiresImmediately reports whether the first fire happens at registration.
func (t *Trigger) FiresImmediately() bool {
	return t.Kind == TriggerFixedRate
}

// Upcoming returns up to n fire instants starting from the time the trigger
// was computed.
func (t *Trigger) Upcoming(n int) []time.Time {
	if t.Kind == TriggerCronDriven {
		return NextOccurrences(t.cron, t.computedAt, n)
	}
	times := make([]time.Time, 0, n)
	var next time.Time
	if t.FiresImmediately() {
		next = t.Start
	} else {
		next = t.Next(t.computedAt)
	}
	for len(times) < n && !next.IsZero() {
		times = append(times, next)
		next = t.Next(next)
	}
	return times
}

// NextOccurrences returns the next n execution times of a cron schedule from a base time.
func NextOccurrences(schedule cron.Schedule, base time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times
}

// timerSchedule adapts a trigger to the cron runner. The immediate first
// fire of a fixed-rate trigger is dispatched by the registry, so the runner
// only sees the fires after Start.
type timerSchedule struct {
	trigger *Trigger
}

func (s timerSchedule) Next(t time.Time) time.Time {
	if s.trigger.Kind == TriggerFixedRate && !t.After(s.trigger.Start) {
		return s.trigger.Start.Add(s.trigger.Every)
	}
	return s.trigger.Next(t)
}
