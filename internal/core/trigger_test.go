package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 10, 2, 30, 0, time.UTC)

func TestComputeTriggerOnce(t *testing.T) {
	trigger, err := ComputeTrigger(&Schedule{Type: ScheduleOnce, RunOnceAt: "2025-03-01T12:00:00"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, TriggerOneShot, trigger.Kind)
	assert.False(t, trigger.Repeats())

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, at, trigger.Next(testNow))
	assert.True(t, trigger.Next(at).IsZero())
	assert.Equal(t, []time.Time{at}, trigger.Upcoming(5))
}

func TestComputeTriggerOnceInPastIsRejected(t *testing.T) {
	for _, value := range []string{"2025-03-01T10:02:30", "2024-12-31 23:59", "2025-03-01T09:00:00Z"} {
		_, err := ComputeTrigger(&Schedule{Type: ScheduleOnce, RunOnceAt: value}, testNow)
		require.Error(t, err, value)
		assert.ErrorIs(t, err, ErrInvalidSchedule, value)
	}
}

func TestComputeTriggerOnceUnparsable(t *testing.T) {
	_, err := ComputeTrigger(&Schedule{Type: ScheduleOnce, RunOnceAt: "tomorrow"}, testNow)
	var serr *InvalidScheduleError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ScheduleOnce, serr.Type)
}

func TestComputeTriggerInterval(t *testing.T) {
	trigger, err := ComputeTrigger(&Schedule{Type: ScheduleInterval, IntervalMinutes: 15}, testNow)
	require.NoError(t, err)
	assert.Equal(t, TriggerFixedRate, trigger.Kind)
	assert.True(t, trigger.FiresImmediately())
	assert.Equal(t, testNow, trigger.Start)

	assert.Equal(t, []time.Time{
		testNow,
		testNow.Add(15 * time.Minute),
		testNow.Add(30 * time.Minute),
	}, trigger.Upcoming(3))

	// Fires stay on the grid regardless of when the previous one was observed.
	assert.Equal(t, testNow.Add(30*time.Minute), trigger.Next(testNow.Add(17*time.Minute)))
	assert.Equal(t, testNow.Add(30*time.Minute), trigger.Next(testNow.Add(15*time.Minute)))
}

func TestComputeTriggerIntervalRejectsNonPositive(t *testing.T) {
	for _, minutes := range []int{0, -5} {
		_, err := ComputeTrigger(&Schedule{Type: ScheduleInterval, IntervalMinutes: minutes}, testNow)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	}
}

func TestComputeTriggerCron(t *testing.T) {
	trigger, err := ComputeTrigger(&Schedule{Type: ScheduleCron, CronExpression: " 0 */5 * * * * "}, testNow)
	require.NoError(t, err)
	assert.Equal(t, TriggerCronDriven, trigger.Kind)
	assert.Equal(t, "0 */5 * * * *", trigger.Expr)
	assert.Equal(t, []time.Time{
		time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 10, 10, 0, 0, time.UTC),
	}, trigger.Upcoming(2))
}

func TestComputeTriggerCronInvalid(t *testing.T) {
	for _, expr := range []string{"invalid", "* * * * *", "@every 1m", "61 * * * * *"} {
		_, err := ComputeTrigger(&Schedule{Type: ScheduleCron, CronExpression: expr}, testNow)
		assert.ErrorIs(t, err, ErrInvalidSchedule, expr)
	}
}

func TestComputeTriggerUnknownType(t *testing.T) {
	_, err := ComputeTrigger(&Schedule{Type: "WEEKLY"}, testNow)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = ComputeTrigger(nil, testNow)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestTimerScheduleSkipsImmediateFire(t *testing.T) {
	trigger, err := ComputeTrigger(&Schedule{Type: ScheduleInterval, IntervalMinutes: 1}, testNow)
	require.NoError(t, err)
	s := timerSchedule{trigger: trigger}

	assert.Equal(t, testNow.Add(time.Minute), s.Next(testNow))
	assert.Equal(t, testNow.Add(time.Minute), s.Next(testNow.Add(-time.Second)))
	assert.Equal(t, testNow.Add(2*time.Minute), s.Next(testNow.Add(time.Minute)))
}

func TestParseLocalDateTime(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	want := time.Date(2025, 3, 1, 9, 30, 0, 0, loc)
	for _, value := range []string{
		"2025-03-01T09:30:00",
		"2025-03-01T09:30",
		"2025-03-01 09:30:00",
		"2025-03-01 09:30",
		"2025-03-01T09:30:00.000",
		"2025-03-01T01:30:00Z",
	} {
		got, err := ParseLocalDateTime(value, loc)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), "%s parsed as %s", value, got)
	}

	_, err := ParseLocalDateTime("03/01/2025", loc)
	assert.Error(t, err)
}

func TestNextOccurrences(t *testing.T) {
	schedule, err := ParseCron("0 0 9 * * MON")
	require.NoError(t, err)
	times := NextOccurrences(schedule, testNow, 2)
	require.Len(t, times, 2)
	assert.Equal(t, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), times[1])
}
