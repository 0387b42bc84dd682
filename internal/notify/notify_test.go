package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercron/internal/core"
)

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return r.err
}

type sinkFunc func(ctx context.Context, result *core.RunResult) error

func (f sinkFunc) SaveResult(ctx context.Context, result *core.RunResult) error { return f(ctx, result) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func finishedResult(status core.RunStatus, errMsg string) *core.RunResult {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	r := &core.RunResult{
		ID:         core.NewID(),
		ConfigID:   "cfg-1",
		ConfigName: "landing",
		Trigger:    core.TriggerScheduled,
		Status:     status,
		StartTime:  start,
		EndTime:    &end,
	}
	if errMsg != "" {
		r.Error = &errMsg
	}
	return r
}

func TestBarkNotifierSend(t *testing.T) {
	var (
		path    string
		payload barkPush
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"code":200,"message":"success"}`))
	}))
	defer srv.Close()

	n, err := NewBarkNotifier(srv.URL + "/devicekey/")
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), "landing: FAILED", "step 2 failed"))

	assert.Equal(t, "/devicekey", path)
	assert.Equal(t, barkPush{Title: "landing: FAILED", Body: "step 2 failed", Group: "browsercron"}, payload)
}

func TestBarkNotifierErrors(t *testing.T) {
	_, err := NewBarkNotifier("  ")
	assert.Error(t, err)
	_, err = NewBarkNotifier("not a url")
	assert.Error(t, err)

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":400,"message":"device key not found"}`))
	}))
	defer rejecting.Close()
	n, err := NewBarkNotifier(rejecting.URL + "/unknown")
	require.NoError(t, err)
	assert.ErrorContains(t, n.Send(context.Background(), "t", "b"), "device key not found")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	n, err = NewBarkNotifier(srv.URL)
	require.NoError(t, err)
	assert.ErrorContains(t, n.Send(context.Background(), "t", "b"), "status: 400")
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	first := &recordingNotifier{err: errors.New("first down")}
	second := &recordingNotifier{}
	err := NewMultiNotifier(first, nil, second, Discard).Send(context.Background(), "t", "b")

	assert.ErrorContains(t, err, "first down")
	assert.Len(t, first.titles, 1)
	assert.Len(t, second.titles, 1, "later notifiers still receive the message")
}

func TestResultNotifierPolicy(t *testing.T) {
	var saved int
	next := sinkFunc(func(context.Context, *core.RunResult) error { saved++; return nil })
	rec := &recordingNotifier{}
	sink := NewResultNotifier(next, rec, NotifyFailed, time.Millisecond, 10, discardLogger())

	require.NoError(t, sink.SaveResult(context.Background(), finishedResult(core.RunStatusSuccess, "")))
	require.NoError(t, sink.SaveResult(context.Background(), finishedResult(core.RunStatusFailed, "step 2 (CLICK): element not found")))

	assert.Equal(t, 2, saved)
	require.Len(t, rec.titles, 1)
	assert.Equal(t, "landing: FAILED", rec.titles[0])
	assert.Contains(t, rec.bodies[0], "Error: step 2 (CLICK): element not found")
	assert.Contains(t, rec.bodies[0], "Duration: 1.5s")
}

func TestResultNotifierSkipsUnfinishedRuns(t *testing.T) {
	var saved int
	next := sinkFunc(func(context.Context, *core.RunResult) error { saved++; return nil })
	rec := &recordingNotifier{}
	sink := NewResultNotifier(next, rec, NotifyAll, time.Millisecond, 10, discardLogger())

	running := finishedResult(core.RunStatusRunning, "")
	running.EndTime = nil
	require.NoError(t, sink.SaveResult(context.Background(), running))

	assert.Equal(t, 1, saved)
	assert.Empty(t, rec.titles)
}

func TestResultNotifierRateLimit(t *testing.T) {
	next := sinkFunc(func(context.Context, *core.RunResult) error { return nil })
	rec := &recordingNotifier{}
	sink := NewResultNotifier(next, rec, NotifyAll, time.Hour, 2, discardLogger())

	for range 5 {
		require.NoError(t, sink.SaveResult(context.Background(), finishedResult(core.RunStatusSuccess, "")))
	}
	assert.Len(t, rec.titles, 2)
}

func TestResultNotifierKeepsSinkError(t *testing.T) {
	saveErr := errors.New("disk full")
	next := sinkFunc(func(context.Context, *core.RunResult) error { return saveErr })
	rec := &recordingNotifier{err: errors.New("push failed")}
	sink := NewResultNotifier(next, rec, NotifyAll, time.Millisecond, 1, discardLogger())

	err := sink.SaveResult(context.Background(), finishedResult(core.RunStatusFailed, "boom"))
	assert.ErrorIs(t, err, saveErr)
	assert.Len(t, rec.titles, 1)
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, NotifyAll, ParsePolicy(" ALL "))
	assert.Equal(t, NotifyFailed, ParsePolicy("failed"))
	assert.Equal(t, NotifyFailed, ParsePolicy(""))
}
