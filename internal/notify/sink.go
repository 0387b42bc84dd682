package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"browsercron/internal/core"
)

// Policy selects which finished runs produce a notification.
type Policy string

const (
	NotifyFailed Policy = "failed"
	NotifyAll    Policy = "all"
)

// ParsePolicy maps a configuration value to a Policy, defaulting to NotifyFailed.
func ParsePolicy(value string) Policy {
	if Policy(strings.ToLower(strings.TrimSpace(value))) == NotifyAll {
		return NotifyAll
	}
	return NotifyFailed
}

// ResultNotifier is a core.ResultSink that forwards results to the next sink
// and then sends a notification for the runs its policy selects. Sends over
// the rate limit are dropped.
type ResultNotifier struct {
	next     core.ResultSink
	notifier Notifier
	policy   Policy
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewResultNotifier allows a burst of notifications refilled at one per every.
func NewResultNotifier(next core.ResultSink, notifier Notifier, policy Policy, every time.Duration, burst int, logger *slog.Logger) *ResultNotifier {
	if burst < 1 {
		burst = 1
	}
	return &ResultNotifier{
		next:     next,
		notifier: notifier,
		policy:   policy,
		limiter:  rate.NewLimiter(rate.Every(every), burst),
		logger:   logger,
	}
}

func (n *ResultNotifier) SaveResult(ctx context.Context, result *core.RunResult) error {
	err := n.next.SaveResult(ctx, result)
	if !n.selects(result) {
		return err
	}
	if !n.limiter.Allow() {
		n.logger.Warn("notification dropped by rate limit", "config_id", result.ConfigID, "run_id", result.ID)
		return err
	}
	title, body := formatResult(result)
	if serr := n.notifier.Send(ctx, title, body); serr != nil {
		n.logger.Error("send notification", "config_id", result.ConfigID, "run_id", result.ID, "err", serr)
	}
	return err
}

func (n *ResultNotifier) selects(result *core.RunResult) bool {
	if !result.Finished() {
		return false
	}
	if n.policy == NotifyAll {
		return true
	}
	return result.Status == core.RunStatusFailed
}

func formatResult(result *core.RunResult) (string, string) {
	title := fmt.Sprintf("%s: %s", result.ConfigName, result.Status)
	var b strings.Builder
	fmt.Fprintf(&b, "Trigger: %s\n", result.Trigger)
	fmt.Fprintf(&b, "Started: %s\n", result.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %s", result.Duration().Round(time.Millisecond))
	if result.Error != nil {
		fmt.Fprintf(&b, "\nError: %s", *result.Error)
	}
	if n := len(result.Screenshots); n > 0 {
		fmt.Fprintf(&b, "\nScreenshots: %d", n)
	}
	return title, b.String()
}
