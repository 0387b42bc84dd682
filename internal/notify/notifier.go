package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier delivers a short message to a person.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans a message out to every member. A failing member does not
// stop delivery to the rest.
type MultiNotifier []Notifier

func NewMultiNotifier(notifiers ...Notifier) MultiNotifier {
	members := make(MultiNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			members = append(members, n)
		}
	}
	return members
}

func (m MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for i, n := range m {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every message.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Send(context.Context, string, string) error { return nil }
