package core

import (
	"context"
)

// ConfigStore abstracts configuration persistence.
type ConfigStore interface {
	GetConfig(ctx context.Context, id string) (*Configuration, error)
	ListConfigs(ctx context.Context) ([]*Configuration, error)
	ListActiveConfigs(ctx context.Context) ([]*Configuration, error)
	// SaveConfig inserts or replaces a configuration; steps and schedule are
	// replaced wholesale.
	SaveConfig(ctx context.Context, cfg *Configuration) error
	DeleteConfig(ctx context.Context, id string) error
	CountResults(ctx context.Context, configID string) (int, error)
	// DeleteResults removes every run result of a configuration together with
	// its screenshot files and returns how many were removed.
	DeleteResults(ctx context.Context, configID string) (int, error)
}

// ResultSink persists finished runs.
type ResultSink interface {
	SaveResult(ctx context.Context, result *RunResult) error
}

// ScreenshotStore writes captured images and returns the stored path.
type ScreenshotStore interface {
	SaveScreenshot(configName string, stepNumber int, png []byte) (string, error)
}

// Driver opens browser sessions.
type Driver interface {
	Open(ctx context.Context) (Handle, error)
}

// Element is a located page element.
type Element interface {
	Selector() string
}

// Handle is one exclusive browser session. Close must be safe to call more
// than once.
type Handle interface {
	Navigate(ctx context.Context, url string) error
	// Find returns ErrElementNotFound when nothing matches the selector.
	Find(ctx context.Context, selector string) (Element, error)
	Click(ctx context.Context, el Element) error
	// Type clears the element and types text into it.
	Type(ctx context.Context, el Element, text string) error
	// SelectOption returns ErrOptionNotFound when the control has no option with value.
	SelectOption(ctx context.Context, el Element, value string) error
	ScrollTo(ctx context.Context, offset int) error
	// CaptureImage returns a PNG of el, or of the viewport when el is nil.
	CaptureImage(ctx context.Context, el Element) ([]byte, error)
	ExecuteScript(ctx context.Context, script string, res any) error
	Close() error
}

// Runner executes a configuration end to end and always returns a result.
type Runner interface {
	Execute(ctx context.Context, cfg *Configuration, trigger RunTrigger) *RunResult
}
