// Package driver implements browser sessions on the Chrome DevTools Protocol.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"browsercron/internal/core"
)

// Options configures the browser launched for every run.
type Options struct {
	Headless      bool
	ExecPath      string
	WindowWidth   int
	WindowHeight  int
	NavTimeout    time.Duration
	ActionTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 1080
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 60 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 10 * time.Second
	}
	return o
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(o.WindowWidth, o.WindowHeight),
	)
	if !o.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Chrome launches one headless Chrome process per opened handle.
type Chrome struct {
	opts   Options
	logger *slog.Logger
}

var _ core.Driver = (*Chrome)(nil)

// New creates a Chrome driver.
func New(opts Options, logger *slog.Logger) *Chrome {
	return &Chrome{opts: opts.withDefaults(), logger: logger}
}

// Open starts a browser and returns an exclusive session on its first tab.
func (c *Chrome) Open(ctx context.Context) (core.Handle, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.opts.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		c.logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
	}))

	// The first Run launches the browser; abort the launch when ctx ends.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &session{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		opts:        c.opts,
		logger:      c.logger,
	}, nil
}

type element struct {
	selector string
	ids      []cdp.NodeID
}

func (e *element) Selector() string { return e.selector }

type session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
	logger      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// run executes actions bounded by the session, the caller's ctx and timeout.
func (s *session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.opts.NavTimeout, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s", url, s.opts.NavTimeout)
		}
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// Find waits up to the action timeout for selector to match.
func (s *session) Find(ctx context.Context, selector string) (core.Element, error) {
	var ids []cdp.NodeID
	err := s.run(ctx, s.opts.ActionTimeout, chromedp.NodeIDs(selector, &ids, chromedp.ByQuery))
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", core.ErrElementNotFound, selector)
		}
		return nil, fmt.Errorf("find %s: %w", selector, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrElementNotFound, selector)
	}
	return &element{selector: selector, ids: ids}, nil
}

func (s *session) Click(ctx context.Context, el core.Element) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}
	if err := s.run(ctx, s.opts.ActionTimeout,
		chromedp.ScrollIntoView(e.ids, chromedp.ByNodeID),
		chromedp.Click(e.ids, chromedp.ByNodeID),
	); err != nil {
		return fmt.Errorf("click %s: %w", e.selector, err)
	}
	return nil
}

func (s *session) Type(ctx context.Context, el core.Element, text string) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}
	var cleared bool
	actions := []chromedp.Action{
		chromedp.ScrollIntoView(e.ids, chromedp.ByNodeID),
		chromedp.Evaluate(clearScript(e.selector), &cleared, returnByValue),
	}
	if text != "" {
		actions = append(actions, chromedp.SendKeys(e.ids, text, chromedp.ByNodeID))
	}
	if err := s.run(ctx, typingTimeout(s.opts.ActionTimeout, text), actions...); err != nil {
		return fmt.Errorf("type into %s: %w", e.selector, err)
	}
	if !cleared {
		s.logger.Debug("input was not cleared before typing", "selector", e.selector)
	}
	return nil
}

func (s *session) SelectOption(ctx context.Context, el core.Element, value string) error {
	e, err := asElement(el)
	if err != nil {
		return err
	}
	var selected bool
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(selectScript(e.selector, value), &selected, returnByValue)); err != nil {
		return fmt.Errorf("select %q in %s: %w", value, e.selector, err)
	}
	if !selected {
		return fmt.Errorf("%w: %q in %s", core.ErrOptionNotFound, value, e.selector)
	}
	return nil
}

func (s *session) ScrollTo(ctx context.Context, offset int) error {
	if err := s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(scrollScript(offset), nil)); err != nil {
		return fmt.Errorf("scroll to %d: %w", offset, err)
	}
	return nil
}

func (s *session) CaptureImage(ctx context.Context, el core.Element) ([]byte, error) {
	var buf []byte
	if el == nil {
		if err := s.run(ctx, s.opts.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
			return nil, fmt.Errorf("capture viewport: %w", err)
		}
		return buf, nil
	}
	e, err := asElement(el)
	if err != nil {
		return nil, err
	}
	if err := s.run(ctx, s.opts.ActionTimeout,
		chromedp.ScrollIntoView(e.ids, chromedp.ByNodeID),
		chromedp.Screenshot(e.ids, &buf, chromedp.ByNodeID),
	); err != nil {
		return nil, fmt.Errorf("capture %s: %w", e.selector, err)
	}
	return buf, nil
}

func (s *session) ExecuteScript(ctx context.Context, script string, res any) error {
	return s.run(ctx, s.opts.ActionTimeout, chromedp.Evaluate(script, res))
}

// Close shuts the browser down. Later calls return the first result.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close browser: %w", err)
		}
		s.cancel()
		s.allocCancel()
	})
	return s.closeErr
}

func asElement(el core.Element) (*element, error) {
	e, ok := el.(*element)
	if !ok || e == nil {
		return nil, fmt.Errorf("element %T was not returned by this driver", el)
	}
	return e, nil
}

func returnByValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithSilent(true)
}

// combineContext derives from parent and is also cancelled when secondary ends.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func typingTimeout(base time.Duration, text string) time.Duration {
	timeout := base + time.Duration(len(text))*50*time.Millisecond
	return min(timeout, 3*time.Minute)
}
