// Package headless renders script-driven pages and walks "load more" pagination with chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/metrics"
)

// ErrNoControl reports that the pagination control is missing, hidden or disabled.
var ErrNoControl = errors.New("pagination control unavailable")

// Config controls the behavior of the headless browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitTimeout bounds each wait for a pagination control to become clickable.
	WaitTimeout time.Duration
	// Settle is how long to wait after a click for new content to materialize.
	Settle time.Duration
	// MaxPages caps snapshots per pagination sequence. Zero means unbounded.
	MaxPages int
}

// Waiter delays a navigation until its host may be contacted.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// page is the subset of a browser tab the pagination loop needs.
type page interface {
	Navigate(url string) (string, error)
	Click(control string) error
	HTML() (string, error)
	Close()
}

// Browser owns one Chrome allocator and hands out scoped sessions.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	waiter      Waiter
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
	open        func(ctx context.Context) (page, error)
}

// NewChromedp creates a Browser backed by a headless Chrome process.
func NewChromedp(cfg Config, waiter Waiter, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = withDefaults(cfg)
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	b := &Browser{
		cfg:         cfg,
		limiter:     limiter,
		waiter:      waiter,
		logger:      logger.Named("headless"),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
	b.open = func(ctx context.Context) (page, error) {
		return b.Session(ctx)
	}
	return b, nil
}

func withDefaults(cfg Config) Config {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	return cfg
}

// Close shuts the browser process down.
func (b *Browser) Close() {
	b.allocCancel()
}

// Session acquires a browser slot and opens a fresh tab. The caller must Close it.
func (b *Browser) Session(ctx context.Context) (*Session, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	// Tie the tab to the caller's context so cancellation reaches chromedp.
	stop := context.AfterFunc(ctx, tabCancel)
	s := &Session{
		browser: b,
		ctx:     tabCtx,
		cancel: func() {
			stop()
			tabCancel()
		},
	}
	if err := chromedp.Run(tabCtx, b.setupAction()); err != nil {
		s.Close()
		return nil, fmt.Errorf("start headless session: %w", err)
	}
	return s, nil
}

// Render loads url in a short-lived session and returns the rendered DOM.
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	p, err := b.open(ctx)
	if err != nil {
		return "", err
	}
	defer p.Close()
	return p.Navigate(url)
}

// Paginate loads url and yields one snapshot of the DOM, then clicks control and
// yields again until the control is gone or disabled. Every iteration opens its
// own session, so the sequence can be ranged over more than once, and the session
// is closed however the loop ends.
func (b *Browser) Paginate(ctx context.Context, url, control string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		p, err := b.open(ctx)
		if err != nil {
			yield("", err)
			return
		}
		defer p.Close()

		html, err := p.Navigate(url)
		if err != nil {
			yield("", err)
			return
		}
		if !yield(html, nil) {
			return
		}
		for step := 1; b.cfg.MaxPages <= 0 || step < b.cfg.MaxPages; step++ {
			if err := p.Click(control); err != nil {
				if !errors.Is(err, ErrNoControl) {
					b.logger.Debug("pagination stopped", zap.String("url", url), zap.Error(err))
				}
				return
			}
			html, err := p.HTML()
			if err != nil {
				yield("", err)
				return
			}
			if !yield(html, nil) {
				return
			}
		}
	}
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// Session is one browser tab. It is not safe for concurrent use.
type Session struct {
	browser *Browser
	ctx     context.Context
	cancel  func()
	closed  bool
}

// Navigate loads url, waits for the body and returns the rendered DOM.
func (s *Session) Navigate(url string) (string, error) {
	if s.browser.waiter != nil {
		if err := s.browser.waiter.Wait(s.ctx, url); err != nil {
			return "", err
		}
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.browser.cfg.NavigationTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.browser.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		metrics.ObserveFetch(url, "headless", "error")
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	metrics.ObserveFetch(url, "headless", "ok")
	return html, nil
}

// controlStateJS classifies the first element matching a selector.
const controlStateJS = `(function (sel) {
  const el = document.querySelector(sel);
  if (!el) return "missing";
  if (el.disabled || el.getAttribute("aria-disabled") === "true" || el.classList.contains("disabled")) return "disabled";
  const style = window.getComputedStyle(el);
  if (style.display === "none" || style.visibility === "hidden") return "hidden";
  return "ready";
})(%s)`

// Click presses the control if it is present and enabled, then waits for the
// page to settle. A wait timeout is reported as ErrNoControl.
func (s *Session) Click(control string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.browser.cfg.WaitTimeout)
	defer cancel()

	var state string
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(controlStateJS, strconv.Quote(control)), &state)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrNoControl
		}
		return fmt.Errorf("inspect control %q: %w", control, err)
	}
	if state != "ready" {
		return fmt.Errorf("%w: %s", ErrNoControl, state)
	}
	err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(control, chromedp.ByQuery),
		chromedp.Click(control, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(s.browser.cfg.Settle),
	)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNoControl
	}
	if err != nil {
		return fmt.Errorf("click %q: %w", control, err)
	}
	return nil
}

// HTML returns the current DOM.
func (s *Session) HTML() (string, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.browser.cfg.NavigationTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read DOM: %w", err)
	}
	return html, nil
}

// Close releases the tab and its browser slot. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.browser.release()
}
