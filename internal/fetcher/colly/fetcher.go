// Package collyfetcher implements the static page Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/metrics"
)

// ErrEmptyBody is returned when a page responds successfully with no content.
var ErrEmptyBody = errors.New("empty response body")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Waiter delays a request until its host may be contacted.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// HostPolicy decides whether a host may still be contacted and learns from
// response statuses.
type HostPolicy interface {
	AllowFetch(url string) error
	Observe(url string, status int) bool
}

// Fetcher performs one bounded GET per call. It never retries.
type Fetcher struct {
	cfg           Config
	waiter        Waiter
	policy        HostPolicy
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. waiter may be nil.
func New(cfg Config, waiter Waiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	// Clones share the HTTP backend, so the timeout is set here only.
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{
		cfg:           cfg,
		waiter:        waiter,
		logger:        logger.Named("colly"),
		baseCollector: c,
	}
}

// WithPolicy attaches a host policy consulted before and after each fetch.
func (f *Fetcher) WithPolicy(p HostPolicy) *Fetcher {
	f.policy = p
	return f
}

// Fetch returns the markup served at url. Non-success statuses, transport
// failures and timeouts are reported as errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.policy != nil {
		if err := f.policy.AllowFetch(url); err != nil {
			metrics.ObserveFetch(url, "static", "blocked")
			return "", err
		}
	}
	if f.waiter != nil {
		if err := f.waiter.Wait(ctx, url); err != nil {
			return "", err
		}
	}
	var (
		body     []byte
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &body, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		metrics.ObserveFetch(url, "static", "error")
		f.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		return "", err
	}
	if len(body) == 0 {
		metrics.ObserveFetch(url, "static", "empty")
		return "", fmt.Errorf("fetch %s: %w", url, ErrEmptyBody)
	}
	metrics.ObserveFetch(url, "static", "ok")
	f.logger.Debug("fetched page",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return string(body), nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			if f.policy != nil && r.Request != nil && f.policy.Observe(r.Request.URL.String(), r.StatusCode) {
				f.logger.Warn("blocking host after repeated refusals",
					zap.String("url", r.Request.URL.String()),
					zap.Int("status", r.StatusCode),
				)
			}
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
