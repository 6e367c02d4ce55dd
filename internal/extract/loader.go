package extract

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// ErrNoRenderer is returned when a page needs a browser but none is configured.
var ErrNoRenderer = errors.New("headless rendering not configured")

// Detector decides whether statically fetched markup needs a browser.
type Detector interface {
	ShouldPromote(html string) bool
}

// classifier is implemented by detectors that can explain a promotion.
type classifier interface {
	Classify(html string) string
}

// Loader turns URLs into parsed documents. It fetches statically first and
// promotes to the headless renderer when the detector flags the page.
type Loader struct {
	fetcher  professor.Fetcher
	renderer professor.Renderer
	detector Detector
	logger   *zap.Logger
}

// NewLoader builds a Loader. renderer and detector may be nil.
func NewLoader(fetcher professor.Fetcher, renderer professor.Renderer, detector Detector, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		fetcher:  fetcher,
		renderer: renderer,
		detector: detector,
		logger:   logger.Named("loader"),
	}
}

// Document fetches url, re-rendering it headlessly when needed.
func (l *Loader) Document(ctx context.Context, url string) (*goquery.Document, error) {
	html, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if l.renderer != nil && l.detector != nil && l.detector.ShouldPromote(html) {
		fields := []zap.Field{zap.String("url", url)}
		if c, ok := l.detector.(classifier); ok {
			fields = append(fields, zap.String("reason", c.Classify(html)))
		}
		l.logger.Debug("promoting to headless", fields...)
		rendered, rerr := l.renderer.Render(ctx, url)
		if rerr == nil {
			html = rendered
		} else {
			l.logger.Warn("headless render failed, using static markup", zap.String("url", url), zap.Error(rerr))
		}
	}
	return Parse(html)
}

// Static fetches url without headless promotion.
func (l *Loader) Static(ctx context.Context, url string) (*goquery.Document, error) {
	html, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return Parse(html)
}

// Rendered loads url in the headless browser.
func (l *Loader) Rendered(ctx context.Context, url string) (*goquery.Document, error) {
	if l.renderer == nil {
		return nil, ErrNoRenderer
	}
	html, err := l.renderer.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	return Parse(html)
}

// Paginate yields one parsed snapshot per pagination step.
func (l *Loader) Paginate(ctx context.Context, url, control string) iter.Seq2[*goquery.Document, error] {
	return func(yield func(*goquery.Document, error) bool) {
		if l.renderer == nil {
			yield(nil, ErrNoRenderer)
			return
		}
		for html, err := range l.renderer.Paginate(ctx, url, control) {
			if err != nil {
				yield(nil, err)
				return
			}
			doc, perr := Parse(html)
			if !yield(doc, perr) {
				return
			}
		}
	}
}

// Text fetches url and returns its readable text.
func (l *Loader) Text(ctx context.Context, url string) (string, error) {
	doc, err := l.Document(ctx, url)
	if err != nil {
		return "", err
	}
	return PageText(doc), nil
}

// Parse builds a document from markup.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Deps are the collaborators every extractor is constructed with.
type Deps struct {
	Loader *Loader
	Logger *zap.Logger
}

// Log returns the configured logger or a no-op one.
func (d Deps) Log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
