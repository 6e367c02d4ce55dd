// Package extracttest provides in-memory page sources for extractor tests.
package extracttest

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/JakeFAU/professor-crawler/internal/extract"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// Pages serves canned markup by URL. It implements both professor.Fetcher and
// professor.Renderer and records every URL it was asked for.
type Pages struct {
	// Static is returned by Fetch.
	Static map[string]string
	// Rendered is returned by Render. Missing entries fall back to Static.
	Rendered map[string]string
	// Snapshots is returned by Paginate, one element per step.
	Snapshots map[string][]string

	mu       sync.Mutex
	fetched  []string
	rendered []string
}

var (
	_ professor.Fetcher  = (*Pages)(nil)
	_ professor.Renderer = (*Pages)(nil)
)

// Fetch returns the static page or an error for unknown URLs.
func (p *Pages) Fetch(_ context.Context, url string) (string, error) {
	p.mu.Lock()
	p.fetched = append(p.fetched, url)
	p.mu.Unlock()
	html, ok := p.Static[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return html, nil
}

// Render returns the rendered page, falling back to the static one.
func (p *Pages) Render(ctx context.Context, url string) (string, error) {
	p.mu.Lock()
	p.rendered = append(p.rendered, url)
	p.mu.Unlock()
	if html, ok := p.Rendered[url]; ok {
		return html, nil
	}
	return p.Fetch(ctx, url)
}

// Paginate yields the configured snapshots for url.
func (p *Pages) Paginate(_ context.Context, url, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		snaps, ok := p.Snapshots[url]
		if !ok {
			yield("", fmt.Errorf("no snapshots for %s", url))
			return
		}
		for _, s := range snaps {
			if !yield(s, nil) {
				return
			}
		}
	}
}

// Fetched lists the URLs passed to Fetch, in order.
func (p *Pages) Fetched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.fetched...)
}

// RenderedURLs lists the URLs passed to Render, in order.
func (p *Pages) RenderedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.rendered...)
}

// Deps wires p into extractor dependencies with no promotion detector.
func (p *Pages) Deps() extract.Deps {
	return extract.Deps{Loader: extract.NewLoader(p, p, nil, nil)}
}
