package professor

import (
	"context"
	"iter"
	"time"
)

// Fetcher retrieves the raw markup for a static page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Renderer drives a headless browser to obtain script-rendered markup.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	// Paginate yields one rendered snapshot per pagination step, clicking the
	// element matched by control between steps until it disappears or is disabled.
	Paginate(ctx context.Context, url, control string) iter.Seq2[string, error]
}

// Extractor implements the site-specific scraping rules for one institution.
type Extractor interface {
	University() string
	ListProfiles(ctx context.Context, req DirectoryRequest) ([]Link, error)
	ExtractProfile(ctx context.Context, link Link) (Profile, error)
}

// InterestExtractor is the LLM-backed fallback used when structural extraction finds nothing.
type InterestExtractor interface {
	Interests(ctx context.Context, src Source, strategy string) []string
	ProfileLinks(ctx context.Context, directoryURL string) []string
}

// Embedder turns a phrase into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
