package llm

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/professor-crawler/internal/extract"
	"github.com/JakeFAU/professor-crawler/internal/metrics"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// FallbackConfig tunes the fallback.
type FallbackConfig struct {
	// Strategy is used when a caller passes an empty strategy name.
	Strategy string
	// MaxChars truncates page text before it is sent. Zero means 60000.
	MaxChars int
	// Concurrency bounds ExtractMany. Zero means 4.
	Concurrency int
	// MaxOutputTokens is forwarded to every request when positive.
	MaxOutputTokens int32
}

// Fallback extracts interests with a language model. Every failure mode
// collapses to an empty result; nothing is retried.
type Fallback struct {
	completer Completer
	loader    *extract.Loader
	cfg       FallbackConfig
	logger    *zap.Logger
}

var _ professor.InterestExtractor = (*Fallback)(nil)

// NewFallback builds a Fallback. loader is used to read URL-only sources.
func NewFallback(completer Completer, loader *extract.Loader, cfg FallbackConfig, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySchema
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 60000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Fallback{
		completer: completer,
		loader:    loader,
		cfg:       cfg,
		logger:    logger.Named("llm"),
	}
}

// Interests asks the model for the interests described by src.
func (f *Fallback) Interests(ctx context.Context, src professor.Source, strategy string) []string {
	if strategy == "" {
		strategy = f.cfg.Strategy
	}
	strat, err := Lookup(strategy)
	if err != nil {
		f.logger.Warn("llm fallback skipped", zap.Error(err))
		return nil
	}
	text, ok := f.sourceText(ctx, src)
	if !ok {
		metrics.ObserveFallback(strat.Name, "no_input")
		return nil
	}

	req := strat.Request(text)
	req.MaxOutputTokens = f.cfg.MaxOutputTokens
	completion, err := f.completer.Complete(ctx, req)
	if err != nil {
		metrics.ObserveFallback(strat.Name, "error")
		f.logger.Warn("llm completion failed", zap.String("url", src.URL), zap.String("strategy", strat.Name), zap.Error(err))
		return nil
	}
	interests, err := strat.Parse(completion)
	if err != nil {
		metrics.ObserveFallback(strat.Name, "malformed")
		f.logger.Warn("llm completion malformed", zap.String("url", src.URL), zap.String("strategy", strat.Name), zap.Error(err))
		return nil
	}
	interests = dedupe(interests)
	if len(interests) == 0 {
		metrics.ObserveFallback(strat.Name, "empty")
		return nil
	}
	metrics.ObserveFallback(strat.Name, "ok")
	return interests
}

func (f *Fallback) sourceText(ctx context.Context, src professor.Source) (string, bool) {
	text := strings.TrimSpace(src.Text)
	if text == "" && src.URL != "" && f.loader != nil {
		var err error
		text, err = f.loader.Text(ctx, src.URL)
		if err != nil {
			f.logger.Warn("llm fallback could not load page", zap.String("url", src.URL), zap.Error(err))
			return "", false
		}
	}
	if text == "" {
		return "", false
	}
	return truncate(text, f.cfg.MaxChars), true
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// ProfileLinks asks the model which links on a directory page lead to
// professor profiles. Only links that are actually on the page are returned.
func (f *Fallback) ProfileLinks(ctx context.Context, directoryURL string) []string {
	if f.loader == nil {
		return nil
	}
	doc, err := f.loader.Document(ctx, directoryURL)
	if err != nil {
		f.logger.Warn("link discovery could not load page", zap.String("url", directoryURL), zap.Error(err))
		return nil
	}
	anchors := extract.Links(directoryURL, doc.Find("a[href]"))
	if len(anchors) == 0 {
		return nil
	}
	onPage := make(map[string]struct{}, len(anchors))
	var listing strings.Builder
	for _, a := range anchors {
		if _, seen := onPage[a.URL]; seen {
			continue
		}
		onPage[a.URL] = struct{}{}
		listing.WriteString(a.Text)
		listing.WriteString(" -> ")
		listing.WriteString(a.URL)
		listing.WriteByte('\n')
	}

	req := profileLinksStrategy.Request(truncate(listing.String(), f.cfg.MaxChars))
	req.MaxOutputTokens = f.cfg.MaxOutputTokens
	completion, err := f.completer.Complete(ctx, req)
	if err != nil {
		metrics.ObserveFallback(profileLinksStrategy.Name, "error")
		f.logger.Warn("link discovery failed", zap.String("url", directoryURL), zap.Error(err))
		return nil
	}
	urls, err := profileLinksStrategy.Parse(completion)
	if err != nil {
		metrics.ObserveFallback(profileLinksStrategy.Name, "malformed")
		f.logger.Warn("link discovery malformed", zap.String("url", directoryURL), zap.Error(err))
		return nil
	}
	var out []string
	for _, u := range dedupe(urls) {
		resolved := extract.ResolveURL(directoryURL, u)
		if _, ok := onPage[resolved]; ok {
			out = append(out, resolved)
		}
	}
	metrics.ObserveFallback(profileLinksStrategy.Name, "ok")
	return out
}

// ExtractMany runs the schema strategy over urls concurrently. Results are
// keyed by URL; URLs with no interests are absent from the map.
func (f *Fallback) ExtractMany(ctx context.Context, urls []string) map[string][]string {
	var (
		mu  sync.Mutex
		out = make(map[string][]string, len(urls))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for _, u := range urls {
		g.Go(func() error {
			interests := f.Interests(gctx, professor.Source{URL: u}, StrategySchema)
			if len(interests) == 0 {
				return nil
			}
			mu.Lock()
			out[u] = interests
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures are logged per URL.
	_ = g.Wait()
	return out
}

// dedupe drops case-insensitive repeats, keeping first occurrences in order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
