// Package pipeline drives one university's extractor over its directory configuration.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/metrics"
	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/progress"
)

// Config tunes record emission.
type Config struct {
	// RequireName drops records whose name could not be found.
	RequireName bool
	// LinkFallback asks the LLM for profile links when a directory page matches no layout.
	LinkFallback bool
	// Strategy is the LLM prompt strategy for interest fallback. Empty uses the fallback default.
	Strategy string
	// Progress receives directory and profile events for runs tagged with
	// progress.WithRunID. Nil disables them.
	Progress progress.Emitter
}

// Stats summarizes one run.
type Stats struct {
	Faculties       int           `json:"faculties"`
	Departments     int           `json:"departments"`
	Directories     int           `json:"directories"`
	DirectoryErrors int           `json:"directory_errors"`
	Links           int           `json:"links"`
	Duplicates      int           `json:"duplicates"`
	Profiles        int           `json:"profiles"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	Fallbacks       int           `json:"fallbacks"`
	Partial         int           `json:"partial"`
	Emitted         int           `json:"emitted"`
	Duration        time.Duration `json:"duration"`
}

// Pipeline turns directory leaves into professor records. A Pipeline holds no
// per-run state and may be reused.
type Pipeline struct {
	fallback professor.InterestExtractor
	cfg      Config
	logger   *zap.Logger
}

// New builds a Pipeline. fallback may be nil to disable LLM extraction.
func New(fallback professor.InterestExtractor, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{fallback: fallback, cfg: cfg, logger: logger.Named("pipeline")}
}

// Run walks dir in order and returns every emittable record. Leaves are
// processed one at a time; a failed directory or profile is logged and skipped.
// Cancelling ctx stops the walk and returns what was collected so far.
func (p *Pipeline) Run(ctx context.Context, ex professor.Extractor, dir Directory) ([]professor.Record, Stats) {
	start := time.Now()
	university := ex.University()
	logger := p.logger.With(zap.String("university", university))

	stats := Stats{Faculties: dir.Faculties()}
	var records []professor.Record
	for _, leaf := range dir {
		if ctx.Err() != nil {
			logger.Warn("run cancelled", zap.Error(ctx.Err()))
			break
		}
		if leaf.Department != "" {
			stats.Departments++
		}
		stats.Directories++
		logger.Info("processing directory",
			zap.String("faculty", leaf.Faculty),
			zap.String("department", leaf.Department),
			zap.String("url", leaf.URL),
		)
		records = append(records, p.crawlDirectory(ctx, ex, leaf, &stats, logger)...)
	}
	stats.Duration = time.Since(start)
	logger.Info("run finished",
		zap.Int("directories", stats.Directories),
		zap.Int("profiles", stats.Profiles),
		zap.Int("emitted", stats.Emitted),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("partial", stats.Partial),
		zap.Duration("duration", stats.Duration),
	)
	return records, stats
}

// crawlDirectory handles one leaf. The visited set lives for exactly one directory crawl.
func (p *Pipeline) crawlDirectory(
	ctx context.Context,
	ex professor.Extractor,
	leaf Leaf,
	stats *Stats,
	logger *zap.Logger,
) []professor.Record {
	start := time.Now()
	req := professor.DirectoryRequest{URL: leaf.URL, Faculty: leaf.Faculty, Department: leaf.Department}
	links, err := ex.ListProfiles(ctx, req)
	if err != nil {
		stats.DirectoryErrors++
		logger.Warn("directory fetch failed", zap.String("url", leaf.URL), zap.Error(err))
		p.emit(ctx, progress.Event{
			Stage: progress.StageDirectory, University: ex.University(),
			Faculty: leaf.Faculty, Department: leaf.Department, URL: leaf.URL,
			Dur: time.Since(start), Note: err.Error(),
		})
		return nil
	}
	if len(links) == 0 && p.cfg.LinkFallback && p.fallback != nil {
		for _, u := range p.fallback.ProfileLinks(ctx, leaf.URL) {
			links = append(links, professor.Link{URL: u, Faculty: leaf.Faculty, Department: leaf.Department})
		}
		logger.Info("llm link discovery", zap.String("url", leaf.URL), zap.Int("links", len(links)))
	}
	stats.Links += len(links)
	p.emit(ctx, progress.Event{
		Stage: progress.StageDirectory, University: ex.University(),
		Faculty: leaf.Faculty, Department: leaf.Department, URL: leaf.URL,
		Links: len(links), Dur: time.Since(start),
	})

	visited := professor.NewVisited()
	var records []professor.Record
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		if !visited.Add(link.URL) {
			stats.Duplicates++
			continue
		}
		if rec, ok := p.processProfile(ctx, ex, link, stats, logger); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (p *Pipeline) processProfile(
	ctx context.Context,
	ex professor.Extractor,
	link professor.Link,
	stats *Stats,
	logger *zap.Logger,
) (professor.Record, bool) {
	university := ex.University()
	start := time.Now()
	observe := func(outcome string) {
		metrics.ObserveProfile(university, outcome)
		p.emit(ctx, progress.Event{
			Stage: progress.StageProfile, University: university,
			Faculty: link.Faculty, Department: link.Department, URL: link.URL,
			Outcome: outcome, Dur: time.Since(start),
		})
	}
	stats.Profiles++
	profile, err := ex.ExtractProfile(ctx, link)
	if err != nil {
		stats.Failed++
		observe("failed")
		logger.Warn("profile fetch failed", zap.String("url", link.URL), zap.Error(err))
		return professor.Record{}, false
	}

	interests := cleanInterests(profile.Interests)
	if len(interests) == 0 {
		switch {
		case profile.SkipFallback:
			logger.Info("no interests and no biography, skipping", zap.String("url", link.URL))
		case p.fallback != nil:
			stats.Fallbacks++
			interests = cleanInterests(p.fallback.Interests(ctx, professor.Source{URL: link.URL}, p.cfg.Strategy))
		}
	}

	rec := professor.Record{
		Name:              strings.TrimSpace(profile.Name),
		University:        university,
		Faculty:           link.Faculty,
		Department:        link.Department,
		Website:           link.URL,
		Email:             strings.TrimSpace(profile.Email),
		ResearchInterests: interests,
	}
	if !rec.Emittable() {
		stats.Skipped++
		observe("no_interests")
		logger.Debug("no research interests found", zap.String("url", link.URL))
		return professor.Record{}, false
	}
	if p.cfg.RequireName && rec.Name == "" {
		stats.Skipped++
		observe("nameless")
		logger.Warn("dropping record without a name", zap.String("url", link.URL))
		return professor.Record{}, false
	}
	if rec.Partial() {
		stats.Partial++
		observe("partial")
		logger.Warn("emitting partial record",
			zap.String("url", link.URL),
			zap.Bool("has_name", rec.Name != ""),
			zap.Bool("has_email", rec.Email != ""),
		)
	} else {
		observe("emitted")
	}
	stats.Emitted++
	return rec, true
}

func (p *Pipeline) emit(ctx context.Context, evt progress.Event) {
	if p.cfg.Progress == nil {
		return
	}
	evt.RunID = progress.RunID(ctx)
	if evt.RunID == "" {
		return
	}
	evt.TS = time.Now().UTC()
	p.cfg.Progress.Emit(evt)
}

// cleanInterests trims phrases, drops blanks and removes exact repeats.
func cleanInterests(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
