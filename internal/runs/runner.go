package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/metrics"
	"github.com/JakeFAU/professor-crawler/internal/pipeline"
	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/progress"
)

var (
	// ErrUnknownUniversity is returned when no directory is configured for the requested name.
	ErrUnknownUniversity = errors.New("no directory configured for university")
	// ErrPersistenceDisabled is returned when a run asks to persist without a database.
	ErrPersistenceDisabled = errors.New("persistence is not configured")
)

// Directories resolves a university to its directory configuration.
type Directories interface {
	Directory(name string) (pipeline.Directory, bool)
}

// RouteFunc resolves a university to its extractor.
type RouteFunc func(university string) (professor.Extractor, error)

// Crawler runs one extractor over one directory.
type Crawler interface {
	Run(ctx context.Context, ex professor.Extractor, dir pipeline.Directory) ([]professor.Record, pipeline.Stats)
}

// ProfessorStore persists records and their embedded interests.
type ProfessorStore interface {
	SaveProfessors(ctx context.Context, records []professor.Record) professor.BatchReport
	SaveResearchInterests(ctx context.Context, university string, emb professor.Embedder) (professor.BatchReport, error)
}

// BlobStore writes run snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config controls Runner behavior.
type Config struct {
	// SnapshotPrefix is prepended to snapshot object paths.
	SnapshotPrefix string
	// Topic receives a Notice when a run finishes. Empty disables notifications.
	Topic string
	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration
}

// Deps are the collaborators a Runner needs. Professors, Embedder, Blobs,
// Publisher and Progress are optional.
type Deps struct {
	Store       Store
	Queue       Queue
	Directories Directories
	Route       RouteFunc
	Crawler     Crawler
	Professors  ProfessorStore
	Embedder    professor.Embedder
	Blobs       BlobStore
	Publisher   Publisher
	Clock       professor.Clock
	IDs         professor.IDGenerator
	Progress    progress.Emitter
}

// Runner creates runs and executes them.
type Runner struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(deps Deps, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{deps: deps, cfg: cfg, logger: logger.Named("runner")}
}

// Create validates req and records a queued run.
func (r *Runner) Create(ctx context.Context, req Request) (Run, error) {
	if _, ok := r.deps.Directories.Directory(req.University); !ok {
		return Run{}, fmt.Errorf("%w: %q", ErrUnknownUniversity, req.University)
	}
	if _, err := r.deps.Route(req.University); err != nil {
		return Run{}, fmt.Errorf("route university: %w", err)
	}
	if (req.Persist || req.Embed) && r.deps.Professors == nil {
		return Run{}, ErrPersistenceDisabled
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		return Run{}, fmt.Errorf("new run id: %w", err)
	}
	run := Run{
		ID:        id,
		Request:   req,
		Status:    StatusQueued,
		Submitted: r.deps.Clock.Now(),
	}
	if err := r.deps.Store.CreateRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Submit creates a run and queues it for a worker.
func (r *Runner) Submit(ctx context.Context, req Request) (Run, error) {
	run, err := r.Create(ctx, req)
	if err != nil {
		return Run{}, err
	}
	if err := r.deps.Queue.Enqueue(ctx, Item{RunID: run.ID, Request: req}); err != nil {
		run.Status = StatusFailed
		run.ErrorText = err.Error()
		if uerr := r.deps.Store.UpdateRun(ctx, run); uerr != nil {
			r.logger.Error("mark unqueued run failed", zap.String("run_id", run.ID), zap.Error(uerr))
		}
		return Run{}, fmt.Errorf("queue run: %w", err)
	}
	r.logger.Info("run queued", zap.String("run_id", run.ID), zap.String("university", req.University))
	return run, nil
}

// Work blocks, executing queued runs until the context finishes.
func (r *Runner) Work(ctx context.Context) {
	for {
		item, err := r.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrQueueClosed) {
				return
			}
			r.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		r.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		r.Execute(ctx, item)
	}
}

// Execute runs one queued item to completion and returns the final run state.
// Directory and profile failures are absorbed by the pipeline; only missing
// configuration, snapshot or embedding errors fail the run.
func (r *Runner) Execute(ctx context.Context, item Item) Run {
	logger := r.logger.With(zap.String("run_id", item.RunID), zap.String("university", item.Request.University))

	run, err := r.deps.Store.GetRun(ctx, item.RunID)
	if err != nil {
		logger.Error("load run failed", zap.Error(err))
		run = Run{ID: item.RunID, Request: item.Request, Submitted: r.deps.Clock.Now()}
	}
	started := r.deps.Clock.Now()
	run.Status = StatusRunning
	run.Started = &started
	r.save(ctx, run, logger)
	ctx = progress.WithRunID(ctx, run.ID)
	r.emit(ctx, progress.StageRunStart, run, "")

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	if err := r.execute(ctx, &run, logger); err != nil {
		run.Status = StatusFailed
		if ctx.Err() != nil {
			run.Status = StatusCanceled
		}
		run.ErrorText = err.Error()
		logger.Error("run failed", zap.Error(err))
	} else {
		run.Status = StatusSucceeded
	}
	finished := r.deps.Clock.Now()
	run.Finished = &finished

	// The run context may be done; the final state must still be recorded.
	final := context.WithoutCancel(ctx)
	r.save(final, run, logger)
	if run.Status == StatusSucceeded {
		r.emit(final, progress.StageRunDone, run, "")
	} else {
		r.emit(final, progress.StageRunError, run, run.ErrorText)
	}
	metrics.ObserveRun(string(run.Status))
	r.notify(final, run, logger)
	logger.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("emitted", run.Stats.Emitted),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return run
}

func (r *Runner) execute(ctx context.Context, run *Run, logger *zap.Logger) error {
	university := run.Request.University
	dir, ok := r.deps.Directories.Directory(university)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUniversity, university)
	}
	ex, err := r.deps.Route(university)
	if err != nil {
		return fmt.Errorf("route university: %w", err)
	}

	records, stats := r.deps.Crawler.Run(ctx, ex, dir)
	run.Stats = stats
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl interrupted after %d records: %w", len(records), err)
	}

	if r.deps.Blobs != nil {
		uri, err := r.snapshot(ctx, run.ID, records)
		if err != nil {
			return err
		}
		run.SnapshotURI = uri
		logger.Info("snapshot written", zap.String("uri", uri))
	}

	if run.Request.Persist && r.deps.Professors != nil {
		report := r.deps.Professors.SaveProfessors(ctx, records)
		run.Professors = &report
		if !report.OK() {
			logger.Warn("some professor batches failed", zap.Ints("batches", report.Failed))
		}
	}
	if run.Request.Embed && r.deps.Professors != nil {
		report, err := r.deps.Professors.SaveResearchInterests(ctx, university, r.deps.Embedder)
		if err != nil {
			return fmt.Errorf("save research interests: %w", err)
		}
		run.Interests = &report
	}
	return nil
}

// SnapshotPath is where a run's records are written.
func (r *Runner) SnapshotPath(runID string) string {
	prefix := strings.Trim(r.cfg.SnapshotPrefix, "/")
	return path.Join(prefix, "runs", runID, "professors.json")
}

func (r *Runner) snapshot(ctx context.Context, runID string, records []professor.Record) (string, error) {
	if records == nil {
		records = []professor.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	uri, err := r.deps.Blobs.PutObject(ctx, r.SnapshotPath(runID), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	return uri, nil
}

func (r *Runner) emit(ctx context.Context, stage progress.Stage, run Run, note string) {
	if r.deps.Progress == nil {
		return
	}
	r.deps.Progress.Emit(progress.Event{
		RunID:      progress.RunID(ctx),
		TS:         r.deps.Clock.Now(),
		Stage:      stage,
		University: run.Request.University,
		Note:       note,
	})
}

func (r *Runner) save(ctx context.Context, run Run, logger *zap.Logger) {
	if err := r.deps.Store.UpdateRun(ctx, run); err != nil {
		logger.Error("update run failed", zap.String("status", string(run.Status)), zap.Error(err))
	}
}

// Notice is published when a run finishes.
type Notice struct {
	RunID       string    `json:"run_id"`
	University  string    `json:"university"`
	Status      Status    `json:"status"`
	Emitted     int       `json:"emitted"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Attributes exposes filterable message attributes.
func (n Notice) Attributes() map[string]string {
	return map[string]string{"university": n.University, "status": string(n.Status)}
}

func (r *Runner) notify(ctx context.Context, run Run, logger *zap.Logger) {
	if r.cfg.Topic == "" || r.deps.Publisher == nil {
		return
	}
	notice := Notice{
		RunID:       run.ID,
		University:  run.Request.University,
		Status:      run.Status,
		Emitted:     run.Stats.Emitted,
		SnapshotURI: run.SnapshotURI,
	}
	if run.Finished != nil {
		notice.FinishedAt = *run.Finished
	}
	id, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, notice)
	if err != nil {
		logger.Warn("publish run notice failed", zap.Error(err))
		return
	}
	logger.Debug("run notice published", zap.String("message_id", id))
}
