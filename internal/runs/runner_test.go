package runs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/professor-crawler/internal/pipeline"
	"github.com/JakeFAU/professor-crawler/internal/professor"
	"github.com/JakeFAU/professor-crawler/internal/progress"
	"github.com/JakeFAU/professor-crawler/internal/progress/sinks"
	pubmemory "github.com/JakeFAU/professor-crawler/internal/publisher/memory"
	queuememory "github.com/JakeFAU/professor-crawler/internal/queue/memory"
	"github.com/JakeFAU/professor-crawler/internal/router"
	"github.com/JakeFAU/professor-crawler/internal/runs"
	"github.com/JakeFAU/professor-crawler/internal/storage/memory"
)

const university = "Test University"

type catalog map[string]pipeline.Directory

func (c catalog) Directory(name string) (pipeline.Directory, bool) {
	d, ok := c[name]
	return d, ok
}

type stubExtractor struct{}

func (stubExtractor) University() string { return university }

func (stubExtractor) ListProfiles(_ context.Context, req professor.DirectoryRequest) ([]professor.Link, error) {
	return []professor.Link{{URL: req.URL + "/ada", Faculty: req.Faculty, Department: req.Department}}, nil
}

func (stubExtractor) ExtractProfile(_ context.Context, link professor.Link) (professor.Profile, error) {
	return professor.Profile{Name: "Ada", Email: "ada@example.com", Interests: []string{"Engines"}}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("run-%d", s.n.Add(1)), nil
}

type recordingProfessors struct {
	saved    []professor.Record
	embedded []string
	embedErr error
}

func (p *recordingProfessors) SaveProfessors(_ context.Context, records []professor.Record) professor.BatchReport {
	p.saved = append(p.saved, records...)
	return professor.BatchReport{Batches: 1, Inserted: len(records)}
}

func (p *recordingProfessors) SaveResearchInterests(
	_ context.Context,
	univ string,
	_ professor.Embedder,
) (professor.BatchReport, error) {
	p.embedded = append(p.embedded, univ)
	if p.embedErr != nil {
		return professor.BatchReport{}, p.embedErr
	}
	return professor.BatchReport{Batches: 1, Inserted: 1}, nil
}

type fixture struct {
	runner *runs.Runner
	store  *memory.RunStore
	queue  *queuememory.Queue
	blobs  *memory.BlobStore
	pub    *pubmemory.Publisher
	profs  *recordingProfessors
}

func newFixture(t *testing.T, withProfessors bool) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewRunStore(),
		queue: queuememory.NewQueue(4),
		blobs: memory.NewBlobStore(),
		pub:   pubmemory.New(),
	}
	deps := runs.Deps{
		Store: f.store,
		Queue: f.queue,
		Directories: catalog{university: {
			{Faculty: "Science", URL: "https://example.edu/science"},
		}},
		Route: func(name string) (professor.Extractor, error) {
			if name != university {
				return nil, fmt.Errorf("%w: %q", router.ErrUnsupportedUniversity, name)
			}
			return stubExtractor{}, nil
		},
		Crawler:   pipeline.New(nil, pipeline.Config{}, zap.NewNop()),
		Blobs:     f.blobs,
		Publisher: f.pub,
		Clock:     fixedClock{t: time.Unix(1700000000, 0).UTC()},
		IDs:       &seqIDs{},
	}
	if withProfessors {
		f.profs = &recordingProfessors{}
		deps.Professors = f.profs
	}
	f.runner = runs.NewRunner(deps, runs.Config{SnapshotPrefix: "exports", Topic: "runs"}, zap.NewNop())
	return f
}

func TestRunnerCreateValidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.runner.Create(ctx, runs.Request{University: "Unknown College"})
	require.ErrorIs(t, err, runs.ErrUnknownUniversity)

	_, err = f.runner.Create(ctx, runs.Request{University: university, Persist: true})
	require.ErrorIs(t, err, runs.ErrPersistenceDisabled)

	run, err := f.runner.Create(ctx, runs.Request{University: university})
	require.NoError(t, err)
	require.Equal(t, runs.StatusQueued, run.Status)
}

func TestRunnerExecuteSnapshotsAndNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	ctx := context.Background()
	req := runs.Request{University: university, Persist: true, Embed: true}

	run, err := f.runner.Submit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, f.queue.Len())

	final := f.runner.Execute(ctx, runs.Item{RunID: run.ID, Request: req})
	require.Equal(t, runs.StatusSucceeded, final.Status, final.ErrorText)
	require.Equal(t, 1, final.Stats.Emitted)
	require.Equal(t, "memory://exports/runs/run-1/professors.json", final.SnapshotURI)
	require.NotNil(t, final.Professors)
	require.Equal(t, 1, final.Professors.Inserted)
	require.NotNil(t, final.Interests)

	data, ok := f.blobs.Object("exports/runs/run-1/professors.json")
	require.True(t, ok)
	var records []professor.Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Equal(t, f.profs.saved, records)
	require.Equal(t, []string{university}, f.profs.embedded)

	msgs := f.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
	var notice runs.Notice
	require.NoError(t, json.Unmarshal(msgs[0].Data, &notice))
	require.Equal(t, runs.StatusSucceeded, notice.Status)
	require.Equal(t, 1, notice.Emitted)

	stored, err := f.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, runs.StatusSucceeded, stored.Status)
	require.NotNil(t, stored.Finished)
}

func TestRunnerExecuteFailsOnEmbeddingError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	f.profs.embedErr = errors.New("quota exceeded")
	ctx := context.Background()
	req := runs.Request{University: university, Embed: true}

	run, err := f.runner.Create(ctx, req)
	require.NoError(t, err)
	final := f.runner.Execute(ctx, runs.Item{RunID: run.ID, Request: req})

	require.Equal(t, runs.StatusFailed, final.Status)
	require.Contains(t, final.ErrorText, "quota exceeded")
	require.Empty(t, f.profs.saved, "records are only saved when persistence was requested")
}

func TestRunnerWorkDrainsQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run, err := f.runner.Submit(ctx, runs.Request{University: university})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.runner.Work(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := f.store.GetRun(ctx, run.ID)
		return err == nil && got.Status == runs.StatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	f.queue.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the queue closed")
	}
}

func TestRunnerSnapshotPath(t *testing.T) {
	t.Parallel()

	r := runs.NewRunner(runs.Deps{}, runs.Config{SnapshotPrefix: "/exports/"}, nil)
	require.Equal(t, "exports/runs/abc/professors.json", r.SnapshotPath("abc"))

	r = runs.NewRunner(runs.Deps{}, runs.Config{}, nil)
	require.Equal(t, "runs/abc/professors.json", r.SnapshotPath("abc"))
}

func TestRunnerExecuteReportsProgress(t *testing.T) {
	t.Parallel()

	tally := sinks.NewTallySink(0)
	hub := progress.NewHub(progress.Config{MaxBatchWait: time.Millisecond}, tally)
	runner := runs.NewRunner(runs.Deps{
		Store:       memory.NewRunStore(),
		Queue:       queuememory.NewQueue(1),
		Directories: catalog{university: {{Faculty: "Science", URL: "https://example.edu/science"}}},
		Route: func(string) (professor.Extractor, error) {
			return stubExtractor{}, nil
		},
		Crawler:  pipeline.New(nil, pipeline.Config{Progress: hub}, zap.NewNop()),
		Clock:    fixedClock{t: time.Unix(1700000000, 0).UTC()},
		IDs:      &seqIDs{},
		Progress: hub,
	}, runs.Config{}, zap.NewNop())

	ctx := context.Background()
	run, err := runner.Create(ctx, runs.Request{University: university})
	require.NoError(t, err)
	final := runner.Execute(ctx, runs.Item{RunID: run.ID, Request: run.Request})
	require.Equal(t, runs.StatusSucceeded, final.Status)
	require.NoError(t, hub.Close(ctx))

	snap, ok := tally.Snapshot(run.ID)
	require.True(t, ok)
	require.Equal(t, progress.StageRunDone, snap.Stage)
	require.Equal(t, university, snap.University)
	require.Equal(t, 1, snap.Directories)
	require.Equal(t, 1, snap.Links)
	require.Equal(t, map[string]int{"emitted": 1}, snap.Outcomes)
}
