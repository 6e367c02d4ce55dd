// Package runs schedules and executes professor extraction runs.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/professor-crawler/internal/pipeline"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// Status is a run's lifecycle state.
type Status string

// Run status values persisted in the run store.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when a run ID is unknown.
	ErrNotFound = errors.New("run not found")
	// ErrExists is returned when a run ID is reused.
	ErrExists = errors.New("run already exists")
	// ErrQueueClosed is returned by Queue.Dequeue once no more runs will arrive.
	ErrQueueClosed = errors.New("queue closed")
)

// Request is what a client asks for.
type Request struct {
	University string `json:"university"`
	// Persist writes emitted records to the professors table.
	Persist bool `json:"persist"`
	// Embed computes and stores research interest embeddings after persisting.
	Embed bool `json:"embed"`
}

// Run is one execution of the pipeline for one university.
type Run struct {
	ID          string                 `json:"id"`
	Request     Request                `json:"request"`
	Status      Status                 `json:"status"`
	Submitted   time.Time              `json:"submitted_at"`
	Started     *time.Time             `json:"started_at,omitempty"`
	Finished    *time.Time             `json:"finished_at,omitempty"`
	ErrorText   string                 `json:"error_text,omitempty"`
	Stats       pipeline.Stats         `json:"stats"`
	Professors  *professor.BatchReport `json:"professors,omitempty"`
	Interests   *professor.BatchReport `json:"interests,omitempty"`
	SnapshotURI string                 `json:"snapshot_uri,omitempty"`
}

// Item is a queued run.
type Item struct {
	RunID   string
	Request Request
}

// Store persists run state.
type Store interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// Queue hands runs to workers.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
}
