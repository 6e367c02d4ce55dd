package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/professor-crawler/internal/runs"
)

// RunStore provides an in-memory runs.Store.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]runs.Run
	now  func() time.Time
}

var _ runs.Store = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]runs.Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run runs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return runs.ErrExists
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun replaces a stored run, stamping start and finish times on status changes.
func (s *RunStore) UpdateRun(_ context.Context, run runs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.runs[run.ID]
	if !ok {
		return runs.ErrNotFound
	}
	if run.Started == nil {
		run.Started = prev.Started
	}
	if run.Status == runs.StatusRunning && run.Started == nil {
		run.Started = pointerTime(s.now())
	}
	if run.Status.Terminal() && run.Finished == nil {
		run.Finished = pointerTime(s.now())
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return runs.Run{}, runs.ErrNotFound
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]runs.Run, error) {
	s.mu.RLock()
	out := make([]runs.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b runs.Run) int {
		if c := b.Submitted.Compare(a.Submitted); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
