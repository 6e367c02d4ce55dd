package sinks

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/JakeFAU/professor-crawler/internal/progress"
)

// Snapshot is the live view of one run.
type Snapshot struct {
	RunID       string         `json:"run_id"`
	University  string         `json:"university"`
	Stage       progress.Stage `json:"stage"`
	Directories int            `json:"directories"`
	Links       int            `json:"links"`
	Profiles    int            `json:"profiles"`
	Outcomes    map[string]int `json:"outcomes"`
	LastURL     string         `json:"last_url,omitempty"`
	Note        string         `json:"note,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Done reports whether the run has finished.
func (s Snapshot) Done() bool {
	return s.Stage == progress.StageRunDone || s.Stage == progress.StageRunError
}

// TallySink folds events into one Snapshot per run. It keeps at most
// MaxRuns snapshots, evicting the oldest run first.
type TallySink struct {
	mu      sync.RWMutex
	runs    map[string]*Snapshot
	order   []string
	maxRuns int
}

// DefaultMaxRuns bounds TallySink memory when NewTallySink gets a non-positive limit.
const DefaultMaxRuns = 256

// NewTallySink builds an empty TallySink.
func NewTallySink(maxRuns int) *TallySink {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &TallySink{runs: make(map[string]*Snapshot), maxRuns: maxRuns}
}

// Consume folds the batch into the per-run snapshots.
func (s *TallySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		snap := s.snapshotLocked(evt.RunID)
		if evt.University != "" {
			snap.University = evt.University
		}
		if evt.TS.After(snap.UpdatedAt) {
			snap.UpdatedAt = evt.TS
		}
		switch evt.Stage {
		case progress.StageDirectory:
			snap.Directories++
			snap.Links += evt.Links
			snap.LastURL = evt.URL
		case progress.StageProfile:
			snap.Profiles++
			snap.Outcomes[evt.Outcome]++
			snap.LastURL = evt.URL
		case progress.StageRunError:
			snap.Note = evt.Note
		}
		// A finished run keeps its terminal stage even if late events arrive.
		if !snap.Done() {
			snap.Stage = evt.Stage
		}
	}
	return nil
}

func (s *TallySink) snapshotLocked(runID string) *Snapshot {
	if snap, ok := s.runs[runID]; ok {
		return snap
	}
	if len(s.order) >= s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
	snap := &Snapshot{RunID: runID, Outcomes: make(map[string]int)}
	s.runs[runID] = snap
	s.order = append(s.order, runID)
	return snap
}

// Snapshot returns a copy of the run's live view.
func (s *TallySink) Snapshot(runID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.runs[runID]
	if !ok {
		return Snapshot{}, false
	}
	out := *snap
	out.Outcomes = maps.Clone(snap.Outcomes)
	return out, true
}

// Close implements the Sink interface; snapshots stay readable.
func (s *TallySink) Close(context.Context) error {
	return nil
}
