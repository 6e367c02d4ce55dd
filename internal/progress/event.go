package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageDirectory Stage = "DIRECTORY_DONE"
	StageProfile   Stage = "PROFILE_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// Event is one progress observation within a run.
type Event struct {
	RunID      string
	TS         time.Time
	Stage      Stage
	University string
	Faculty    string
	Department string
	// URL is the directory page or profile the event refers to.
	URL string
	// Outcome is the profile outcome (emitted, partial, failed, ...).
	Outcome string
	// Links is the number of profile links a directory yielded.
	Links int
	Dur   time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate rejects events sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageDirectory:
		if e.URL == "" {
			return errors.New("directory event requires url")
		}
	case StageProfile:
		if e.URL == "" || e.Outcome == "" {
			return errors.New("profile event requires url and outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

type runIDKey struct{}

// WithRunID tags ctx so emitters deeper in the call chain can attribute events.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run tagged on ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
