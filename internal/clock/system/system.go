// Package system provides the wall clock used to stamp runs.
package system

import "time"

// Clock implements professor.Clock. Timestamps are UTC and truncated to
// microseconds so they survive a round trip through Postgres timestamptz.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
