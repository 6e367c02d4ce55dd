// Package sinks implements progress consumers: structured logging and an
// in-memory per-run tally served by the API.
package sinks
