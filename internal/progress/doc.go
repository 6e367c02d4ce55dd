// Package progress carries live run events from the pipeline to pluggable
// sinks. Emit never blocks; a background goroutine batches events and fans
// them out.
package progress
