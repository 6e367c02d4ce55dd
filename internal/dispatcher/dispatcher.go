// Package dispatcher fans queued runs out to a pool of workers.
package dispatcher

import (
	"context"
	"sync"
)

// Worker consumes the run queue until ctx finishes.
type Worker interface {
	Work(ctx context.Context)
}

// Dispatcher runs a fixed number of worker loops.
type Dispatcher struct {
	workers []Worker
}

// New creates a Dispatcher running one loop per entry in workers.
func New(workers ...Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Replicate starts n loops of the same worker. Workers must be safe for concurrent use.
func Replicate(w Worker, n int) *Dispatcher {
	if n <= 0 {
		n = 1
	}
	workers := make([]Worker, n)
	for i := range workers {
		workers[i] = w
	}
	return New(workers...)
}

// Run starts all workers and blocks until every loop has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Worker) {
			defer wg.Done()
			wk.Work(ctx)
		}(w)
	}
	wg.Wait()
}

// Size reports how many worker loops Run starts.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
