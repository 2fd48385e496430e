// Package dispatcher fans a finite batch of selected records out to a pool of
// fetch workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// Runner consumes the queue until it is closed and drained or ctx ends.
type Runner interface {
	Run(ctx context.Context)
}

// ClosableQueue is a Queue that can stop accepting items.
type ClosableQueue interface {
	ccindex.Queue
	Close()
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   ClosableQueue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue ClosableQueue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one of them returns.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Runner) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item ccindex.FetchItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Dispatch enqueues items in order while the workers drain the queue, then
// closes the queue and waits for the workers. It returns how many items were
// handed to the queue; enqueueing stops at the first error.
func (d *Dispatcher) Dispatch(ctx context.Context, items []ccindex.FetchItem) (int, error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	enqueued := 0
	var enqueueErr error
	for _, item := range items {
		if err := d.Enqueue(ctx, item); err != nil {
			enqueueErr = err
			break
		}
		enqueued++
	}
	d.queue.Close()
	<-done
	return enqueued, enqueueErr
}
