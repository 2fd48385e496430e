// Package memory provides the bounded in-process queue feeding fetch workers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// Queue is a bounded in-memory queue with context-aware operations. Items
// enqueued before Close are still delivered; Dequeue reports
// ccindex.ErrQueueClosed once the queue is closed and drained.
type Queue struct {
	ch      chan ccindex.FetchItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan ccindex.FetchItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item ccindex.FetchItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ccindex.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (ccindex.FetchItem, error) {
	select {
	case <-ctx.Done():
		return ccindex.FetchItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return ccindex.FetchItem{}, ccindex.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
