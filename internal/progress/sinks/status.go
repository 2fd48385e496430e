package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/ccslice/internal/progress"
)

// StatusSink keeps the latest folded progress.Status for the status endpoint.
type StatusSink struct {
	mu     sync.RWMutex
	status progress.Status
}

// NewStatusSink constructs an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{}
}

// Consume folds the batch into the current status.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.status.Apply(evt)
	}
	return nil
}

// Status returns a copy of the current view.
func (s *StatusSink) Status() progress.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	if out.FinishedAt != nil {
		t := *out.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
