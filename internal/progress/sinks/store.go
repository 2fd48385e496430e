package sinks

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/progress"
	"github.com/JakeFAU/ccslice/internal/store"
)

// StoreSink persists session snapshots via a store.SessionRepository. Events
// are folded per session and each touched session is upserted once per batch
// to reduce write amplification.
type StoreSink struct {
	repo     store.SessionRepository
	logger   *zap.Logger
	sessions map[[16]byte]*progress.Status
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.SessionRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger, sessions: make(map[[16]byte]*progress.Status)}
}

// Consume folds the batch and upserts every session it touched. The hub
// calls Consume from a single goroutine.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	var touched [][16]byte
	for _, evt := range batch {
		st, ok := s.sessions[evt.SessionID]
		if !ok {
			st = &progress.Status{}
			s.sessions[evt.SessionID] = st
		}
		if !slices.Contains(touched, evt.SessionID) {
			touched = append(touched, evt.SessionID)
		}
		st.Apply(evt)
	}
	for _, id := range touched {
		st := s.sessions[id]
		if err := s.repo.RecordSession(ctx, sessionRun(*st)); err != nil {
			return fmt.Errorf("record session %s: %w", st.SessionID, err)
		}
		if st.Finished() {
			delete(s.sessions, id)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func sessionRun(st progress.Status) store.SessionRun {
	run := store.SessionRun{
		ID:               st.SessionID,
		CrawlID:          st.CrawlID,
		Status:           store.RunRunning,
		StartedAt:        st.StartedAt,
		ShardsAttempted:  st.ShardsScanned + st.ShardsFailed,
		ShardsCompleted:  st.ShardsScanned,
		Matches:          st.Matches,
		RecordsRequested: st.RecordsRequested,
		DocumentsWritten: st.DocumentsWritten,
		ErrorMessage:     st.Error,
	}
	if st.FinishedAt != nil {
		run.FinishedAt = *st.FinishedAt
		switch {
		case st.Phase == progress.PhaseError:
			run.Status = store.RunError
		case st.Interrupted:
			run.Status = store.RunInterrupted
		default:
			run.Status = store.RunSuccess
		}
	}
	return run
}
