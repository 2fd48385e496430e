package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/dispatcher"
	queuememory "github.com/JakeFAU/ccslice/internal/queue/memory"
	"github.com/JakeFAU/ccslice/internal/worker"
)

// Fetch retrieves the first MaxRecords of records through a bounded worker
// pool and writes one document per successful record. Per-record failures
// are counted, not returned. Canceling ctx stops new records from starting.
func (s *Session) Fetch(ctx context.Context, records []ccindex.IndexRecord) (worker.TallySnapshot, error) {
	if s.deps.Fetcher == nil || s.deps.Decoder == nil || s.deps.Extractor == nil {
		return worker.TallySnapshot{}, errors.New("fetch requires a fetcher, decoder and extractor")
	}
	selected := records
	if s.opts.MaxRecords >= 0 && s.opts.MaxRecords < len(records) {
		selected = records[:s.opts.MaxRecords]
	}
	items := make([]ccindex.FetchItem, len(selected))
	for i, rec := range selected {
		items[i] = ccindex.FetchItem{Seq: i, Record: rec}
	}
	s.summary.Fetch = &FetchSummary{RecordsRequested: len(items)}
	s.reporter.Selected(len(items))
	if len(items) == 0 {
		return worker.TallySnapshot{}, nil
	}

	queue := queuememory.NewQueue(s.opts.QueueDepth)
	tally := &worker.Tally{}
	cfg := worker.Config{
		SessionID:  s.id,
		CrawlID:    s.opts.Partition.CrawlID,
		BlobPrefix: s.opts.OutputPrefix,
		Topic:      s.opts.Topic,
	}
	workers := make([]dispatcher.Runner, 0, s.opts.FetchConcurrency)
	for i := 0; i < s.opts.FetchConcurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			s.deps.Fetcher,
			s.deps.Decoder,
			s.deps.Extractor,
			s.deps.Blobs,
			s.deps.Documents,
			s.deps.Publisher,
			s.deps.Hasher,
			s.deps.Clock,
			s.deps.IDs,
			tally,
			s.reporter,
			cfg,
			s.logger.Named("worker").With(zap.Int("worker", i)),
		))
	}
	s.logger.Info("fetching records",
		zap.Int("requested", len(items)),
		zap.Int("available", len(records)),
		zap.Int("workers", len(workers)),
	)

	enqueued, err := dispatcher.New(queue, workers).Dispatch(ctx, items)
	snap := tally.Snapshot()
	s.recordFetch(snap, enqueued)
	if err != nil && ctx.Err() == nil {
		return snap, fmt.Errorf("dispatch records: %w", err)
	}
	if ctx.Err() != nil && snap.Finished() < int64(len(items)) {
		s.summary.Interrupted = true
		s.logger.Warn("fetch interrupted",
			zap.Int64("records_finished", snap.Finished()),
			zap.Int("records_requested", len(items)),
		)
	}
	return snap, nil
}

func (s *Session) recordFetch(snap worker.TallySnapshot, enqueued int) {
	f := s.summary.Fetch
	f.RecordsEnqueued = enqueued
	f.RecordsFetched = snap.Fetched
	f.RecordsDecoded = snap.Decoded
	f.DocumentsExtracted = snap.Extracted
	f.DocumentsWritten = snap.Written
	f.Counters = snap
}
