package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/ccslice/internal/worker"
)

// Summary is the final report of a session, written as summary.yaml.
type Summary struct {
	SessionID   string        `yaml:"session_id"`
	CrawlID     string        `yaml:"crawl_id"`
	Subset      string        `yaml:"subset"`
	Filter      string        `yaml:"filter"`
	StartedAt   time.Time     `yaml:"started_at"`
	FinishedAt  time.Time     `yaml:"finished_at"`
	Interrupted bool          `yaml:"interrupted"`
	Error       string        `yaml:"error,omitempty"`
	Matches     int           `yaml:"matches"`
	ExportURI   string        `yaml:"export_uri,omitempty"`
	IndexSource string        `yaml:"index_source,omitempty"`
	Scan        ScanSummary   `yaml:"scan"`
	Fetch       *FetchSummary `yaml:"fetch,omitempty"`
}

// ScanSummary separates shards attempted from shards completed.
type ScanSummary struct {
	ShardsLocated   int           `yaml:"shards_located"`
	ShardsSelected  int           `yaml:"shards_selected"`
	ShardsAttempted int           `yaml:"shards_attempted"`
	ShardsCompleted int           `yaml:"shards_completed"`
	ShardsFailed    int           `yaml:"shards_failed"`
	RowsExamined    int64         `yaml:"rows_examined"`
	RowsSkipped     int64         `yaml:"rows_skipped,omitempty"`
	Matches         int           `yaml:"matches"`
	FailedShards    []FailedShard `yaml:"failed_shards,omitempty"`
}

// FailedShard describes one shard that did not complete.
type FailedShard struct {
	Index        int    `yaml:"index"`
	Path         string `yaml:"path"`
	RowsExamined int64  `yaml:"rows_examined"`
	Error        string `yaml:"error"`
}

// FetchSummary separates records requested, fetched, decoded, extracted and
// written.
type FetchSummary struct {
	RecordsRequested   int                  `yaml:"records_requested"`
	RecordsEnqueued    int                  `yaml:"records_enqueued"`
	RecordsFetched     int64                `yaml:"records_fetched"`
	RecordsDecoded     int64                `yaml:"records_decoded"`
	DocumentsExtracted int64                `yaml:"documents_extracted"`
	DocumentsWritten   int64                `yaml:"documents_written"`
	Counters           worker.TallySnapshot `yaml:"counters"`
}

// Lines renders the human-readable totals printed at the end of a command.
func (s Summary) Lines() []string {
	lines := []string{
		fmt.Sprintf("%d of %d shards scanned (%d failed), %d matches",
			s.Scan.ShardsCompleted, s.Scan.ShardsSelected, s.Scan.ShardsFailed, s.Matches),
	}
	if s.IndexSource != "" {
		lines[0] = fmt.Sprintf("%d matches loaded from %s", s.Matches, s.IndexSource)
	}
	if s.Fetch != nil {
		lines = append(lines, fmt.Sprintf("%d of %d requested records fetched, %d decoded, %d documents written",
			s.Fetch.RecordsFetched, s.Fetch.RecordsRequested, s.Fetch.RecordsDecoded, s.Fetch.DocumentsWritten))
	}
	if s.Interrupted {
		lines = append(lines, "run interrupted before completion")
	}
	return lines
}

// Summary returns the report accumulated so far.
func (s *Session) Summary() Summary {
	out := s.summary
	out.Scan.FailedShards = append([]FailedShard(nil), s.summary.Scan.FailedShards...)
	if s.summary.Fetch != nil {
		f := *s.summary.Fetch
		out.Fetch = &f
	}
	return out
}

// UseIndex records that the match set came from a previously exported table
// instead of a scan.
func (s *Session) UseIndex(source string, matches int) {
	s.summary.IndexSource = source
	s.summary.Matches = matches
	s.summary.Scan.Matches = matches
	s.reporter.SessionStarted(0)
}

// Finish stamps the summary, reports the session outcome and writes
// summary.yaml. runErr is the error that ended the run, if any.
func (s *Session) Finish(ctx context.Context, runErr error) (Summary, error) {
	finished := s.deps.Clock.Now()
	s.summary.FinishedAt = finished
	if runErr != nil {
		s.summary.Error = runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			s.summary.Interrupted = true
		}
	}
	s.reporter.SessionFinished(s.summary.Matches, finished.Sub(s.started), s.summary.Interrupted, runErr)

	summary := s.Summary()
	data, err := yaml.Marshal(summary)
	if err != nil {
		return summary, fmt.Errorf("encode summary: %w", err)
	}
	// The summary is written even after an interrupt.
	uri, err := s.deps.Blobs.PutObject(context.WithoutCancel(ctx), s.SummaryPath(), "application/yaml", bytes.NewReader(data))
	if err != nil {
		return summary, fmt.Errorf("write summary: %w", err)
	}
	s.logger.Info("summary written", zap.String("uri", uri))
	return summary, nil
}
