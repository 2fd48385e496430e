package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/ccslice/internal/worker"
)

// Session phases reported by Status.
const (
	PhaseScanning = "scanning"
	PhaseFetching = "fetching"
	PhaseDone     = "done"
	PhaseError    = "error"
)

// Status is the folded view of one session's events.
type Status struct {
	SessionID        string     `json:"session_id"`
	CrawlID          string     `json:"crawl_id"`
	Phase            string     `json:"phase"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ShardsTotal      int        `json:"shards_total"`
	ShardsScanned    int        `json:"shards_scanned"`
	ShardsFailed     int        `json:"shards_failed"`
	RowsExamined     int64      `json:"rows_examined"`
	Matches          int        `json:"matches"`
	RecordsRequested int        `json:"records_requested"`
	RecordsDone      int        `json:"records_done"`
	DocumentsWritten int        `json:"documents_written"`
	BytesFetched     int64      `json:"bytes_fetched"`
	Interrupted      bool       `json:"interrupted"`
	Error            string     `json:"error,omitempty"`
}

// Apply folds evt into s. Events for a different session reset the view.
func (s *Status) Apply(evt Event) {
	id := uuid.UUID(evt.SessionID).String()
	if s.SessionID != id {
		*s = Status{SessionID: id, CrawlID: evt.CrawlID, StartedAt: evt.TS}
	}
	if evt.TS.After(s.UpdatedAt) {
		s.UpdatedAt = evt.TS
	}
	switch evt.Stage {
	case StageSessionStart:
		s.Phase = PhaseScanning
		s.StartedAt = evt.TS
		s.ShardsTotal = evt.Total
		if evt.CrawlID != "" {
			s.CrawlID = evt.CrawlID
		}
	case StageShardDone:
		s.ShardsScanned++
		s.RowsExamined += evt.Rows
		s.Matches = max(s.Matches, evt.Matches)
	case StageShardFailed:
		s.ShardsFailed++
		s.RowsExamined += evt.Rows
	case StageSelected:
		s.Phase = PhaseFetching
		s.RecordsRequested = evt.Total
		s.RecordsDone = 0
		s.DocumentsWritten = 0
	case StageRecordDone:
		s.RecordsDone++
		s.BytesFetched += evt.Bytes
		if evt.Outcome == worker.StageDone {
			s.DocumentsWritten++
		}
	case StageSessionDone:
		s.Phase = PhaseDone
		s.finish(evt.TS)
		s.Interrupted = evt.Note == "interrupted"
		s.Matches = max(s.Matches, evt.Matches)
	case StageSessionError:
		s.Phase = PhaseError
		s.finish(evt.TS)
		s.Error = evt.Note
	}
}

// Finished reports whether the session has ended.
func (s Status) Finished() bool {
	return s.FinishedAt != nil
}

func (s *Status) finish(at time.Time) {
	t := at
	s.FinishedAt = &t
}
