package store

import (
	"context"
	"time"
)

// RunStatus mirrors the retrieval_sessions status column.
type RunStatus string

// Session statuses persisted in retrieval_sessions.status.
const (
	RunRunning     RunStatus = "running"
	RunSuccess     RunStatus = "success"
	RunError       RunStatus = "error"
	RunInterrupted RunStatus = "interrupted"
)

// SessionRun is the persisted outcome of one retrieval session.
type SessionRun struct {
	// ID is the session identifier shared with the document catalog.
	ID string
	// CrawlID names the partition the session queried.
	CrawlID string
	Status  RunStatus
	// StartedAt captures when the session was first marked running.
	StartedAt time.Time
	// FinishedAt stays zero until the session ends.
	FinishedAt       time.Time
	ShardsAttempted  int
	ShardsCompleted  int
	Matches          int
	RecordsRequested int
	DocumentsWritten int
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage string
}

// SessionRepository persists session progress snapshots. Calls are upserts
// keyed by SessionRun.ID so repeated snapshots are idempotent.
type SessionRepository interface {
	RecordSession(ctx context.Context, run SessionRun) error
}
