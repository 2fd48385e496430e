package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSessionStart Stage = "SESSION_START"
	StageShardDone    Stage = "SHARD_DONE"
	StageShardFailed  Stage = "SHARD_FAILED"
	StageSelected     Stage = "RECORDS_SELECTED"
	StageRecordDone   Stage = "RECORD_DONE"
	StageSessionDone  Stage = "SESSION_DONE"
	StageSessionError Stage = "SESSION_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for record completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single component of session progress.
type Event struct {
	// SessionID uniquely identifies a session using the 16-byte UUID form.
	SessionID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle, shard or record milestone occurred.
	Stage Stage
	// CrawlID names the partition; set on session events.
	CrawlID string
	// Shard is the manifest position of the shard for shard events.
	Shard int
	// Done and Total are running counters for the current phase
	// (shards scanned of selected, records finished of requested).
	Done  int
	Total int
	// Matches is the running match total after a shard merge.
	Matches int
	// Rows is the number of index rows examined by one shard.
	Rows int64
	// URL and Site identify the record for record events.
	URL  string
	Site string
	// Outcome is the last pipeline stage a record reached ("done" on success).
	Outcome string
	// Bytes carries the archive bytes transferred for the record.
	Bytes int64
	// StatusClass groups the archived HTTP status.
	StatusClass StatusClass
	// Dur captures latency for records and session completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == [16]byte{} {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionError, StageSelected:
	case StageShardDone, StageShardFailed:
		if e.Shard < 0 {
			return errors.New("shard index must be >= 0")
		}
	case StageRecordDone:
		if e.Outcome == "" {
			return errors.New("record done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Done < 0 || e.Total < 0 {
		return errors.New("counters must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// SessionUUID converts the binary session ID to uuid.UUID for repositories.
func (e Event) SessionUUID() uuid.UUID {
	return uuid.UUID(e.SessionID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for record events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
