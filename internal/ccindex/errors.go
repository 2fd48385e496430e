package ccindex

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrNotFound    = errors.New("not found")
	ErrFormat      = errors.New("unexpected format")
	ErrShardRead   = errors.New("shard read failed")
	ErrRangeFetch  = errors.New("range fetch failed")
	ErrDecode      = errors.New("record decode failed")
	ErrQueueClosed = errors.New("queue closed")
)

// NotFoundError reports a crawl partition that does not resolve to a manifest.
type NotFoundError struct {
	Partition CrawlPartition
	URL       string
	Reason    string
}

func (e *NotFoundError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("partition %s not found at %s: %s", e.Partition, e.URL, e.Reason)
	}
	return fmt.Sprintf("partition %s not found: %s", e.Partition, e.Reason)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FormatError reports a manifest or shard that is not the expected structure.
type FormatError struct {
	Source string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format error in %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("format error in %s: %s", e.Source, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is matches ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ShardReadError reports a shard scan aborted after RowsExamined rows.
type ShardReadError struct {
	Shard        IndexShardRef
	RowsExamined int64
	Err          error
}

func (e *ShardReadError) Error() string {
	return fmt.Sprintf("shard %d (%s) aborted after %d rows: %v", e.Shard.Index, e.Shard.Path, e.RowsExamined, e.Err)
}

func (e *ShardReadError) Unwrap() error { return e.Err }

// Is matches ErrShardRead.
func (e *ShardReadError) Is(target error) bool { return target == ErrShardRead }

// RangeFetchError reports a failed or short ranged read for one record.
type RangeFetchError struct {
	Record     IndexRecord
	StatusCode int
	Received   int64
	Reason     string
	Err        error
}

func (e *RangeFetchError) Error() string {
	msg := fmt.Sprintf("range fetch %s [%d+%d]: %s", e.Record.WARCFilename, e.Record.WARCOffset, e.Record.WARCLength, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RangeFetchError) Unwrap() error { return e.Err }

// Is matches ErrRangeFetch.
func (e *RangeFetchError) Is(target error) bool { return target == ErrRangeFetch }

// DecodeError reports archive bytes that do not parse as a single record.
type DecodeError struct {
	Record IndexRecord
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s [%d+%d]: %v", e.Record.WARCFilename, e.Record.WARCOffset, e.Record.WARCLength, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// IsFatal reports whether err ends the whole query rather than one shard or record.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrFormat)
}
