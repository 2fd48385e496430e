// Package aggregator merges per-shard scan results into one ordered match set
// and persists it as a Parquet table.
package aggregator

import (
	"errors"
	"sort"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// ShardFailure records a shard whose scan did not complete.
type ShardFailure struct {
	Shard        ccindex.IndexShardRef
	RowsExamined int64
	Err          error
}

// Snapshot is a point-in-time view of the running counters.
type Snapshot struct {
	ShardsScanned int
	ShardsFailed  int
	RowsExamined  int64
	RowsSkipped   int64
	Matches       int
}

// MatchSet accumulates matches across shards. It is owned by a single
// collector goroutine and is not safe for concurrent use.
type MatchSet struct {
	records  []ccindex.IndexRecord
	scanned  map[int]struct{}
	failures []ShardFailure
	rows     int64
	skipped  int64
	sorted   bool
}

// New returns an empty MatchSet.
func New() *MatchSet {
	return &MatchSet{scanned: make(map[int]struct{}), sorted: true}
}

// FromRecords builds a MatchSet over previously exported records.
func FromRecords(records []ccindex.IndexRecord) *MatchSet {
	m := New()
	m.records = append(m.records, records...)
	m.sorted = false
	return m
}

// Add merges the contribution of one completed shard. A shard added twice
// contributes only once.
func (m *MatchSet) Add(result ccindex.ShardResult) {
	if !result.Complete {
		return
	}
	if _, dup := m.scanned[result.Shard.Index]; dup {
		return
	}
	m.scanned[result.Shard.Index] = struct{}{}
	m.rows += result.RowsExamined
	m.skipped += result.RowsSkipped
	if len(result.Records) == 0 {
		return
	}
	m.records = append(m.records, result.Records...)
	m.sorted = false
}

// RecordFailure notes a shard that aborted part way.
func (m *MatchSet) RecordFailure(shard ccindex.IndexShardRef, err error) {
	failure := ShardFailure{Shard: shard, Err: err}
	var sre *ccindex.ShardReadError
	if errors.As(err, &sre) {
		failure.RowsExamined = sre.RowsExamined
	}
	m.failures = append(m.failures, failure)
}

// Total is the number of matches across all scanned shards.
func (m *MatchSet) Total() int {
	return len(m.records)
}

// ShardsScanned is the number of shards that completed.
func (m *MatchSet) ShardsScanned() int {
	return len(m.scanned)
}

// Failures returns the shards that did not complete.
func (m *MatchSet) Failures() []ShardFailure {
	return append([]ShardFailure(nil), m.failures...)
}

// Records returns the matches ordered by shard index, then row.
func (m *MatchSet) Records() []ccindex.IndexRecord {
	if !m.sorted {
		sort.SliceStable(m.records, func(i, j int) bool {
			a, b := m.records[i], m.records[j]
			if a.ShardIndex != b.ShardIndex {
				return a.ShardIndex < b.ShardIndex
			}
			return a.Row < b.Row
		})
		m.sorted = true
	}
	return append([]ccindex.IndexRecord(nil), m.records...)
}

// First returns up to k records in deterministic order.
func (m *MatchSet) First(k int) []ccindex.IndexRecord {
	records := m.Records()
	if k < 0 || k >= len(records) {
		return records
	}
	return records[:k]
}

// Snapshot returns the current counters.
func (m *MatchSet) Snapshot() Snapshot {
	return Snapshot{
		ShardsScanned: len(m.scanned),
		ShardsFailed:  len(m.failures),
		RowsExamined:  m.rows,
		RowsSkipped:   m.skipped,
		Matches:       len(m.records),
	}
}
