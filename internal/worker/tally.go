package worker

import "sync/atomic"

// Tally counts per-record outcomes across all workers of a batch.
type Tally struct {
	Dequeued      atomic.Int64
	Fetched       atomic.Int64
	FetchFailed   atomic.Int64
	Decoded       atomic.Int64
	DecodeFailed  atomic.Int64
	Skipped       atomic.Int64
	Extracted     atomic.Int64
	ExtractFailed atomic.Int64
	Written       atomic.Int64
	WriteFailed   atomic.Int64
	CatalogFailed atomic.Int64
	PublishFailed atomic.Int64
	BytesFetched  atomic.Int64
}

// TallySnapshot is a plain copy of a Tally.
type TallySnapshot struct {
	Dequeued      int64 `json:"dequeued" yaml:"dequeued"`
	Fetched       int64 `json:"fetched" yaml:"fetched"`
	FetchFailed   int64 `json:"fetch_failed" yaml:"fetch_failed"`
	Decoded       int64 `json:"decoded" yaml:"decoded"`
	DecodeFailed  int64 `json:"decode_failed" yaml:"decode_failed"`
	Skipped       int64 `json:"skipped" yaml:"skipped"`
	Extracted     int64 `json:"extracted" yaml:"extracted"`
	ExtractFailed int64 `json:"extract_failed" yaml:"extract_failed"`
	Written       int64 `json:"written" yaml:"written"`
	WriteFailed   int64 `json:"write_failed" yaml:"write_failed"`
	CatalogFailed int64 `json:"catalog_failed" yaml:"catalog_failed"`
	PublishFailed int64 `json:"publish_failed" yaml:"publish_failed"`
	BytesFetched  int64 `json:"bytes_fetched" yaml:"bytes_fetched"`
}

// Snapshot copies the counters.
func (t *Tally) Snapshot() TallySnapshot {
	return TallySnapshot{
		Dequeued:      t.Dequeued.Load(),
		Fetched:       t.Fetched.Load(),
		FetchFailed:   t.FetchFailed.Load(),
		Decoded:       t.Decoded.Load(),
		DecodeFailed:  t.DecodeFailed.Load(),
		Skipped:       t.Skipped.Load(),
		Extracted:     t.Extracted.Load(),
		ExtractFailed: t.ExtractFailed.Load(),
		Written:       t.Written.Load(),
		WriteFailed:   t.WriteFailed.Load(),
		CatalogFailed: t.CatalogFailed.Load(),
		PublishFailed: t.PublishFailed.Load(),
		BytesFetched:  t.BytesFetched.Load(),
	}
}

// Finished is the number of records that reached a terminal outcome.
func (s TallySnapshot) Finished() int64 {
	return s.FetchFailed + s.DecodeFailed + s.Skipped + s.ExtractFailed + s.WriteFailed + s.Written
}
