package ccindex

import (
	"context"
	"io"
	"time"
)

// ShardLocator resolves a partition to its ordered index shards.
type ShardLocator interface {
	Locate(ctx context.Context, partition CrawlPartition) ([]IndexShardRef, error)
}

// ShardScanner performs a column-projected, filtered scan of one shard.
type ShardScanner interface {
	Scan(ctx context.Context, shard IndexShardRef, pred Predicate) (ShardResult, error)
}

// ShardOpener exposes a remote shard as random-access bytes.
type ShardOpener interface {
	Open(ctx context.Context, shard IndexShardRef) (io.ReaderAt, int64, error)
}

// RangeFetcher retrieves exactly the archive bytes of one record.
type RangeFetcher interface {
	Fetch(ctx context.Context, record IndexRecord) (FetchedRecord, error)
}

// RecordDecoder unwraps fetched bytes into a single archive record.
type RecordDecoder interface {
	Decode(fetched FetchedRecord) (ArchiveRecord, error)
}

// TextExtractor turns raw HTML into plain text.
type TextExtractor interface {
	Extract(body []byte, contentType string) (string, error)
}

// BlobStore writes and reads output artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// DocumentStore catalogs written documents.
type DocumentStore interface {
	RecordDocument(ctx context.Context, doc DocumentRecord) error
}

// Publisher pushes document notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for selected records.
type Queue interface {
	Enqueue(ctx context.Context, item FetchItem) error
	Dequeue(ctx context.Context) (FetchItem, error)
}

// Hasher computes digests of extracted text.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session and document IDs.
type IDGenerator interface {
	NewID() (string, error)
}
