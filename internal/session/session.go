// Package session orchestrates one retrieval session: locate and scan index
// shards into a match set, export it, fetch the first records and write the
// run summary.
package session

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/clock/system"
	iduuid "github.com/JakeFAU/ccslice/internal/id/uuid"
	"github.com/JakeFAU/ccslice/internal/progress"
)

const (
	defaultScanConcurrency  = 2
	defaultFetchConcurrency = 4
	defaultQueueDepth       = 64
	summaryName             = "summary.yaml"
)

// Deps are the collaborators a session drives. Documents, Publisher and
// Emitter are optional.
type Deps struct {
	Locator   ccindex.ShardLocator
	Scanner   ccindex.ShardScanner
	Fetcher   ccindex.RangeFetcher
	Decoder   ccindex.RecordDecoder
	Extractor ccindex.TextExtractor
	Blobs     ccindex.BlobStore
	Documents ccindex.DocumentStore
	Publisher ccindex.Publisher
	Hasher    ccindex.Hasher
	Clock     ccindex.Clock
	IDs       ccindex.IDGenerator
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

// Options configure what a session selects and where it writes.
type Options struct {
	Partition        ccindex.CrawlPartition
	Filter           ccindex.Predicate
	MaxShards        int
	AllShards        bool
	ScanConcurrency  int
	MaxRecords       int
	FetchConcurrency int
	QueueDepth       int
	// OutputPrefix is the blob prefix for documents and the summary file.
	OutputPrefix string
	// ExportPath is where the match table is written; empty disables export.
	ExportPath     string
	ExportMaxBytes int64
	Topic          string
}

// Session carries the state of one run across its phases. Scan, Fetch and
// Finish are called from a single goroutine.
type Session struct {
	id       string
	deps     Deps
	opts     Options
	reporter *progress.Reporter
	logger   *zap.Logger
	started  time.Time
	summary  Summary
}

// New validates opts, assigns a session id and announces nothing yet.
func New(deps Deps, opts Options) (*Session, error) {
	if deps.Blobs == nil {
		return nil, errors.New("session requires a blob store")
	}
	partition, err := opts.Partition.Validate()
	if err != nil {
		return nil, err
	}
	opts.Partition = partition
	if opts.Filter == nil {
		opts.Filter = ccindex.And{}
	}
	if opts.ScanConcurrency <= 0 {
		opts.ScanConcurrency = defaultScanConcurrency
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	opts.OutputPrefix = strings.Trim(opts.OutputPrefix, "/")
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = iduuid.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	id, err := deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	raw, err := iduuid.Bytes(id)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	started := deps.Clock.Now()
	s := &Session{
		id:       id,
		deps:     deps,
		opts:     opts,
		reporter: progress.NewReporter(deps.Emitter, raw, partition.CrawlID, deps.Clock),
		logger:   logger.With(zap.String("session_id", id), zap.String("crawl_id", partition.CrawlID)),
		started:  started,
	}
	s.summary = Summary{
		SessionID: id,
		CrawlID:   partition.CrawlID,
		Subset:    partition.Subset,
		Filter:    opts.Filter.String(),
		StartedAt: started,
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Partition returns the validated partition the session targets.
func (s *Session) Partition() ccindex.CrawlPartition {
	return s.opts.Partition
}

// SummaryPath is the blob path of the summary file.
func (s *Session) SummaryPath() string {
	return joinPath(s.opts.OutputPrefix, summaryName)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
