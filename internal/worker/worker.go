// Package worker implements the per-record fetch, decode, extract and persist
// pipeline.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/metrics"
)

// Stages reported in an Outcome.
const (
	StageFetch   = "fetch"
	StageDecode  = "decode"
	StageStatus  = "status"
	StageExtract = "extract"
	StageWrite   = "write"
	StageDone    = "done"
)

// Config controls Worker behavior.
type Config struct {
	SessionID  string
	CrawlID    string
	BlobPrefix string
	Topic      string
}

// Outcome describes how one record left the pipeline. Stage is StageDone on
// success, otherwise the stage that failed.
type Outcome struct {
	Seq        int
	Record     ccindex.IndexRecord
	Stage      string
	Err        error
	StatusCode int
	Bytes      int64
	Duration   time.Duration
	BlobURI    string
}

// Observer receives one Outcome per processed record.
type Observer interface {
	RecordFinished(Outcome)
}

// Notification is the payload published for each written document.
type Notification struct {
	DocumentID   string `json:"document_id"`
	SessionID    string `json:"session_id"`
	CrawlID      string `json:"crawl_id"`
	URL          string `json:"url"`
	BlobURI      string `json:"blob_uri"`
	ContentHash  string `json:"content_hash"`
	WARCFilename string `json:"warc_filename"`
	WARCOffset   int64  `json:"warc_record_offset"`
	WARCLength   int64  `json:"warc_record_length"`
	ExtractedAt  string `json:"extracted_at"`
}

// Attributes exposes routing attributes to the Pub/Sub publisher.
func (n Notification) Attributes() map[string]string {
	return map[string]string{"session_id": n.SessionID, "crawl_id": n.CrawlID}
}

// Worker consumes queue items and executes the retrieval pipeline.
type Worker struct {
	queue     ccindex.Queue
	fetcher   ccindex.RangeFetcher
	decoder   ccindex.RecordDecoder
	extractor ccindex.TextExtractor
	blobStore ccindex.BlobStore
	docStore  ccindex.DocumentStore
	publisher ccindex.Publisher
	hasher    ccindex.Hasher
	clock     ccindex.Clock
	ids       ccindex.IDGenerator
	tally     *Tally
	observer  Observer
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. docStore, publisher, ids and observer may be nil.
func New(
	queue ccindex.Queue,
	fetcher ccindex.RangeFetcher,
	decoder ccindex.RecordDecoder,
	extractor ccindex.TextExtractor,
	blobStore ccindex.BlobStore,
	docStore ccindex.DocumentStore,
	publisher ccindex.Publisher,
	hasher ccindex.Hasher,
	clock ccindex.Clock,
	ids ccindex.IDGenerator,
	tally *Tally,
	observer Observer,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tally == nil {
		tally = &Tally{}
	}
	return &Worker{
		queue:     queue,
		fetcher:   fetcher,
		decoder:   decoder,
		extractor: extractor,
		blobStore: blobStore,
		docStore:  docStore,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		tally:     tally,
		observer:  observer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run consumes queue items until the queue is closed and drained or the
// context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ccindex.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		if ctx.Err() != nil {
			return
		}
		w.tally.Dequeued.Add(1)
		metrics.IncActiveWorkers()
		// A started record runs to completion; the HTTP client timeout bounds it.
		outcome := w.Process(context.WithoutCancel(ctx), item)
		metrics.DecActiveWorkers()
		if w.observer != nil {
			w.observer.RecordFinished(outcome)
		}
	}
}

// Process runs one record through the pipeline. Failures are counted and
// logged, never returned.
func (w *Worker) Process(ctx context.Context, item ccindex.FetchItem) Outcome {
	rec := item.Record
	out := Outcome{Seq: item.Seq, Record: rec}
	log := w.logger.With(
		zap.Int("seq", item.Seq),
		zap.String("url", rec.URL),
		zap.String("warc_filename", rec.WARCFilename),
		zap.Int64("offset", rec.WARCOffset),
		zap.Int64("length", rec.WARCLength),
	)
	fail := func(stage string, err error, counter interface{ Add(int64) int64 }) Outcome {
		counter.Add(1)
		out.Stage = stage
		out.Err = err
		log.Warn("record skipped", zap.String("stage", stage), zap.Error(err))
		return out
	}

	fetched, err := w.fetcher.Fetch(ctx, rec)
	if err != nil {
		return fail(StageFetch, err, &w.tally.FetchFailed)
	}
	w.tally.Fetched.Add(1)
	w.tally.BytesFetched.Add(int64(len(fetched.Bytes)))
	out.Bytes = int64(len(fetched.Bytes))
	out.Duration = fetched.Duration

	archived, err := w.decoder.Decode(fetched)
	if err != nil {
		return fail(StageDecode, err, &w.tally.DecodeFailed)
	}
	w.tally.Decoded.Add(1)
	out.StatusCode = archived.StatusCode
	if archived.StatusCode < 200 || archived.StatusCode > 299 {
		return fail(StageStatus, fmt.Errorf("archived status %d", archived.StatusCode), &w.tally.Skipped)
	}

	text, err := w.extractor.Extract(archived.Body, archived.ContentType)
	if err == nil && text == "" {
		err = errors.New("no text extracted")
	}
	if err != nil {
		return fail(StageExtract, err, &w.tally.ExtractFailed)
	}
	w.tally.Extracted.Add(1)

	doc := ccindex.ExtractedDocument{
		Seq:       item.Seq,
		URL:       rec.URL,
		Domain:    rec.Domain,
		Languages: rec.Languages,
		FetchTime: rec.FetchTime,
		Text:      text,
	}
	blobPath := DocumentPath(w.cfg.BlobPrefix, item.Seq)
	uri, err := w.blobStore.PutObject(ctx, blobPath, DocumentContentType, bytes.NewReader(RenderDocument(doc)))
	if err != nil {
		return fail(StageWrite, fmt.Errorf("put object: %w", err), &w.tally.WriteFailed)
	}
	w.tally.Written.Add(1)
	out.Stage = StageDone
	out.BlobURI = uri
	log.Debug("document written", zap.String("blob_uri", uri))

	w.catalogAndPublish(ctx, rec, doc, archived, uri, log)
	return out
}

// catalogAndPublish runs the optional fan-out after a document is written.
func (w *Worker) catalogAndPublish(
	ctx context.Context,
	src ccindex.IndexRecord,
	doc ccindex.ExtractedDocument,
	archived ccindex.ArchiveRecord,
	uri string,
	log *zap.Logger,
) {
	if w.docStore == nil && (w.publisher == nil || w.cfg.Topic == "") {
		return
	}
	rec := w.recordFor(src, doc, archived, uri, log)

	if w.docStore != nil {
		if err := w.docStore.RecordDocument(ctx, rec); err != nil {
			w.tally.CatalogFailed.Add(1)
			log.Error("catalog document failed", zap.Error(err))
		}
	}
	if w.publisher != nil && w.cfg.Topic != "" {
		note := Notification{
			DocumentID:   rec.ID,
			SessionID:    rec.SessionID,
			CrawlID:      rec.CrawlID,
			URL:          rec.URL,
			BlobURI:      uri,
			ContentHash:  rec.ContentHash,
			WARCFilename: rec.WARCFilename,
			WARCOffset:   rec.WARCOffset,
			WARCLength:   rec.WARCLength,
			ExtractedAt:  rec.ExtractedAt.Format(time.RFC3339),
		}
		if _, err := w.publisher.Publish(ctx, w.cfg.Topic, note); err != nil {
			w.tally.PublishFailed.Add(1)
			log.Error("publish document failed", zap.Error(err))
		}
	}
}

func (w *Worker) recordFor(
	src ccindex.IndexRecord,
	doc ccindex.ExtractedDocument,
	archived ccindex.ArchiveRecord,
	uri string,
	log *zap.Logger,
) ccindex.DocumentRecord {
	rec := ccindex.DocumentRecord{
		SessionID:    w.cfg.SessionID,
		CrawlID:      w.cfg.CrawlID,
		URL:          doc.URL,
		Domain:       doc.Domain,
		Languages:    doc.Languages,
		WARCFilename: src.WARCFilename,
		WARCOffset:   src.WARCOffset,
		WARCLength:   src.WARCLength,
		BlobURI:      uri,
		StatusCode:   archived.StatusCode,
		ContentType:  archived.ContentType,
		Headers:      archived.Headers,
		FetchTime:    doc.FetchTime,
	}
	if w.ids != nil {
		id, err := w.ids.NewID()
		if err != nil {
			log.Warn("generate document id failed", zap.Error(err))
		}
		rec.ID = id
	}
	if w.hasher != nil {
		hash, err := w.hasher.Hash([]byte(doc.Text))
		if err != nil {
			log.Warn("hash document failed", zap.Error(err))
		}
		rec.ContentHash = hash
	}
	if w.clock != nil {
		rec.ExtractedAt = w.clock.Now()
	} else {
		rec.ExtractedAt = time.Now().UTC()
	}
	return rec
}
