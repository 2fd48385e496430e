package aggregator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// ContentType is the media type of exported match tables.
const ContentType = "application/vnd.apache.parquet"

// DefaultMaxExportBytes caps the estimated in-memory size of an export.
const DefaultMaxExportBytes int64 = 1 << 30

// ErrExportTooLarge is returned when the match set exceeds the export cap.
var ErrExportTooLarge = errors.New("match set exceeds export size cap")

// Per-record overhead of the size estimate: four int64 columns, the
// timestamp and slice headers.
const recordOverhead = 8*5 + 24*6

const readBatch = 1024

// crawlIDKey names the file metadata entry holding the crawl id, so tables
// without rows still say which crawl they belong to.
const crawlIDKey = "ccslice.crawl_id"

// matchRow is the on-disk schema of an exported match table. Column names
// follow the URL index so exported tables can be scanned like a shard.
type matchRow struct {
	CrawlID      string     `parquet:"crawl_id"`
	URL          string     `parquet:"url"`
	TLD          string     `parquet:"url_host_tld"`
	Domain       string     `parquet:"url_host_registered_domain"`
	MIMEType     string     `parquet:"content_mime_type"`
	Languages    string     `parquet:"content_languages"`
	WARCFilename string     `parquet:"warc_filename"`
	WARCOffset   int64      `parquet:"warc_record_offset"`
	WARCLength   int64      `parquet:"warc_record_length"`
	FetchTime    *time.Time `parquet:"fetch_time"`
	ShardIndex   int64      `parquet:"shard_index"`
	ShardRow     int64      `parquet:"shard_row"`
}

// BlobWriter persists export bytes.
type BlobWriter interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// BlobReader retrieves previously exported bytes.
type BlobReader interface {
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// EstimateSize approximates the in-memory footprint of records.
func EstimateSize(records []ccindex.IndexRecord) int64 {
	var total int64
	for i := range records {
		r := &records[i]
		total += int64(recordOverhead + len(r.URL) + len(r.TLD) + len(r.Domain) +
			len(r.MIMEType) + len(r.Languages) + len(r.WARCFilename))
	}
	return total
}

// Export writes the ordered match set to path as one Parquet table tagged
// with crawlID. A maxBytes of zero applies DefaultMaxExportBytes.
func (m *MatchSet) Export(ctx context.Context, store BlobWriter, path, crawlID string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxExportBytes
	}
	records := m.Records()
	if est := EstimateSize(records); est > maxBytes {
		return "", fmt.Errorf("%w: estimated %d bytes, cap %d", ErrExportTooLarge, est, maxBytes)
	}
	var buf bytes.Buffer
	if err := WriteTable(ctx, &buf, crawlID, records); err != nil {
		return "", err
	}
	uri, err := store.PutObject(ctx, path, ContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}
	return uri, nil
}

// WriteTable encodes records as a Parquet table. The crawl id is stored on
// every row and in the file metadata.
func WriteTable(ctx context.Context, w io.Writer, crawlID string, records []ccindex.IndexRecord) error {
	pw := parquet.NewGenericWriter[matchRow](w,
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(crawlIDKey, crawlID),
	)
	rows := make([]matchRow, 0, readBatch)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("write export rows: %w", err)
		}
		rows = rows[:0]
		return nil
	}
	for i := range records {
		if i%readBatch == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("export canceled: %w", err)
			}
		}
		rows = append(rows, toRow(crawlID, records[i]))
		if len(rows) == cap(rows) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close export writer: %w", err)
	}
	return nil
}

// Import loads an exported table from store and returns its crawl id and
// records in stored order.
func Import(ctx context.Context, store BlobReader, path string) (string, []ccindex.IndexRecord, error) {
	rc, err := store.GetObject(ctx, path)
	if err != nil {
		return "", nil, fmt.Errorf("open export: %w", err)
	}
	defer rc.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("read export: %w", err)
	}
	return ReadTable(ctx, path, bytes.NewReader(data))
}

// ReadTable decodes an exported table. Every row must carry the crawl id of
// the file metadata and a usable byte range.
func ReadTable(ctx context.Context, source string, r *bytes.Reader) (string, []ccindex.IndexRecord, error) {
	if r.Size() == 0 {
		return "", nil, &ccindex.FormatError{Source: source, Reason: "empty export"}
	}
	f, err := parquet.OpenFile(r, r.Size())
	if err != nil {
		return "", nil, &ccindex.FormatError{Source: source, Reason: "unreadable export", Err: err}
	}
	crawlID, _ := f.Lookup(crawlIDKey)
	pr := parquet.NewGenericReader[matchRow](f)
	defer pr.Close() //nolint:errcheck // read-only

	var (
		records = make([]ccindex.IndexRecord, 0, pr.NumRows())
		buf     = make([]matchRow, readBatch)
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", nil, fmt.Errorf("import canceled: %w", err)
		}
		n, err := pr.Read(buf)
		for _, row := range buf[:n] {
			if crawlID == "" {
				crawlID = row.CrawlID
			} else if row.CrawlID != crawlID {
				return "", nil, &ccindex.FormatError{
					Source: source,
					Reason: fmt.Sprintf("mixed crawl ids %q and %q", crawlID, row.CrawlID),
				}
			}
			rec := fromRow(row)
			if !rec.ValidRange() {
				return "", nil, &ccindex.FormatError{
					Source: source,
					Reason: fmt.Sprintf("row %d has no usable range", len(records)),
				}
			}
			records = append(records, rec)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", nil, &ccindex.FormatError{Source: source, Reason: "unreadable export", Err: err}
		}
	}
	return crawlID, records, nil
}

func toRow(crawlID string, r ccindex.IndexRecord) matchRow {
	return matchRow{
		CrawlID:      crawlID,
		URL:          r.URL,
		TLD:          r.TLD,
		Domain:       r.Domain,
		MIMEType:     r.MIMEType,
		Languages:    r.Languages,
		WARCFilename: r.WARCFilename,
		WARCOffset:   r.WARCOffset,
		WARCLength:   r.WARCLength,
		FetchTime:    optionalTime(r.FetchTime),
		ShardIndex:   int64(r.ShardIndex),
		ShardRow:     r.Row,
	}
}

func fromRow(row matchRow) ccindex.IndexRecord {
	var fetched time.Time
	if row.FetchTime != nil {
		fetched = row.FetchTime.UTC()
	}
	return ccindex.IndexRecord{
		URL:          row.URL,
		TLD:          row.TLD,
		Domain:       row.Domain,
		MIMEType:     row.MIMEType,
		Languages:    row.Languages,
		WARCFilename: row.WARCFilename,
		WARCOffset:   row.WARCOffset,
		WARCLength:   row.WARCLength,
		FetchTime:    fetched,
		ShardIndex:   int(row.ShardIndex),
		Row:          row.ShardRow,
	}
}

// optionalTime maps the zero time to a null cell.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
