package ccindex

import (
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// DefaultSubset is the index partition that pairs with the WARC archive files.
const DefaultSubset = "warc"

var crawlIDPattern = regexp.MustCompile(`^CC-MAIN-\d{4}-\d{2}$`)

// CrawlPartition identifies one crawl snapshot plus index subset.
type CrawlPartition struct {
	CrawlID string
	Subset  string
}

// Validate checks the crawl identifier syntax and fills the default subset.
func (p CrawlPartition) Validate() (CrawlPartition, error) {
	if !crawlIDPattern.MatchString(p.CrawlID) {
		return p, &NotFoundError{Partition: p, Reason: "crawl id must look like CC-MAIN-YYYY-WW"}
	}
	if p.Subset == "" {
		p.Subset = DefaultSubset
	}
	return p, nil
}

func (p CrawlPartition) String() string {
	return fmt.Sprintf("%s/subset=%s", p.CrawlID, p.Subset)
}

// IndexShardRef locates one columnar index file of a partition. Index is the
// position of the shard in the manifest's filtered list.
type IndexShardRef struct {
	Index int
	Path  string
	URI   string
}

// IndexRecord is one projected row of the columnar URL index.
type IndexRecord struct {
	URL          string
	TLD          string
	Domain       string
	MIMEType     string
	Languages    string
	WARCFilename string
	WARCOffset   int64
	WARCLength   int64
	FetchTime    time.Time
	ShardIndex   int
	Row          int64
}

// RangeEnd returns the inclusive last byte of the record's archive range.
func (r IndexRecord) RangeEnd() int64 {
	return r.WARCOffset + r.WARCLength - 1
}

// ValidRange reports whether offset and length delimit a usable byte range.
func (r IndexRecord) ValidRange() bool {
	return r.WARCFilename != "" && r.WARCOffset >= 0 && r.WARCLength > 0
}

// ShardResult is the outcome of one fully scanned shard.
type ShardResult struct {
	Shard        IndexShardRef
	Records      []IndexRecord
	RowsExamined int64
	// RowsSkipped counts rows that passed the predicate but carry no usable
	// archive range (null or invalid offset, length or filename).
	RowsSkipped int64
	Complete    bool
}

// Matches returns the number of matching rows contributed by the shard.
func (r ShardResult) Matches() int {
	return len(r.Records)
}

// FetchedRecord holds the exact bytes delimited by one IndexRecord.
type FetchedRecord struct {
	Record   IndexRecord
	Bytes    []byte
	Duration time.Duration
}

// ArchiveRecord is a decoded WARC capture record.
type ArchiveRecord struct {
	Type        string
	TargetURI   string
	CaptureTime time.Time
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
}

// ExtractedDocument is the final per-record output unit.
type ExtractedDocument struct {
	Seq       int
	URL       string
	Domain    string
	Languages string
	FetchTime time.Time
	Text      string
}

// DocumentRecord is persisted to the optional catalog for each written document.
type DocumentRecord struct {
	ID           string
	SessionID    string
	CrawlID      string
	URL          string
	Domain       string
	Languages    string
	WARCFilename string
	WARCOffset   int64
	WARCLength   int64
	BlobURI      string
	ContentHash  string
	StatusCode   int
	ContentType  string
	Headers      http.Header
	FetchTime    time.Time
	ExtractedAt  time.Time
}

// FetchItem wraps one selected record ready for the fetch workers.
type FetchItem struct {
	Seq    int
	Record IndexRecord
}
