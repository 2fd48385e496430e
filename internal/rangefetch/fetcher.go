// Package rangefetch retrieves the exact archive bytes of an index record with
// a single HTTP range request.
package rangefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/metrics"
)

// RangeGetter issues ranged GETs relative to the archive base URL.
type RangeGetter interface {
	GetRange(ctx context.Context, path string, offset, length int64, kind string) (*http.Response, error)
}

// Fetcher implements ccindex.RangeFetcher.
type Fetcher struct {
	remote RangeGetter
	logger *zap.Logger
}

// New constructs a Fetcher.
func New(remote RangeGetter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{remote: remote, logger: logger}
}

// Fetch returns exactly WARCLength bytes starting at WARCOffset of the record's
// archive file. Anything but a 206 carrying that many bytes is a
// *ccindex.RangeFetchError. There are no retries.
func (f *Fetcher) Fetch(ctx context.Context, record ccindex.IndexRecord) (ccindex.FetchedRecord, error) {
	if !record.ValidRange() {
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{Record: record, Reason: "invalid range"}
	}
	start := time.Now()
	resp, err := f.remote.GetRange(ctx, record.WARCFilename, record.WARCOffset, record.WARCLength, metrics.KindArchive)
	if err != nil {
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{Record: record, Reason: "transport", Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("close range body", zap.Error(closeErr))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{
			Record:     record,
			StatusCode: resp.StatusCode,
			Reason:     "server ignored range",
		}
	default:
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{
			Record:     record,
			StatusCode: resp.StatusCode,
			Reason:     "unexpected status",
		}
	}

	if first, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && first != record.WARCOffset {
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{
			Record:     record,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("content-range starts at %d", first),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, record.WARCLength+1))
	received := int64(len(body))
	if err != nil {
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{
			Record:     record,
			StatusCode: resp.StatusCode,
			Received:   received,
			Reason:     "read body",
			Err:        err,
		}
	}
	switch {
	case received < record.WARCLength:
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{
			Record: record, StatusCode: resp.StatusCode, Received: received, Reason: "short read",
		}
	case received > record.WARCLength:
		return ccindex.FetchedRecord{}, &ccindex.RangeFetchError{
			Record: record, StatusCode: resp.StatusCode, Received: received, Reason: "long read",
		}
	}

	elapsed := time.Since(start)
	f.logger.Debug("fetched record range",
		zap.String("url", record.URL),
		zap.String("warc_filename", record.WARCFilename),
		zap.Int64("offset", record.WARCOffset),
		zap.Int64("length", record.WARCLength),
		zap.Duration("elapsed", elapsed),
	)
	return ccindex.FetchedRecord{Record: record, Bytes: body, Duration: elapsed}, nil
}

// contentRangeStart parses the first byte of a "bytes a-b/total" header.
func contentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
