package scanner

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Projected column names of the columnar URL index.
const (
	ColURL          = "url"
	ColTLD          = "url_host_tld"
	ColDomain       = "url_host_registered_domain"
	ColMIMEType     = "content_mime_type"
	ColLanguages    = "content_languages"
	ColWARCFilename = "warc_filename"
	ColWARCOffset   = "warc_record_offset"
	ColWARCLength   = "warc_record_length"
	ColFetchTime    = "fetch_time"
)

// Projection is the fixed, ordered set of columns read from every shard.
var Projection = []string{
	ColURL,
	ColTLD,
	ColDomain,
	ColMIMEType,
	ColLanguages,
	ColWARCFilename,
	ColWARCOffset,
	ColWARCLength,
	ColFetchTime,
}

const valueBatch = 1024

// columnCursor yields one value per row from a single column chunk, pulling
// pages on demand.
type columnCursor struct {
	name   string
	pages  parquet.Pages
	values parquet.ValueReader
	buf    []parquet.Value
	pos    int
	n      int
	eof    bool
}

func newColumnCursor(name string, chunk parquet.ColumnChunk) *columnCursor {
	return &columnCursor{
		name:  name,
		pages: chunk.Pages(),
		buf:   make([]parquet.Value, valueBatch),
	}
}

// next returns the value of the following row. io.EOF means the chunk ran out.
func (c *columnCursor) next() (parquet.Value, error) {
	for c.pos >= c.n {
		if c.eof {
			return parquet.Value{}, io.EOF
		}
		if err := c.fill(); err != nil {
			return parquet.Value{}, err
		}
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *columnCursor) fill() error {
	c.pos, c.n = 0, 0
	for {
		if c.values == nil {
			page, err := c.pages.ReadPage()
			if err != nil {
				if errors.Is(err, io.EOF) {
					c.eof = true
					return nil
				}
				return fmt.Errorf("read page of %s: %w", c.name, err)
			}
			c.values = page.Values()
		}
		n, err := c.values.ReadValues(c.buf)
		c.n = n
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read values of %s: %w", c.name, err)
			}
			c.values = nil
		}
		if n > 0 {
			return nil
		}
	}
}

func (c *columnCursor) close() error {
	if c.pages == nil {
		return nil
	}
	if err := c.pages.Close(); err != nil {
		return fmt.Errorf("close pages of %s: %w", c.name, err)
	}
	return nil
}

func stringValue(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func intValue(v parquet.Value) (int64, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind() {
	case parquet.Int32:
		return int64(v.Int32()), true
	case parquet.Int64:
		return v.Int64(), true
	default:
		return 0, false
	}
}

// Julian day number of 1970-01-01.
const julianUnixEpoch = 2440588

func timeValue(v parquet.Value) time.Time {
	if v.IsNull() {
		return time.Time{}
	}
	switch v.Kind() {
	case parquet.Int96:
		i96 := v.Int96()
		nanosOfDay := int64(uint64(i96[1])<<32 | uint64(i96[0]))
		days := int64(i96[2]) - julianUnixEpoch
		return time.Unix(days*86400, nanosOfDay).UTC()
	case parquet.Int64:
		return unixAuto(v.Int64())
	case parquet.Int32:
		// DATE: days since epoch.
		return time.Unix(int64(v.Int32())*86400, 0).UTC()
	case parquet.ByteArray:
		t, err := time.Parse(time.RFC3339Nano, string(v.ByteArray()))
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	default:
		return time.Time{}
	}
}

// unixAuto interprets an epoch integer by magnitude: nanoseconds, microseconds
// or milliseconds.
func unixAuto(n int64) time.Time {
	switch {
	case n > 1e17 || n < -1e17:
		return time.Unix(0, n).UTC()
	case n > 1e14 || n < -1e14:
		return time.UnixMicro(n).UTC()
	default:
		return time.UnixMilli(n).UTC()
	}
}
