// Package warcrecord decodes the bytes of one fetched WARC record into the
// captured HTTP response.
package warcrecord

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slyrz/warc"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// DefaultMaxBody caps the decoded HTTP body.
const DefaultMaxBody = 16 << 20

// Record types.
const (
	TypeResponse = "response"
	TypeRequest  = "request"
	TypeMetadata = "metadata"
)

// Decoder implements ccindex.RecordDecoder.
type Decoder struct {
	maxBody int64
}

// New returns a Decoder. maxBody <= 0 applies DefaultMaxBody.
func New(maxBody int64) *Decoder {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return &Decoder{maxBody: maxBody}
}

// Decode parses exactly one record from the fetched bytes, which may be a gzip
// member or plain WARC. Only response records are accepted. Bytes beyond the
// record and its CRLF trailer mean the index and the archive disagree and are
// rejected.
func (d *Decoder) Decode(fetched ccindex.FetchedRecord) (ccindex.ArchiveRecord, error) {
	fail := func(err error) (ccindex.ArchiveRecord, error) {
		return ccindex.ArchiveRecord{}, &ccindex.DecodeError{Record: fetched.Record, Err: err}
	}
	if len(fetched.Bytes) == 0 {
		return fail(errors.New("empty record"))
	}
	plain, err := singleMember(fetched.Bytes)
	if err != nil {
		return fail(err)
	}

	reader, err := warc.NewReader(bytes.NewReader(plain))
	if err != nil {
		return fail(fmt.Errorf("open warc reader: %w", err))
	}
	defer reader.Close() //nolint:errcheck // in-memory source

	rec, err := reader.ReadRecord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fail(errors.New("no record in range"))
		}
		return fail(fmt.Errorf("read warc record: %w", err))
	}
	if err := checkFraming(plain, rec.Header); err != nil {
		return fail(err)
	}

	out := ccindex.ArchiveRecord{
		Type:      strings.ToLower(header(rec.Header, "WARC-Type")),
		TargetURI: header(rec.Header, "WARC-Target-URI"),
	}
	if date := header(rec.Header, "WARC-Date"); date != "" {
		if t, err := time.Parse(time.RFC3339Nano, date); err == nil {
			out.CaptureTime = t.UTC()
		}
	}
	if out.Type != TypeResponse {
		return fail(fmt.Errorf("unexpected record type %q", out.Type))
	}

	resp, err := http.ReadResponse(bufio.NewReader(rec.Content), nil)
	if err != nil {
		return fail(fmt.Errorf("parse http response: %w", err))
	}
	defer resp.Body.Close() //nolint:errcheck // in-memory source

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody))
	if err != nil {
		// Truncated captures keep what was archived.
		if !errors.Is(err, io.ErrUnexpectedEOF) || header(rec.Header, "WARC-Truncated") == "" {
			return fail(fmt.Errorf("read http body: %w", err))
		}
	}
	body = decodeContentEncoding(resp.Header, body)

	out.StatusCode = resp.StatusCode
	out.ContentType = resp.Header.Get("Content-Type")
	out.Headers = resp.Header
	out.Body = body
	return out, nil
}

// singleMember returns the WARC bytes of raw, gunzipping it when it is a gzip
// member. Anything after the first member is an error.
func singleMember(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		return raw, nil
	}
	src := bytes.NewReader(raw)
	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("open gzip member: %w", err)
	}
	defer gz.Close() //nolint:errcheck // in-memory source
	gz.Multistream(false)
	plain, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("read gzip member: %w", err)
	}
	if n := src.Len(); n > 0 {
		return nil, fmt.Errorf("%d bytes after gzip member", n)
	}
	return plain, nil
}

// maxTrailer is the length of the CRLF CRLF that closes a record.
const maxTrailer = 4

// checkFraming verifies that plain holds the record header, exactly the
// declared block and at most the record trailer.
func checkFraming(plain []byte, h warc.Header) error {
	start := headerEnd(plain)
	if start < 0 {
		return errors.New("record header not terminated")
	}
	length, err := strconv.ParseInt(header(h, "Content-Length"), 10, 64)
	if err != nil || length < 0 {
		return fmt.Errorf("invalid content length %q", header(h, "Content-Length"))
	}
	present := int64(len(plain) - start)
	if length > present {
		return fmt.Errorf("record block truncated: %d bytes declared, %d present", length, present)
	}
	trailer := plain[int64(start)+length:]
	if len(trailer) > maxTrailer || len(bytes.Trim(trailer, "\r\n")) > 0 {
		return fmt.Errorf("%d unexpected bytes after record", len(trailer))
	}
	return nil
}

// headerEnd returns the offset just past the blank line ending the record
// header, or -1.
func headerEnd(b []byte) int {
	crlf := bytes.Index(b, []byte("\r\n\r\n"))
	lf := bytes.Index(b, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf + 4
	case lf >= 0:
		return lf + 2
	}
	return -1
}

// header looks up a WARC header regardless of the key casing used by the parser.
func header(h warc.Header, key string) string {
	if v, ok := h[strings.ToLower(key)]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// decodeContentEncoding gunzips bodies still carrying a gzip encoding. Bodies
// that fail to decode are returned unchanged.
func decodeContentEncoding(h http.Header, body []byte) []byte {
	if !strings.EqualFold(strings.TrimSpace(h.Get("Content-Encoding")), "gzip") {
		return body
	}
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return body
	}
	defer gz.Close() //nolint:errcheck // in-memory source
	decoded, err := io.ReadAll(gz)
	if err != nil {
		return body
	}
	return decoded
}
