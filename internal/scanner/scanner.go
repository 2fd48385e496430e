// Package scanner performs column-projected, streaming scans of columnar index
// shards and evaluates a predicate against every row.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

const (
	readBufferSize = 4 << 20
	ctxCheckEvery  = 4096
)

// Scanner implements ccindex.ShardScanner on top of a ShardOpener.
type Scanner struct {
	opener ccindex.ShardOpener
	logger *zap.Logger
}

// New constructs a Scanner.
func New(opener ccindex.ShardOpener, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{opener: opener, logger: logger}
}

// Scan reads the projected columns of shard row group by row group and
// returns every row accepted by pred. Results are only returned for shards
// read to the end; a failure part way returns *ccindex.ShardReadError.
func (s *Scanner) Scan(ctx context.Context, shard ccindex.IndexShardRef, pred ccindex.Predicate) (ccindex.ShardResult, error) {
	if pred == nil {
		pred = ccindex.And{}
	}
	ra, size, err := s.opener.Open(ctx, shard)
	if err != nil {
		return ccindex.ShardResult{Shard: shard}, &ccindex.ShardReadError{Shard: shard, Err: err}
	}
	rec := &recordingReaderAt{r: ra}

	file, err := parquet.OpenFile(rec, size,
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
		parquet.ReadBufferSize(readBufferSize),
	)
	if err != nil {
		if ioErr := rec.err(); ioErr != nil {
			return ccindex.ShardResult{Shard: shard}, &ccindex.ShardReadError{Shard: shard, Err: ioErr}
		}
		return ccindex.ShardResult{Shard: shard}, &ccindex.FormatError{Source: shard.URI, Reason: "unreadable footer", Err: err}
	}

	indexes, err := projectColumns(file.Schema())
	if err != nil {
		return ccindex.ShardResult{Shard: shard}, &ccindex.FormatError{Source: shard.URI, Reason: err.Error()}
	}

	log := s.logger.With(zap.Int("shard", shard.Index), zap.String("path", shard.Path))
	log.Debug("scanning shard",
		zap.Int("row_groups", len(file.RowGroups())),
		zap.Int64("rows", file.NumRows()),
	)

	result := ccindex.ShardResult{Shard: shard}
	for _, rg := range file.RowGroups() {
		if err := ctx.Err(); err != nil {
			return s.abort(result, fmt.Errorf("scan canceled: %w", err))
		}
		if err := s.scanRowGroup(ctx, rg, indexes, shard, pred, &result); err != nil {
			if ioErr := rec.err(); ioErr != nil && !errors.Is(err, ioErr) {
				err = fmt.Errorf("%w (transport: %v)", err, ioErr)
			}
			return s.abort(result, err)
		}
	}
	result.Complete = true

	log.Info("shard scanned",
		zap.Int64("rows_examined", result.RowsExamined),
		zap.Int("matches", result.Matches()),
	)
	if result.RowsSkipped > 0 {
		log.Warn("matching rows without a usable archive range were skipped",
			zap.Int64("rows_skipped", result.RowsSkipped),
		)
	}
	return result, nil
}

func (s *Scanner) abort(partial ccindex.ShardResult, err error) (ccindex.ShardResult, error) {
	return ccindex.ShardResult{Shard: partial.Shard, RowsExamined: partial.RowsExamined}, &ccindex.ShardReadError{
		Shard:        partial.Shard,
		RowsExamined: partial.RowsExamined,
		Err:          err,
	}
}

func (s *Scanner) scanRowGroup(
	ctx context.Context,
	rg parquet.RowGroup,
	indexes []int,
	shard ccindex.IndexShardRef,
	pred ccindex.Predicate,
	result *ccindex.ShardResult,
) (err error) {
	chunks := rg.ColumnChunks()
	cursors := make([]*columnCursor, len(indexes))
	for i, idx := range indexes {
		cursors[i] = newColumnCursor(Projection[i], chunks[idx])
	}
	defer func() {
		for _, c := range cursors {
			if closeErr := c.close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
	}()

	values := make([]parquet.Value, len(cursors))
	numRows := rg.NumRows()
	for row := int64(0); row < numRows; row++ {
		if row%ctxCheckEvery == 0 && row > 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("scan canceled: %w", ctxErr)
			}
		}
		for i, c := range cursors {
			v, readErr := c.next()
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return fmt.Errorf("column %s ended at row %d of %d", c.name, row, numRows)
				}
				return readErr
			}
			values[i] = v
		}
		record, usable := toRecord(values)
		record.ShardIndex = shard.Index
		record.Row = result.RowsExamined
		result.RowsExamined++
		if !pred.Match(&record) {
			continue
		}
		if !usable {
			result.RowsSkipped++
			s.logger.Debug("skipping row without archive range",
				zap.Int("shard", shard.Index),
				zap.Int64("row", record.Row),
				zap.String("url", record.URL),
			)
			continue
		}
		result.Records = append(result.Records, record)
	}
	return nil
}

func projectColumns(schema *parquet.Schema) ([]int, error) {
	indexes := make([]int, len(Projection))
	for i, name := range Projection {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		indexes[i] = leaf.ColumnIndex
	}
	return indexes, nil
}

// toRecord decodes one projected row. usable is false when the archive range
// cells are null or do not describe a fetchable range.
func toRecord(values []parquet.Value) (rec ccindex.IndexRecord, usable bool) {
	offset, offsetOK := intValue(values[6])
	length, lengthOK := intValue(values[7])
	rec = ccindex.IndexRecord{
		URL:          stringValue(values[0]),
		TLD:          stringValue(values[1]),
		Domain:       stringValue(values[2]),
		MIMEType:     stringValue(values[3]),
		Languages:    stringValue(values[4]),
		WARCFilename: stringValue(values[5]),
		WARCOffset:   offset,
		WARCLength:   length,
		FetchTime:    timeValue(values[8]),
	}
	return rec, offsetOK && lengthOK && rec.ValidRange()
}

// recordingReaderAt remembers the first I/O failure so footer parse errors can
// be told apart from transport errors.
type recordingReaderAt struct {
	r     io.ReaderAt
	mu    sync.Mutex
	first error
}

func (r *recordingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.r.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		r.mu.Lock()
		if r.first == nil {
			r.first = err
		}
		r.mu.Unlock()
	}
	return n, err
}

func (r *recordingReaderAt) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.first
}
