package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ccslice/internal/aggregator"
	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/locator"
)

type shardOutcome struct {
	shard  ccindex.IndexShardRef
	result ccindex.ShardResult
	err    error
}

// Scan locates the partition's shards, selects the configured number and
// scans them with bounded concurrency. Matches are merged by this goroutine
// only. Canceling ctx stops new shards from starting; scans already running
// finish. A fatal error (missing partition, malformed manifest or shard) is
// returned along with whatever was merged before it.
func (s *Session) Scan(ctx context.Context) (*aggregator.MatchSet, error) {
	if s.deps.Locator == nil || s.deps.Scanner == nil {
		return nil, errors.New("scan requires a locator and a scanner")
	}
	shards, err := s.deps.Locator.Locate(ctx, s.opts.Partition)
	if err != nil {
		return nil, fmt.Errorf("locate shards: %w", err)
	}
	selected := locator.Select(shards, s.opts.MaxShards, s.opts.AllShards)
	s.summary.Scan.ShardsLocated = len(shards)
	s.summary.Scan.ShardsSelected = len(selected)
	s.reporter.SessionStarted(len(selected))
	s.logger.Info("scanning index shards",
		zap.Int("selected", len(selected)),
		zap.Int("located", len(shards)),
		zap.Int("concurrency", s.opts.ScanConcurrency),
		zap.String("filter", s.opts.Filter.String()),
	)

	// Running scans are detached from ctx so an interrupt lets them finish;
	// a fatal error still cancels them through the group.
	scanCtx, cancelScans := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelScans()
	g, gctx := errgroup.WithContext(scanCtx)
	g.SetLimit(s.opts.ScanConcurrency)

	outcomes := make(chan shardOutcome)
	var groupErr error
	go func() {
		defer close(outcomes)
		for _, shard := range selected {
			if ctx.Err() != nil || gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				result, err := s.deps.Scanner.Scan(gctx, shard, s.opts.Filter)
				if err != nil && ccindex.IsFatal(err) {
					return err
				}
				outcomes <- shardOutcome{shard: shard, result: result, err: err}
				return nil
			})
		}
		groupErr = g.Wait()
	}()

	matches := aggregator.New()
	for out := range outcomes {
		s.merge(matches, out)
	}
	s.recordScan(matches)

	if groupErr != nil {
		return matches, fmt.Errorf("scan shards: %w", groupErr)
	}
	attempted := s.summary.Scan.ShardsAttempted
	if ctx.Err() != nil && attempted < len(selected) {
		s.summary.Interrupted = true
		s.logger.Warn("scan interrupted",
			zap.Int("shards_attempted", attempted),
			zap.Int("shards_selected", len(selected)),
		)
	}
	return matches, nil
}

func (s *Session) merge(matches *aggregator.MatchSet, out shardOutcome) {
	if out.err != nil {
		matches.RecordFailure(out.shard, out.err)
		var rows int64
		var readErr *ccindex.ShardReadError
		if errors.As(out.err, &readErr) {
			rows = readErr.RowsExamined
		}
		s.logger.Warn("shard scan failed",
			zap.Int("shard", out.shard.Index),
			zap.String("uri", out.shard.URI),
			zap.Int64("rows_examined", rows),
			zap.Error(out.err),
		)
		s.reporter.ShardFailed(out.shard.Index, rows, matches.Total(), out.err)
		return
	}
	matches.Add(out.result)
	s.reporter.ShardScanned(out.shard.Index, out.result.RowsExamined, matches.Total())
}

func (s *Session) recordScan(matches *aggregator.MatchSet) {
	snap := matches.Snapshot()
	sc := &s.summary.Scan
	sc.ShardsCompleted = snap.ShardsScanned
	sc.ShardsFailed = snap.ShardsFailed
	sc.ShardsAttempted = snap.ShardsScanned + snap.ShardsFailed
	sc.RowsExamined = snap.RowsExamined
	sc.RowsSkipped = snap.RowsSkipped
	sc.Matches = snap.Matches
	sc.FailedShards = sc.FailedShards[:0]
	for _, f := range matches.Failures() {
		fs := FailedShard{Index: f.Shard.Index, Path: f.Shard.Path, RowsExamined: f.RowsExamined}
		if f.Err != nil {
			fs.Error = f.Err.Error()
		}
		sc.FailedShards = append(sc.FailedShards, fs)
	}
	s.summary.Matches = snap.Matches
}

// Export writes the match table when an export path is configured. An
// oversized match set is logged and skipped.
func (s *Session) Export(ctx context.Context, matches *aggregator.MatchSet) (string, error) {
	if s.opts.ExportPath == "" || matches == nil {
		return "", nil
	}
	uri, err := matches.Export(ctx, s.deps.Blobs, s.opts.ExportPath, s.opts.Partition.CrawlID, s.opts.ExportMaxBytes)
	if err != nil {
		if errors.Is(err, aggregator.ErrExportTooLarge) {
			s.logger.Warn("match table not exported", zap.Error(err))
			return "", nil
		}
		return "", fmt.Errorf("export matches: %w", err)
	}
	s.summary.ExportURI = uri
	s.logger.Info("match table exported", zap.String("uri", uri), zap.Int("records", matches.Total()))
	return uri, nil
}
