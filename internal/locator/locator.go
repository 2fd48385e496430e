// Package locator resolves a crawl partition to the ordered list of columnar
// index shards named by the crawl's paths manifest.
package locator

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/metrics"
	"github.com/JakeFAU/ccslice/internal/remote"
)

const (
	manifestName     = "cc-index-table.paths.gz"
	shardPrefix      = "cc-index/"
	shardSuffix      = ".parquet"
	maxManifestToken = 1 << 20
)

// Getter issues GETs relative to the archive base URL.
type Getter interface {
	Get(ctx context.Context, path, kind string) (*http.Response, error)
	URL(path string) string
}

// Locator implements ccindex.ShardLocator against the paths manifest.
type Locator struct {
	remote Getter
	logger *zap.Logger
}

// New constructs a Locator.
func New(remote Getter, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{remote: remote, logger: logger}
}

// ManifestPath returns the archive-relative path of a crawl's index manifest.
func ManifestPath(crawlID string) string {
	return fmt.Sprintf("crawl-data/%s/%s", crawlID, manifestName)
}

// Locate downloads the manifest and returns the shards of the requested subset
// in manifest order.
func (l *Locator) Locate(ctx context.Context, partition ccindex.CrawlPartition) ([]ccindex.IndexShardRef, error) {
	partition, err := partition.Validate()
	if err != nil {
		return nil, err
	}
	path := ManifestPath(partition.CrawlID)
	manifestURL := l.remote.URL(path)
	l.logger.Info("fetching index manifest", zap.String("url", manifestURL))

	resp, err := l.remote.Get(ctx, path, metrics.KindManifest)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, &ccindex.NotFoundError{Partition: partition, URL: manifestURL, Reason: "manifest missing"}
		}
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			l.logger.Debug("close manifest body", zap.Error(closeErr))
		}
	}()

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, &ccindex.FormatError{Source: manifestURL, Reason: "manifest is not gzip", Err: err}
	}
	defer gz.Close() //nolint:errcheck // read-only stream

	marker := "/subset=" + partition.Subset + "/"
	var shards []ccindex.IndexShardRef
	lines := 0
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 64*1024), maxManifestToken)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines++
		if !strings.HasPrefix(line, shardPrefix) || !strings.HasSuffix(line, shardSuffix) {
			return nil, &ccindex.FormatError{
				Source: manifestURL,
				Reason: fmt.Sprintf("line %d is not an index shard path: %q", lines, truncate(line, 120)),
			}
		}
		if !strings.Contains(line, marker) {
			continue
		}
		shards = append(shards, ccindex.IndexShardRef{
			Index: len(shards),
			Path:  line,
			URI:   l.remote.URL(line),
		})
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read manifest: %w", ctx.Err())
		}
		return nil, &ccindex.FormatError{Source: manifestURL, Reason: "manifest could not be decoded", Err: err}
	}
	if len(shards) == 0 {
		return nil, &ccindex.FormatError{
			Source: manifestURL,
			Reason: fmt.Sprintf("no shards for subset %q among %d paths", partition.Subset, lines),
		}
	}

	l.logger.Info("located index shards",
		zap.String("partition", partition.String()),
		zap.Int("shards", len(shards)),
		zap.Int("manifest_paths", lines),
	)
	return shards, nil
}

// Select returns every shard when all is set, otherwise the first limit shards.
func Select(shards []ccindex.IndexShardRef, limit int, all bool) []ccindex.IndexShardRef {
	if all || limit >= len(shards) {
		return shards
	}
	if limit <= 0 {
		return nil
	}
	return shards[:limit]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
