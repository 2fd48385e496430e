package cmd

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/ccslice/internal/app"
	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/config"
	"github.com/JakeFAU/ccslice/internal/locator"
	"github.com/JakeFAU/ccslice/internal/logging"
)

const (
	crawlID      = "CC-MAIN-2024-10"
	warcPath     = "crawl-data/CC-MAIN-2024-10/segments/1/warc/a.warc.gz"
	shardCount   = 3
	rowsPerShard = 4
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "ccslice dev\n", out)
}

func TestLocateCommand(t *testing.T) {
	t.Parallel()

	cc := newFakeCrawl(t)
	out, err := execute(t, "locate", "--crawl.base_url="+cc.URL, "--output.backend=memory", "--scan.max_shards=2")
	require.NoError(t, err)
	require.Contains(t, out, "3 shards in CC-MAIN-2024-10/subset=warc, 2 selected")
	require.Contains(t, out, cc.URL+"/"+shardPath(2))
}

func TestLocateMissingCrawl(t *testing.T) {
	t.Parallel()

	cc := newFakeCrawl(t)
	_, err := execute(t, "locate", "--crawl.base_url="+cc.URL, "--output.backend=memory", "--crawl.id=CC-MAIN-1999-01")
	require.ErrorIs(t, err, ccindex.ErrNotFound)
	require.Equal(t, ExitError, exitStatus(err))
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "scan", "--output.backend=s3")
	require.ErrorContains(t, err, "output.backend")
}

func TestRunThenFetchFromExportedTable(t *testing.T) {
	t.Parallel()

	cc := newFakeCrawl(t)
	dir := t.TempDir()
	common := []string{
		"--crawl.base_url=" + cc.URL,
		"--output.dir=" + dir,
		"--filter.keywords=immigration",
	}

	out, err := execute(t, append([]string{"run", "--scan.max_shards=2", "--fetch.max_records=3"}, common...)...)
	require.NoError(t, err)
	require.Contains(t, out, "https://example.com/immigration/0-0 [eng]")
	require.Contains(t, out, "2 of 2 shards scanned (0 failed), 4 matches")
	require.Contains(t, out, "3 of 3 requested records fetched, 3 decoded, 3 documents written")
	require.False(t, cc.requested(shardPath(2)), "unselected shard was read")

	doc, err := os.ReadFile(filepath.Join(dir, "doc_0000.txt"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(doc), "URL: https://example.com/immigration/0-0\nDomain: example.com\nLanguage: eng\n"))
	require.Contains(t, string(doc), "Immigration news 0-0")
	_, err = os.Stat(filepath.Join(dir, "doc_0003.txt"))
	require.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(filepath.Join(dir, "summary.yaml"))
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &summary))
	require.Equal(t, crawlID, summary["crawl_id"])
	require.Equal(t, 4, summary["matches"])

	out, err = execute(t, append([]string{"fetch", "--index=index/" + crawlID + ".parquet", "--fetch.max_records=1"}, common...)...)
	require.NoError(t, err)
	require.Contains(t, out, "4 matches loaded from index/"+crawlID+".parquet")
	require.Contains(t, out, "1 of 1 requested records fetched, 1 decoded, 1 documents written")
}

func TestScanCommandExportsTable(t *testing.T) {
	t.Parallel()

	cc := newFakeCrawl(t)
	dir := t.TempDir()
	out, err := execute(t, "scan", "--crawl.base_url="+cc.URL, "--output.dir="+dir, "--scan.all_shards", "--filter.keywords=immigration")
	require.NoError(t, err)
	require.Contains(t, out, "3 of 3 shards scanned (0 failed), 6 matches")
	require.Equal(t, 0, cc.requestedPrefix(warcPath), "scan must not touch archive files")
	_, err = os.Stat(filepath.Join(dir, "index", crawlID+".parquet"))
	require.NoError(t, err)
}

func TestExitStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, ExitOK, exitStatus(nil))
	require.Equal(t, ExitInterrupted, exitStatus(errInterrupted))
	require.Equal(t, ExitInterrupted, exitStatus(fmt.Errorf("scan: %w", context.Canceled)))
	require.Equal(t, ExitError, exitStatus(errors.New("boom")))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(testBuilder())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testBuilder() builder {
	return builder{
		logger: func(logging.Options) (*zap.Logger, error) { return zap.NewNop(), nil },
		app: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger, app.Options{Registerer: prometheus.NewRegistry()})
		},
	}
}

// fakeCrawl serves a manifest, parquet index shards and one WARC file the
// way the public archive host does.
type fakeCrawl struct {
	*httptest.Server
	mu    sync.Mutex
	paths []string
}

type indexRow struct {
	URL          string    `parquet:"url"`
	TLD          string    `parquet:"url_host_tld"`
	Domain       string    `parquet:"url_host_registered_domain"`
	MIMEType     string    `parquet:"content_mime_type"`
	Languages    string    `parquet:"content_languages"`
	WARCFilename string    `parquet:"warc_filename"`
	WARCOffset   int64     `parquet:"warc_record_offset"`
	WARCLength   int64     `parquet:"warc_record_length"`
	FetchTime    time.Time `parquet:"fetch_time"`
}

func newFakeCrawl(t *testing.T) *fakeCrawl {
	t.Helper()

	var warc bytes.Buffer
	files := map[string][]byte{}
	manifest := make([]string, 0, shardCount+1)
	manifest = append(manifest, fmt.Sprintf("cc-index/table/cc-main/warc/crawl=%s/subset=crawldiagnostics/part-00000.c000.gz.parquet", crawlID))
	for s := 0; s < shardCount; s++ {
		rows := make([]indexRow, rowsPerShard)
		for j := range rows {
			topic, lang := "immigration", "eng"
			switch j {
			case 1:
				topic = "sports"
			case 2:
				lang = "deu"
			case 3:
				lang = "spa,eng"
			}
			url := fmt.Sprintf("https://example.com/%s/%d-%d", topic, s, j)
			member := gzipMember(t, warcResponse(url, fmt.Sprintf("Immigration news %d-%d", s, j)))
			rows[j] = indexRow{
				URL:          url,
				TLD:          "com",
				Domain:       "example.com",
				MIMEType:     "text/html",
				Languages:    lang,
				WARCFilename: warcPath,
				WARCOffset:   int64(warc.Len()),
				WARCLength:   int64(len(member)),
				FetchTime:    time.Date(2024, 2, 21, 10, s, j, 0, time.UTC),
			}
			warc.Write(member)
		}
		var shard bytes.Buffer
		w := parquet.NewGenericWriter[indexRow](&shard)
		_, err := w.Write(rows)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		files[shardPath(s)] = shard.Bytes()
		manifest = append(manifest, shardPath(s))
	}
	files[warcPath] = warc.Bytes()
	files[locator.ManifestPath(crawlID)] = gzipMember(t, []byte(strings.Join(manifest, "\n")+"\n"))

	fc := &fakeCrawl{}
	fc.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		fc.mu.Lock()
		fc.paths = append(fc.paths, path)
		fc.mu.Unlock()
		data, ok := files[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, path, time.Unix(0, 0), bytes.NewReader(data))
	}))
	t.Cleanup(fc.Close)
	return fc
}

func (f *fakeCrawl) requested(path string) bool {
	return f.requestedPrefix(path) > 0
}

func (f *fakeCrawl) requestedPrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.paths {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func shardPath(i int) string {
	return fmt.Sprintf("cc-index/table/cc-main/warc/crawl=%s/subset=warc/part-%05d.c000.gz.parquet", crawlID, i)
}

func warcResponse(url, text string) []byte {
	page := "<html><head><title>news</title></head><body><nav>menu</nav><p>" + text + "</p></body></html>"
	block := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(page)) +
		"\r\n" + page
	var b bytes.Buffer
	b.WriteString("WARC/1.0\r\n")
	b.WriteString("WARC-Type: response\r\n")
	b.WriteString("WARC-Date: 2024-02-21T10:00:00Z\r\n")
	b.WriteString("WARC-Record-ID: <urn:uuid:0190f0e4-3c1e-7b5a-9d1c-3f1d2c4b5a69>\r\n")
	fmt.Fprintf(&b, "WARC-Target-URI: %s\r\n", url)
	b.WriteString("Content-Type: application/http; msgtype=response\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(block))
	b.WriteString("\r\n")
	b.WriteString(block)
	b.WriteString("\r\n\r\n")
	return b.Bytes()
}

func gzipMember(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}
