package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)

	require.Equal(t, "CC-MAIN-2024-10", cfg.Crawl.ID)
	require.Equal(t, "warc", cfg.Crawl.Subset)
	require.Equal(t, "https://data.commoncrawl.org", cfg.Crawl.BaseURL)
	require.Equal(t, 1, cfg.Scan.MaxShards)
	require.Equal(t, 2, cfg.Scan.Concurrency)
	require.Equal(t, []string{"eng"}, cfg.Filter.Languages)
	require.Equal(t, LanguageMatchContains, cfg.Filter.LanguageMatch)
	require.Equal(t, "text/html", cfg.Filter.MIMEType)
	require.Equal(t, 10, cfg.Fetch.MaxRecords)
	require.Equal(t, 4, cfg.Fetch.Concurrency)
	require.Equal(t, BackendLocal, cfg.Output.Backend)
	require.Equal(t, "filtered_data", cfg.Output.Dir)
	require.Equal(t, "extracted_documents", cfg.DB.Table)
	require.Equal(t, int64(1<<30), cfg.Export.MaxBytes)
	require.Equal(t, "index/CC-MAIN-2024-10.parquet", cfg.ExportPath())
	require.Equal(t, 60*time.Second, cfg.HTTPTimeout())
	require.True(t, cfg.Logging.Development)
	require.Empty(t, cfg.Logging.Level)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawl:
  id: CC-MAIN-2023-50
scan:
  max_shards: 3
  concurrency: 4
filter:
  keywords: [immigration, visa]
  languages: [eng, spa]
  language_match: exact
fetch:
  max_records: 25
http:
  timeout_seconds: 15
  requests_per_second: 2.5
export:
  path: tables/matches.parquet
output:
  backend: gcs
  gcs_bucket: cc-slices
  prefix: runs/1
pubsub:
  project_id: proj
  topic_name: documents
logging:
  development: false
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	require.Equal(t, "CC-MAIN-2023-50", cfg.Crawl.ID)
	require.Equal(t, 3, cfg.Scan.MaxShards)
	require.Equal(t, []string{"immigration", "visa"}, cfg.Filter.Keywords)
	require.Equal(t, 25, cfg.Fetch.MaxRecords)
	require.InDelta(t, 2.5, cfg.HTTP.RequestsPerSecond, 1e-9)
	require.Equal(t, "tables/matches.parquet", cfg.ExportPath())
	require.Equal(t, BackendGCS, cfg.Output.Backend)
	require.Equal(t, "cc-slices", cfg.Output.GCSBucket)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "warn", cfg.Logging.Level)

	filter := cfg.Filter.Spec()
	require.True(t, filter.LanguageExact)
	require.Equal(t, []string{"eng", "spa"}, filter.Languages)
	pred, err := filter.Build()
	require.NoError(t, err)
	require.Contains(t, pred.String(), "immigration")
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan:\n  max_shards: 3\nfetch:\n  max_records: 25\n"), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("scan.max_shards", 1, "")
	flags.Int("fetch.max_records", 10, "")
	require.NoError(t, flags.Parse([]string{"--scan.max_shards=7"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Scan.MaxShards)
	// Unchanged flags do not shadow the file.
	require.Equal(t, 25, cfg.Fetch.MaxRecords)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.ErrorContains(t, err, "read config")
}

func TestExportDisabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Export.Enabled = false
	require.Empty(t, cfg.ExportPath())
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bad crawl id", mutate: func(c *Config) { c.Crawl.ID = "2024-10" }, want: "crawl.id"},
		{name: "no shards", mutate: func(c *Config) { c.Scan.MaxShards = 0 }, want: "scan.max_shards"},
		{name: "scan concurrency", mutate: func(c *Config) { c.Scan.Concurrency = 0 }, want: "scan.concurrency"},
		{name: "negative records", mutate: func(c *Config) { c.Fetch.MaxRecords = -1 }, want: "fetch.max_records"},
		{name: "fetch concurrency", mutate: func(c *Config) { c.Fetch.Concurrency = 0 }, want: "fetch.concurrency"},
		{name: "queue depth", mutate: func(c *Config) { c.Fetch.QueueDepth = 0 }, want: "fetch.queue_depth"},
		{name: "timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "rate", mutate: func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, want: "http.requests_per_second"},
		{name: "language match", mutate: func(c *Config) { c.Filter.LanguageMatch = "prefix" }, want: "filter.language_match"},
		{name: "bad pattern", mutate: func(c *Config) { c.Filter.URLPattern = "([" }, want: "filter.url_pattern"},
		{name: "unknown backend", mutate: func(c *Config) { c.Output.Backend = "s3" }, want: "output.backend"},
		{name: "empty dir", mutate: func(c *Config) { c.Output.Dir = " " }, want: "output.dir"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Output.Backend = BackendGCS }, want: "output.gcs_bucket"},
		{name: "pubsub project", mutate: func(c *Config) { c.PubSub.TopicName = "docs" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestAllShardsAllowsZeroLimit(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Scan.MaxShards = 0
	cfg.Scan.AllShards = true
	require.NoError(t, cfg.Validate())
}

func validConfig() Config {
	return Config{
		Crawl:  CrawlConfig{ID: "CC-MAIN-2024-10", Subset: "warc"},
		Scan:   ScanConfig{MaxShards: 1, Concurrency: 1},
		Filter: FilterConfig{Languages: []string{"eng"}, LanguageMatch: LanguageMatchContains},
		Fetch:  FetchConfig{MaxRecords: 10, Concurrency: 1, QueueDepth: 8},
		HTTP:   HTTPConfig{TimeoutSeconds: 10},
		Export: ExportConfig{Enabled: true},
		Output: OutputConfig{Backend: BackendLocal, Dir: "out"},
	}
}
