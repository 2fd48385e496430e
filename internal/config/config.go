// Package config loads and validates ccslice configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/ccslice/internal/ccindex"
)

// Output backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Language match modes.
const (
	LanguageMatchContains = "contains"
	LanguageMatchExact    = "exact"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Export  ExportConfig  `mapstructure:"export"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig selects the crawl partition and archive host.
type CrawlConfig struct {
	ID      string `mapstructure:"id"`
	Subset  string `mapstructure:"subset"`
	BaseURL string `mapstructure:"base_url"`
}

// ScanConfig governs how many index shards are scanned and how many at once.
type ScanConfig struct {
	AllShards   bool `mapstructure:"all_shards"`
	MaxShards   int  `mapstructure:"max_shards"`
	Concurrency int  `mapstructure:"concurrency"`
}

// FilterConfig describes the row predicate.
type FilterConfig struct {
	URLPattern    string   `mapstructure:"url_pattern"`
	Keywords      []string `mapstructure:"keywords"`
	Languages     []string `mapstructure:"languages"`
	LanguageMatch string   `mapstructure:"language_match"`
	MIMEType      string   `mapstructure:"mime_type"`
}

// FetchConfig governs the record worker pool.
type FetchConfig struct {
	MaxRecords   int   `mapstructure:"max_records"`
	Concurrency  int   `mapstructure:"concurrency"`
	QueueDepth   int   `mapstructure:"queue_depth"`
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// HTTPConfig configures the archive client.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ExportConfig controls the match table export.
type ExportConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// OutputConfig selects where documents, tables and summaries are written.
type OutputConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional document catalog.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	SessionTable string `mapstructure:"session_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig enables the status and metrics endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig selects the zap flavor and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file, the environment and
// flags, in increasing precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CCSLICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.id", "CC-MAIN-2024-10")
	v.SetDefault("crawl.subset", ccindex.DefaultSubset)
	v.SetDefault("crawl.base_url", "https://data.commoncrawl.org")
	v.SetDefault("scan.all_shards", false)
	v.SetDefault("scan.max_shards", 1)
	v.SetDefault("scan.concurrency", 2)
	v.SetDefault("filter.url_pattern", "")
	v.SetDefault("filter.keywords", []string{})
	v.SetDefault("filter.languages", []string{"eng"})
	v.SetDefault("filter.language_match", LanguageMatchContains)
	v.SetDefault("filter.mime_type", "text/html")
	v.SetDefault("fetch.max_records", 10)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.queue_depth", 64)
	v.SetDefault("fetch.max_body_bytes", 16<<20)
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "ccslice/0.1 (+https://github.com/JakeFAU/ccslice)")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 4)
	v.SetDefault("export.enabled", true)
	v.SetDefault("export.path", "")
	v.SetDefault("export.max_bytes", int64(1<<30))
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.dir", "filtered_data")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "extracted_documents")
	v.SetDefault("db.session_table", "retrieval_sessions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := c.Partition().Validate(); err != nil {
		return fmt.Errorf("crawl.id: %w", err)
	}
	if c.Scan.MaxShards <= 0 && !c.Scan.AllShards {
		return fmt.Errorf("scan.max_shards must be > 0 unless scan.all_shards is set")
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}
	if c.Fetch.MaxRecords < 0 {
		return fmt.Errorf("fetch.max_records must be >= 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.QueueDepth <= 0 {
		return fmt.Errorf("fetch.queue_depth must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	switch strings.ToLower(c.Filter.LanguageMatch) {
	case "", LanguageMatchContains, LanguageMatchExact:
	default:
		return fmt.Errorf("filter.language_match must be %q or %q", LanguageMatchContains, LanguageMatchExact)
	}
	if _, err := c.Filter.Spec().Build(); err != nil {
		return fmt.Errorf("filter.url_pattern: %w", err)
	}
	switch c.Output.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Output.Dir) == "" {
			return fmt.Errorf("output.dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Output.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("output.backend must be one of %s, %s, %s", BackendLocal, BackendMemory, BackendGCS)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Partition returns the configured crawl partition.
func (c Config) Partition() ccindex.CrawlPartition {
	return ccindex.CrawlPartition{CrawlID: c.Crawl.ID, Subset: c.Crawl.Subset}
}

// Spec converts the filter settings into a ccindex.FilterSpec.
func (f FilterConfig) Spec() ccindex.FilterSpec {
	return ccindex.FilterSpec{
		URLPattern:    f.URLPattern,
		Keywords:      f.Keywords,
		Languages:     f.Languages,
		LanguageExact: strings.EqualFold(f.LanguageMatch, LanguageMatchExact),
		MIMEType:      f.MIMEType,
	}
}

// ExportPath is where the match table goes, or "" when export is disabled.
func (c Config) ExportPath() string {
	if !c.Export.Enabled {
		return ""
	}
	if c.Export.Path != "" {
		return c.Export.Path
	}
	return fmt.Sprintf("index/%s.parquet", c.Crawl.ID)
}

// HTTPTimeout converts the timeout setting into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
