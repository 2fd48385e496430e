// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/api"
	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/clock/system"
	"github.com/JakeFAU/ccslice/internal/config"
	"github.com/JakeFAU/ccslice/internal/extract"
	"github.com/JakeFAU/ccslice/internal/hash/sha256"
	iduuid "github.com/JakeFAU/ccslice/internal/id/uuid"
	"github.com/JakeFAU/ccslice/internal/locator"
	"github.com/JakeFAU/ccslice/internal/metrics"
	"github.com/JakeFAU/ccslice/internal/policy/ratelimit"
	"github.com/JakeFAU/ccslice/internal/progress"
	"github.com/JakeFAU/ccslice/internal/progress/sinks"
	"github.com/JakeFAU/ccslice/internal/publisher/pubsub"
	"github.com/JakeFAU/ccslice/internal/rangefetch"
	"github.com/JakeFAU/ccslice/internal/remote"
	"github.com/JakeFAU/ccslice/internal/scanner"
	"github.com/JakeFAU/ccslice/internal/session"
	"github.com/JakeFAU/ccslice/internal/storage/gcs"
	"github.com/JakeFAU/ccslice/internal/storage/local"
	"github.com/JakeFAU/ccslice/internal/storage/memory"
	"github.com/JakeFAU/ccslice/internal/storage/postgres"
	"github.com/JakeFAU/ccslice/internal/warcrecord"
)

// Options tune how services are assembled.
type Options struct {
	// Registerer receives the progress collectors; nil means the default registry.
	Registerer prometheus.Registerer
	// Sinks are appended to the built-in progress sinks.
	Sinks []progress.Sink
}

// App holds all the shared, long-lived services for one command invocation.
// Optional services (Documents, Publisher, Server) are nil when not configured.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Remote    *remote.Client
	Blobs     ccindex.BlobStore
	Documents *postgres.DocumentStore
	Publisher ccindex.Publisher
	Hub       *progress.Hub
	Status    *sinks.StatusSink
	Server    *api.Server

	closers []namedCloser
	served  chan struct{}
}

type namedCloser struct {
	name  string
	close func() error
}

// New creates and initializes the services described by cfg. It fails fast
// if any configured service cannot be initialized, releasing whatever was
// already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	a.Remote = remote.New(remote.Config{
		BaseURL:   cfg.Crawl.BaseURL,
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, limiter, logger.Named("remote"))

	if a.Blobs, err = a.openBlobStore(ctx); err != nil {
		return nil, err
	}

	if cfg.DB.DSN != "" {
		logger.Info("connecting to postgres", zap.String("table", cfg.DB.Table))
		docs, err := postgres.NewDocumentStore(ctx, postgres.Config{
			DSN:          cfg.DB.DSN,
			Table:        cfg.DB.Table,
			SessionTable: cfg.DB.SessionTable,
			MaxConns:     cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize document store: %w", err)
		}
		a.Documents = docs
		a.addCloser("postgres", func() error {
			docs.Close()
			return nil
		})
	}

	if cfg.PubSub.TopicName != "" {
		logger.Info("connecting to pubsub", zap.String("topic", cfg.PubSub.TopicName))
		pub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize publisher: %w", err)
		}
		a.Publisher = pub
		a.addCloser("pubsub", pub.Close)
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, err
	}
	a.Status = sinks.NewStatusSink()
	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress")), a.Status, promSink}
	if a.Documents != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(a.Documents, logger.Named("session_store")))
	}
	hubSinks = append(hubSinks, opts.Sinks...)
	a.Hub = progress.NewHub(progress.Config{Logger: logger.Named("progress_hub")}, hubSinks...)

	if cfg.Metrics.Addr != "" {
		a.Server = api.NewServer(a.Status, logger.Named("api"))
	}

	logger.Info("application services initialized",
		zap.String("crawl_id", cfg.Crawl.ID),
		zap.String("output_backend", cfg.Output.Backend),
		zap.Bool("catalog", a.Documents != nil),
		zap.Bool("notifications", a.Publisher != nil),
	)
	return a, nil
}

func (a *App) openBlobStore(ctx context.Context) (ccindex.BlobStore, error) {
	out := a.Config.Output
	switch out.Backend {
	case config.BackendLocal:
		a.Logger.Info("using local blob store", zap.String("dir", out.Dir))
		store, err := local.New(local.Config{BaseDir: out.Dir})
		if err != nil {
			return nil, fmt.Errorf("initialize local store: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		a.Logger.Info("using in-memory blob store; output is discarded on exit")
		return memory.NewBlobStore(), nil
	case config.BackendGCS:
		a.Logger.Info("using gcs blob store", zap.String("bucket", out.GCSBucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.addCloser("gcs", client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: out.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", out.Backend)
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// NewSession assembles a retrieval session from the configured services.
func (a *App) NewSession() (*session.Session, error) {
	cfg := a.Config
	pred, err := cfg.Filter.Spec().Build()
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	deps := session.Deps{
		Locator:   locator.New(a.Remote, a.Logger.Named("locator")),
		Scanner:   scanner.New(a.Remote, a.Logger.Named("scanner")),
		Fetcher:   rangefetch.New(a.Remote, a.Logger.Named("rangefetch")),
		Decoder:   warcrecord.New(cfg.Fetch.MaxBodyBytes),
		Extractor: extract.New(),
		Blobs:     a.Blobs,
		Publisher: a.Publisher,
		Hasher:    sha256.New(),
		Clock:     system.New(),
		IDs:       iduuid.New(),
		Emitter:   a.Hub,
		Logger:    a.Logger.Named("session"),
	}
	if a.Documents != nil {
		deps.Documents = a.Documents
	}
	return session.New(deps, session.Options{
		Partition:        cfg.Partition(),
		Filter:           pred,
		MaxShards:        cfg.Scan.MaxShards,
		AllShards:        cfg.Scan.AllShards,
		ScanConcurrency:  cfg.Scan.Concurrency,
		MaxRecords:       cfg.Fetch.MaxRecords,
		FetchConcurrency: cfg.Fetch.Concurrency,
		QueueDepth:       cfg.Fetch.QueueDepth,
		OutputPrefix:     cfg.Output.Prefix,
		ExportPath:       cfg.ExportPath(),
		ExportMaxBytes:   cfg.Export.MaxBytes,
		Topic:            cfg.PubSub.TopicName,
	})
}

// Start serves the status endpoint in the background until ctx is done. It
// is a no-op when metrics.addr is unset.
func (a *App) Start(ctx context.Context) {
	if a.Server == nil || a.served != nil {
		return
	}
	a.served = make(chan struct{})
	addr := a.Config.Metrics.Addr
	go func() {
		defer close(a.served)
		a.Logger.Info("serving status endpoint", zap.String("addr", addr))
		if err := a.Server.Serve(ctx, addr); err != nil {
			a.Logger.Error("status endpoint failed", zap.Error(err))
		}
	}()
}

// Close drains the progress hub, waits for the status endpoint and releases
// clients in reverse order of creation. Errors are logged, not returned.
func (a *App) Close(ctx context.Context) {
	a.Logger.Info("shutting down application services")
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			a.Logger.Warn("error closing progress hub", zap.Error(err))
		}
	}
	if a.served != nil {
		select {
		case <-a.served:
		case <-ctx.Done():
			a.Logger.Warn("status endpoint still running at shutdown")
		}
	}
	a.closeResources()
	// Syncing stderr fails on some platforms; nothing useful can be done.
	_ = a.Logger.Sync()
}

func (a *App) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
