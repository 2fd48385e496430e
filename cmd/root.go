// Package cmd defines and implements the CLI commands for the ccslice executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/app"
	"github.com/JakeFAU/ccslice/internal/config"
	"github.com/JakeFAU/ccslice/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// Exit statuses returned by Execute.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitInterrupted = 130
)

// errInterrupted reports a command that stopped early on a signal. Whatever
// was finished has already been written.
var errInterrupted = errors.New("interrupted before completion")

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// builder creates the logger and services. Tests swap in memory-backed
// variants.
type builder struct {
	logger func(opts logging.Options) (*zap.Logger, error)
	app    func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)
}

func defaultBuilder() builder {
	return builder{
		logger: logging.New,
		app: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger, app.Options{})
		},
	}
}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg     config.Config
	logger  *zap.Logger
	builder builder
}

// newRootCmd creates and configures the root command.
func newRootCmd(b builder) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "ccslice",
		Short: "Retrieve a filtered slice of a Common Crawl snapshot.",
		Long: `ccslice scans the columnar URL index of one Common Crawl snapshot for rows
matching a URL pattern, language and MIME type, then fetches only the matching
archive records with ranged reads and writes their extracted text.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Configuration is loaded after flags are parsed so flags take precedence.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := b.logger(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger, builder: b}))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("crawl.id", "CC-MAIN-2024-10", "crawl snapshot identifier")
	flags.String("crawl.subset", "warc", "index subset")
	flags.String("crawl.base_url", "https://data.commoncrawl.org", "archive host")
	flags.Int("scan.max_shards", 1, "number of index shards to scan")
	flags.Bool("scan.all_shards", false, "scan every shard of the partition")
	flags.Int("scan.concurrency", 2, "shards scanned at once")
	flags.String("filter.url_pattern", "", "case-insensitive URL regular expression")
	flags.StringSlice("filter.keywords", nil, "URL keywords, any of which must appear")
	flags.StringSlice("filter.languages", []string{"eng"}, "content language codes")
	flags.String("filter.language_match", config.LanguageMatchContains, "contains or exact")
	flags.String("filter.mime_type", "text/html", "content MIME type")
	flags.Int("fetch.max_records", 10, "records to fetch from the match set")
	flags.Int("fetch.concurrency", 4, "records fetched at once")
	flags.String("output.backend", config.BackendLocal, "local, memory or gcs")
	flags.String("output.dir", "filtered_data", "output directory for the local backend")
	flags.String("output.prefix", "", "path prefix for documents and the summary")
	flags.String("export.path", "", "match table path (default index/<crawl>.parquet)")
	flags.String("metrics.addr", "", "serve /healthz, /metrics and /v1/progress on this address")
	flags.String("logging.level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newLocateCmd(),
		newScanCmd(),
		newFetchCmd(),
		newRunCmd(),
		newVersionCmd(),
	)
	return cmd
}

// withApp builds the services for one command, serves the status endpoint
// when configured and always closes the services afterwards.
func withApp(run func(ctx context.Context, cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, err := resolveRuntime(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := rt.builder.app(ctx, rt.cfg, rt.logger)
		if err != nil {
			return fmt.Errorf("initialize application services: %w", err)
		}
		serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
		a.Start(serveCtx)
		defer func() {
			stopServing()
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			a.Close(closeCtx)
		}()
		return run(ctx, cmd, a)
	}
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute runs the CLI and returns the process exit status. The first
// SIGINT or SIGTERM stops new work; a second one terminates immediately.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	err := newRootCmd(defaultBuilder()).ExecuteContext(ctx)
	return exitStatus(err)
}

func exitStatus(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		zap.L().Warn("command interrupted", zap.Error(err))
		fmt.Fprintln(os.Stderr, "ccslice:", err)
		return ExitInterrupted
	default:
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "ccslice:", err)
		return ExitError
	}
}
