package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ccslice/internal/aggregator"
	"github.com/JakeFAU/ccslice/internal/app"
	"github.com/JakeFAU/ccslice/internal/locator"
	"github.com/JakeFAU/ccslice/internal/session"
)

const (
	sampleMatches = 5
	listedShards  = 10
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

func newLocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "List the index shards of the configured crawl partition",
		RunE:  withApp(runLocate),
	}
}

func runLocate(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	cfg := a.Config
	shards, err := locator.New(a.Remote, a.Logger.Named("locator")).Locate(ctx, cfg.Partition())
	if err != nil {
		return fmt.Errorf("locate shards: %w", err)
	}
	selected := locator.Select(shards, cfg.Scan.MaxShards, cfg.Scan.AllShards)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d shards in %s, %d selected\n", len(shards), cfg.Partition(), len(selected))
	for i, shard := range shards {
		if i == listedShards {
			fmt.Fprintf(out, "  ... %d more\n", len(shards)-listedShards)
			break
		}
		fmt.Fprintf(out, "  %5d  %s\n", shard.Index, shard.URI)
	}
	return nil
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan index shards and export the matching rows",
		Long: `Scans the first scan.max_shards shards (or all of them with --scan.all_shards),
prints a sample of the matches and exports the match table for a later fetch.`,
		RunE: withApp(runScan),
	}
}

func runScan(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	s, err := a.NewSession()
	if err != nil {
		return err
	}
	matches, err := s.Scan(ctx)
	if err == nil {
		_, err = s.Export(context.WithoutCancel(ctx), matches)
	}
	if err == nil && matches.Total() > 0 {
		printSample(cmd.OutOrStdout(), matches)
	}
	summary, finishErr := s.Finish(ctx, err)
	return report(cmd.OutOrStdout(), summary, errors.Join(err, finishErr))
}

func newFetchCmd() *cobra.Command {
	var index string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch records from a previously exported match table",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App) error {
			return runFetch(ctx, cmd, a, index)
		}),
	}
	cmd.Flags().StringVar(&index, "index", "", "match table path in the output store (default export.path)")
	return cmd
}

func runFetch(ctx context.Context, cmd *cobra.Command, a *app.App, index string) error {
	if index == "" {
		index = a.Config.ExportPath()
	}
	if index == "" {
		return errors.New("--index is required when export is disabled")
	}
	s, err := a.NewSession()
	if err != nil {
		return err
	}
	crawlID, records, err := aggregator.Import(ctx, a.Blobs, index)
	if err != nil {
		return fmt.Errorf("load match table: %w", err)
	}
	if crawlID != s.Partition().CrawlID {
		a.Logger.Warn("match table belongs to another crawl",
			zap.String("table_crawl_id", crawlID),
			zap.String("configured_crawl_id", s.Partition().CrawlID),
		)
	}
	s.UseIndex(index, len(records))
	if len(records) == 0 {
		a.Logger.Info("No matching records found.")
	} else {
		_, err = s.Fetch(ctx, records)
	}
	summary, finishErr := s.Finish(ctx, err)
	return report(cmd.OutOrStdout(), summary, errors.Join(err, finishErr))
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan the index, then fetch the first matching records",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App) error {
			s, err := a.NewSession()
			if err != nil {
				return err
			}
			summary, matches, err := s.Run(ctx)
			if matches != nil && matches.Total() > 0 {
				printSample(cmd.OutOrStdout(), matches)
			}
			return report(cmd.OutOrStdout(), summary, err)
		}),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// No configuration is needed to print the version.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ccslice %s\n", Version)
		},
	}
}

func printSample(out io.Writer, matches *aggregator.MatchSet) {
	fmt.Fprintln(out, "sample matches:")
	for _, rec := range matches.First(sampleMatches) {
		fmt.Fprintf(out, "  %s [%s]\n", rec.URL, rec.Languages)
	}
}

// report prints the summary lines and turns an interrupted run into an error.
func report(out io.Writer, summary session.Summary, err error) error {
	for _, line := range summary.Lines() {
		fmt.Fprintln(out, line)
	}
	if err != nil {
		return err
	}
	if summary.Interrupted {
		return errInterrupted
	}
	return nil
}
