package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/nascar-calendar/internal/metrics"
	"github.com/yourusername/nascar-calendar/internal/service"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		year      int
		series    []string
		dryRun    bool
		printDocs bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Fetch the schedules and publish the calendar once",
		Long: `Runs one pass: fetches each series, normalizes and enriches the races, merges them
into the previously published calendar and writes it when anything changed.
Exits non-zero when any series failed; that series' published entries are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.load(cmd); err != nil {
				return err
			}
			opts := service.RunOptions{
				Year:   year,
				DryRun: dryRun,
			}
			if opts.Year == 0 {
				opts.Year = ctx.cfg.TargetYear(time.Now())
			}
			if len(series) > 0 {
				parsed, err := parseSeriesList(series)
				if err != nil {
					return err
				}
				opts.Series = parsed
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runGenerate(runCtx, cmd, ctx, opts, printDocs)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Season to generate (defaults to acquisition.year or the current year)")
	cmd.Flags().StringSliceVar(&series, "series", nil, "Series to fetch, e.g. cup,xfinity,truck (defaults to acquisition.series)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Synthesize without writing any document")
	cmd.Flags().BoolVar(&printDocs, "print", false, "Write the synthesized documents to stdout")

	return cmd
}

func runGenerate(runCtx context.Context, cmd *cobra.Command, ctx *commandContext, opts service.RunOptions, printDocs bool) error {
	pipeline, err := buildPipeline(runCtx, ctx.cfg, ctx.logger)
	if err != nil {
		return err
	}

	report, runErr := pipeline.Run(runCtx, opts)
	if report != nil {
		renderReport(cmd.OutOrStdout(), report)
		if printDocs {
			for _, d := range report.Documents {
				_, _ = cmd.OutOrStdout().Write(d.Bytes)
			}
		}
	}

	if path := ctx.cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			ctx.logger.WithError(err).Warn("Failed to write metrics textfile")
		}
	}

	if report == nil {
		return runErr
	}
	return errors.Join(runErr, seriesFailure(report))
}

// seriesFailure names every failed series and its reason, or returns nil
func seriesFailure(report *service.RunReport) error {
	failed := report.FailedSeries()
	if len(failed) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(failed))
	for _, f := range failed {
		reasons = append(reasons, fmt.Sprintf("%s/%d: %v", f.Series, f.Year, f.Err))
	}
	return fmt.Errorf("%d series failed: %s", len(failed), strings.Join(reasons, "; "))
}
