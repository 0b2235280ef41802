package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/nascar-calendar/internal/health"
	"github.com/yourusername/nascar-calendar/internal/metrics"
	"github.com/yourusername/nascar-calendar/internal/scheduler"
	"github.com/yourusername/nascar-calendar/internal/service"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var runAtStart bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Publish the calendar on a cron schedule",
		Long:  `Registers the pipeline on schedule.cron and serves /health, /ready and /metrics until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.load(cmd); err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(runCtx, ctx, runAtStart)
		},
	}

	cmd.Flags().BoolVar(&runAtStart, "run-at-start", true, "Run one pass immediately before waiting for the schedule")
	return cmd
}

func runDaemon(ctx context.Context, cc *commandContext, runAtStart bool) error {
	cfg, log := cc.cfg, cc.logger

	pipeline, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Year is resolved per run so the daemon rolls over to the new season on January 1st.
	opts := service.RunOptions{Year: cfg.Acquisition.Year}

	sched := scheduler.NewScheduler(pipeline, log)
	cronExpr := cfg.Schedule.Cron
	if cronExpr == "" {
		cronExpr = "0 6 * * *"
	}
	if err := sched.SchedulePipeline(cronExpr, opts); err != nil {
		return err
	}

	var metricsHandler = metrics.Handler()
	if !cfg.Metrics.Enabled {
		metricsHandler = nil
	}
	server := health.NewServer(health.Config{
		ServiceName:    cfg.App.Name,
		Version:        Version,
		Commit:         GitCommit,
		Port:           strconv.Itoa(cfg.Metrics.Port),
		Logger:         log,
		Checks:         map[string]health.Checker{"scheduler": sched},
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
	})
	if err := server.Start(ctx); err != nil {
		return err
	}

	if err := sched.Start(); err != nil {
		return err
	}
	server.SetReady(true)

	log.WithFields(logrus.Fields{
		"cron":     cronExpr,
		"next_run": sched.GetNextRun(),
		"version":  Version,
	}).Info("NASCAR calendar daemon started")

	if runAtStart {
		go func() {
			runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
			defer cancel()
			_, _ = sched.RunNow(runCtx, opts)
		}()
	}

	<-ctx.Done()
	log.Info("Shutdown signal received")
	server.SetReady(false)

	if err := sched.Stop(); err != nil {
		log.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	return nil
}
