package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/nascar-calendar/internal/config"
	"github.com/yourusername/nascar-calendar/internal/logger"
)

// commandContext carries the flags and lazily loaded state shared by subcommands
type commandContext struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *logrus.Logger
}

func (c *commandContext) load(cmd *cobra.Command) error {
	if c.cfg != nil {
		return nil
	}
	cfg, err := config.LoadWithDefaults(c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.App.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.App.LogFormat = c.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.cfg = cfg
	c.logger = logger.New(cmd.ErrOrStderr(), cfg.App.LogLevel, cfg.App.LogFormat)
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "nascar-calendar",
		Short:         "Publish NASCAR schedules as iCalendar feeds",
		Long:          `Fetches the NASCAR Cup, Xfinity and Truck schedules and publishes them as stable, idempotent iCalendar documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFile, "config", "c", config.DefaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "", "Override the configured log format (text or json)")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newDaemonCommand(ctx))
	rootCmd.AddCommand(newTracksCommand(ctx))
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nascar-calendar %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
