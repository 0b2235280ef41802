package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/config"
	"github.com/yourusername/nascar-calendar/internal/datasource"
	"github.com/yourusername/nascar-calendar/internal/models"
	"github.com/yourusername/nascar-calendar/internal/refdata"
	"github.com/yourusername/nascar-calendar/internal/service"
	"github.com/yourusername/nascar-calendar/internal/store"
)

// loadTracks returns the configured track table, or the built-in one
func loadTracks(cfg *config.Config) (*refdata.Store, error) {
	if cfg.Reference.TracksFile != "" {
		return refdata.LoadFile(cfg.Reference.TracksFile)
	}
	return refdata.LoadDefault()
}

// openStore returns the document store selected by the output backend
func openStore(ctx context.Context, cfg config.OutputConfig) (store.Store, error) {
	switch cfg.Backend {
	case "s3":
		return store.NewS3StoreFromEnv(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region)
	case "file", "":
		return store.NewFileStore(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", cfg.Backend)
	}
}

// parseSeriesList accepts a comma separated list of series names, slugs or feed ids
func parseSeriesList(values []string) ([]models.Series, error) {
	var out []models.Series
	seen := make(map[models.Series]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := models.ParseSeries(part)
			if err != nil {
				return nil, err
			}
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// buildPipeline wires acquisition, enrichment, synthesis and publication from configuration
func buildPipeline(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*service.Pipeline, error) {
	tracks, err := loadTracks(cfg)
	if err != nil {
		return nil, err
	}
	log.WithField("tracks", tracks.Len()).Debug("Reference data loaded")

	factory := datasource.NewFactory(log)
	fetcher, err := factory.NewFetcher(cfg.Acquisition)
	if err != nil {
		return nil, err
	}
	client := factory.NewScheduleClient(cfg.Acquisition, fetcher)

	policy, err := models.ParseRemovalPolicy(cfg.Calendar.RemovalPolicy)
	if err != nil {
		return nil, err
	}
	synthesizer := service.NewCalendarSynthesizer(service.SynthesizerConfig{
		UIDDomain:     cfg.Calendar.UIDDomain,
		EventDuration: cfg.Calendar.EventDuration(),
		RemovalPolicy: policy,
	}, log)

	docs, err := openStore(ctx, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to open output store: %w", err)
	}

	series, err := parseSeriesList(cfg.Acquisition.Series)
	if err != nil {
		return nil, err
	}

	return service.NewPipeline(
		client,
		service.NewDataNormalizer(tracks, log),
		synthesizer,
		docs,
		service.PipelineConfig{
			Series:       series,
			Concurrency:  cfg.Acquisition.Concurrency,
			CalendarName: cfg.Calendar.Name,
			ProductID:    cfg.Calendar.ProductID,
			Output:       cfg.Output,
		},
		log,
	), nil
}
