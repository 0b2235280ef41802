package datasource

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/config"
)

// Fetcher modes
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
	ModeFile    = "file"
)

// Factory creates Fetcher and ScheduleClient implementations from configuration
type Factory struct {
	logger *logrus.Logger
}

// NewFactory creates a new data source factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Factory{logger: logger}
}

// NewFetcher creates the Fetcher selected by cfg.Mode, wrapped in a response
// cache when a cache TTL is configured
func (f *Factory) NewFetcher(cfg config.AcquisitionConfig) (Fetcher, error) {
	var fetcher Fetcher

	switch cfg.Mode {
	case ModeBrowser, "":
		bc := DefaultBrowserConfig()
		bc.ExecPath = cfg.Browser.ExecPath
		bc.Headless = cfg.Browser.Headless
		if cfg.Browser.UserAgent != "" {
			bc.UserAgent = cfg.Browser.UserAgent
		}
		if cfg.Browser.SettleSeconds > 0 {
			bc.Settle = time.Duration(cfg.Browser.SettleSeconds) * time.Second
		}
		fetcher = NewBrowserFetcher(bc, f.logger)

	case ModeHTTP:
		hc := DefaultHTTPClientConfig()
		if cfg.TimeoutSeconds > 0 {
			hc.Timeout = cfg.AttemptTimeout()
		}
		if cfg.HTTP.RateLimit > 0 {
			hc.RateLimit = cfg.HTTP.RateLimit
		}
		hc.MaxRetries = cfg.HTTP.MaxRetries
		if cfg.Browser.UserAgent != "" {
			hc.UserAgent = cfg.Browser.UserAgent
		}
		fetcher = NewHTTPFetcher(hc, f.logger)

	case ModeFile:
		if cfg.FixturesDir == "" {
			return nil, fmt.Errorf("fixtures directory is required for file mode")
		}
		fetcher = NewFileFetcher(cfg.FixturesDir)

	default:
		return nil, fmt.Errorf("unknown acquisition mode: %s", cfg.Mode)
	}

	if ttl := cfg.CacheTTL(); ttl > 0 {
		f.logger.WithFields(logrus.Fields{
			"fetcher": fetcher.Name(),
			"ttl":     ttl,
		}).Debug("Caching feed responses")
		fetcher = NewCachingFetcher(fetcher, ttl)
	}

	return fetcher, nil
}

// NewScheduleClient creates a ScheduleClient around fetcher using the retry and
// URL settings from cfg
func (f *Factory) NewScheduleClient(cfg config.AcquisitionConfig, fetcher Fetcher) *ScheduleClient {
	retry := DefaultRetryConfig()
	if cfg.TimeoutSeconds > 0 {
		retry.AttemptTimeout = cfg.AttemptTimeout()
	}
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryInitialMillis > 0 {
		retry.InitialInterval = time.Duration(cfg.RetryInitialMillis) * time.Millisecond
	}
	if cfg.RetryMaxMillis > 0 {
		retry.MaxInterval = time.Duration(cfg.RetryMaxMillis) * time.Millisecond
	}

	return NewScheduleClient(fetcher, f.logger,
		WithRetryConfig(retry),
		WithURLTemplates(cfg.FeedURLTemplate, cfg.PageURLTemplate),
	)
}
