package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/models"
)

const (
	// DefaultFeedURLTemplate is the CDN path of the combined schedule feed
	DefaultFeedURLTemplate = "https://cf.nascar.com/cacher/{year}/{series_id}/schedule-combined-feed.json"
	// DefaultPageURLTemplate is the schedule page whose load requests the feed
	DefaultPageURLTemplate = "https://www.nascar.com/{series_slug}/{year}/schedule/"
)

// RetryConfig bounds each fetch attempt and the retries around it
type RetryConfig struct {
	AttemptTimeout  time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns recommended defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		AttemptTimeout:  45 * time.Second,
		MaxRetries:      3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// ScheduleResult is the outcome of one successful series/year acquisition
type ScheduleResult struct {
	Series   models.Series
	Year     int
	Records  []RawRaceRecord
	Dropped  []error
	Attempts int
	Duration time.Duration
}

// ScheduleClient fetches and validates schedule feeds
type ScheduleClient struct {
	fetcher         Fetcher
	validate        *validator.Validate
	retry           RetryConfig
	feedURLTemplate string
	pageURLTemplate string
	logger          *logrus.Logger
}

// ScheduleClientOption customizes a ScheduleClient
type ScheduleClientOption func(*ScheduleClient)

// WithRetryConfig overrides retry behaviour
func WithRetryConfig(cfg RetryConfig) ScheduleClientOption {
	return func(c *ScheduleClient) { c.retry = cfg }
}

// WithURLTemplates overrides the feed and page URL templates
func WithURLTemplates(feed, page string) ScheduleClientOption {
	return func(c *ScheduleClient) {
		if feed != "" {
			c.feedURLTemplate = feed
		}
		if page != "" {
			c.pageURLTemplate = page
		}
	}
}

// NewScheduleClient creates a new schedule client
func NewScheduleClient(fetcher Fetcher, logger *logrus.Logger, opts ...ScheduleClientOption) *ScheduleClient {
	if logger == nil {
		logger = logrus.New()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	c := &ScheduleClient{
		fetcher:         fetcher,
		validate:        v,
		retry:           DefaultRetryConfig(),
		feedURLTemplate: DefaultFeedURLTemplate,
		pageURLTemplate: DefaultPageURLTemplate,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request builds the fetch request for a series and year
func (c *ScheduleClient) Request(series models.Series, year int) FetchRequest {
	r := strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{series_id}", strconv.Itoa(series.FeedID()),
		"{series_slug}", series.PageSlug(),
	)
	return FetchRequest{
		FeedURL: r.Replace(c.feedURLTemplate),
		PageURL: r.Replace(c.pageURLTemplate),
	}
}

// FetchSchedule retrieves the raw race records for a series and year.
// Records failing the schema are dropped and reported in the result, not returned as an error.
func (c *ScheduleClient) FetchSchedule(ctx context.Context, series models.Series, year int) (*ScheduleResult, error) {
	if !series.Valid() {
		return nil, models.NewPipelineError(models.KindFatal, series, year, "unsupported series", nil)
	}

	start := time.Now()
	req := c.Request(series, year)
	log := c.logger.WithFields(logrus.Fields{
		"component": "acquisition",
		"fetcher":   c.fetcher.Name(),
		"series":    series,
		"year":      year,
	})

	body, attempts, err := c.fetchWithRetry(ctx, req, log)
	if err != nil {
		return nil, c.classify(series, year, err)
	}

	raw, err := decodeEnvelope(body)
	if err != nil {
		return nil, models.NewPipelineError(models.KindUpstream, series, year, "invalid feed envelope", err)
	}

	result := &ScheduleResult{
		Series:   series,
		Year:     year,
		Records:  make([]RawRaceRecord, 0, len(raw)),
		Attempts: attempts,
	}

	for i, item := range raw {
		rec, err := c.decodeRecord(item)
		if err != nil {
			recErr := models.NewRecordError(models.KindSchema, series, rec.ID(), fmt.Sprintf("record %d", i), err)
			log.WithError(recErr).Warn("Dropping schedule record")
			result.Dropped = append(result.Dropped, recErr)
			continue
		}
		result.Records = append(result.Records, rec)
	}

	result.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"records":  len(result.Records),
		"dropped":  len(result.Dropped),
		"attempts": attempts,
		"duration": result.Duration,
	}).Info("Fetched schedule feed")

	return result, nil
}

func (c *ScheduleClient) fetchWithRetry(ctx context.Context, req FetchRequest, log *logrus.Entry) ([]byte, int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.MaxElapsedTime = 0

	var retries uint64
	if c.retry.MaxRetries > 0 {
		retries = uint64(c.retry.MaxRetries)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	var (
		body     []byte
		attempts int
	)
	op := func() error {
		attempts++
		attemptCtx := ctx
		if c.retry.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.retry.AttemptTimeout)
			defer cancel()
		}

		var err error
		body, err = c.fetcher.Fetch(attemptCtx, req)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait,
		}).Warn("Schedule fetch failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, attempts, err
	}
	return body, attempts, nil
}

// classify maps a fetch failure onto the error taxonomy
func (c *ScheduleClient) classify(series models.Series, year int, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && !statusErr.Retryable() {
		return models.NewPipelineError(models.KindUpstream, series, year, "feed request rejected", err)
	}
	return models.NewPipelineError(models.KindTransient, series, year, "feed fetch failed", err)
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}

type scheduleEnvelope struct {
	Status   *int            `json:"status"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

// decodeEnvelope checks status and that response is an array, returning its elements undecoded
func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var env scheduleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if env.Status == nil {
		return nil, errors.New("missing status")
	}
	if *env.Status != 200 {
		return nil, fmt.Errorf("status %d: %s", *env.Status, env.Message)
	}
	trimmed := bytes.TrimSpace(env.Response)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("response is not a sequence")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("malformed response array: %w", err)
	}
	return items, nil
}

func (c *ScheduleClient) decodeRecord(item json.RawMessage) (RawRaceRecord, error) {
	var rec RawRaceRecord
	if err := json.Unmarshal(item, &rec); err != nil {
		return rec, fmt.Errorf("record is not an object: %w", err)
	}
	rec.trimStrings()

	if err := c.validate.Struct(&rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Field()+" ("+fe.Tag()+")")
			}
			return rec, fmt.Errorf("invalid fields: %s", strings.Join(missing, ", "))
		}
		return rec, err
	}
	return rec, nil
}
