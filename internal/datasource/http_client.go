package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is a desktop Chrome user agent, matching what the schedule page expects
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxFeedBytes caps the feed body; a season schedule is well under 1 MiB
const maxFeedBytes = 16 << 20

// HTTPClientConfig holds configuration for HTTP clients
type HTTPClientConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64 // requests per second
	UserAgent    string
}

// DefaultHTTPClientConfig returns recommended defaults
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RateLimit:    1.0,
		UserAgent:    DefaultUserAgent,
	}
}

// HTTPFetcher requests the feed directly with browser-like headers.
// It works only while the CDN does not enforce a browser TLS fingerprint.
type HTTPFetcher struct {
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *logrus.Logger
}

// NewHTTPFetcher creates a new rate-limited HTTP fetcher
func NewHTTPFetcher(cfg HTTPClientConfig, logger *logrus.Logger) *HTTPFetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1.0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = customRetryPolicy()
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = logger.WithField("component", "http_fetcher")

	return &HTTPFetcher{
		client:    retryClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Name returns the fetcher name
func (f *HTTPFetcher) Name() string {
	return "http"
}

// Fetch executes a GET for the feed URL
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if req.PageURL != "" {
		httpReq.Header.Set("Referer", req.PageURL)
		httpReq.Header.Set("Origin", "https://www.nascar.com")
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: req.FeedURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// Close closes any resources held by the client
func (f *HTTPFetcher) Close() error {
	f.client.HTTPClient.CloseIdleConnections()
	return nil
}

// customRetryPolicy defines which HTTP responses should trigger a retry
func customRetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			// Retry on network errors
			return true, nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true, nil
		}
		return false, nil
	}
}
