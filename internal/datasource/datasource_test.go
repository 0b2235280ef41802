package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/nascar-calendar/internal/config"
	"github.com/yourusername/nascar-calendar/internal/models"
)

const validFeed = `{
  "status": 200,
  "message": "ok",
  "response": [
    {"Race_Id": 5501, "Race_Name": "Daytona 500", "Track_Id": 105, "Track_Name": " Daytona International Speedway ",
     "Race_State": "FL", "Race_Date": "2026-02-15T14:30:00-0500", "Race_Start": "2:30 PM ET",
     "Scheduled_Laps": 200, "Race_TV": "FOX", "Race_Radio": "MRN", "Race_Live_Stream": null,
     "Race_URL": "https://www.nascar.com/daytona-500", "Playoff_Round": 0},
    {"Race_Id": 5502, "Race_Name": "Ambetter Health 400", "Track_Name": "Atlanta Motor Speedway",
     "Race_Date": "2026-02-22T15:00:00-0500", "Scheduled_Laps": "260"}
  ]
}`

type fakeResponse struct {
	body []byte
	err  error
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses []fakeResponse
	requests  []FetchRequest
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r.body, r.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fastRetry() ScheduleClientOption {
	return WithRetryConfig(RetryConfig{
		AttemptTimeout:  time.Second,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func TestScheduleClientRequestURLs(t *testing.T) {
	client := NewScheduleClient(&fakeFetcher{}, quietLogger())

	req := client.Request(models.SeriesXfinity, 2026)
	assert.Equal(t, "https://cf.nascar.com/cacher/2026/2/schedule-combined-feed.json", req.FeedURL)
	assert.Equal(t, "https://www.nascar.com/nascar-xfinity-series/2026/schedule/", req.PageURL)
}

func TestFetchScheduleValidFeed(t *testing.T) {
	fetcher := &fakeFetcher{responses: []fakeResponse{{body: []byte(validFeed)}}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	result, err := client.FetchSchedule(context.Background(), models.SeriesCup, 2026)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Empty(t, result.Dropped)
	assert.Equal(t, 1, result.Attempts)

	first := result.Records[0]
	assert.Equal(t, int64(5501), first.ID())
	assert.Equal(t, "Daytona International Speedway", first.TrackName)
	assert.True(t, first.Has(FieldRaceTV))
	assert.False(t, first.Has(FieldRaceLiveStream), "null fields are not present")
	assert.Equal(t, "", first.PlayoffRoundText())

	laps, ok := FlexibleInt(result.Records[1].ScheduledLaps)
	assert.True(t, ok)
	assert.Equal(t, 260, laps)
	assert.False(t, result.Records[1].Has(FieldTrackID))
}

func TestFetchScheduleEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"non-200 status", `{"status": 500, "message": "boom", "response": []}`},
		{"missing status", `{"response": []}`},
		{"response is an object", `{"status": 200, "response": {"Race_Id": 1}}`},
		{"response missing", `{"status": 200}`},
		{"not json", `<html>Access Denied</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{responses: []fakeResponse{{body: []byte(tt.body)}}}
			client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

			_, err := client.FetchSchedule(context.Background(), models.SeriesCup, 2026)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrUpstream), "got %v", err)
		})
	}
}

func TestFetchScheduleDropsSchemaViolations(t *testing.T) {
	body := `{"status": 200, "response": [
		{"Race_Id": 1, "Track_Name": "Martinsville Speedway", "Race_Date": "2026-03-29T15:30:00-0400"},
		{"Track_Name": "Bristol Motor Speedway", "Race_Date": "2026-04-12T15:30:00-0400"},
		{"Race_Id": 3, "Race_Date": "2026-04-19T15:00:00-0400"},
		{"Race_Id": 4, "Track_Name": "Texas Motor Speedway"},
		{"Race_Id": 5, "Track_Name": "   ", "Race_Date": "2026-05-03T15:00:00-0400"},
		"not an object"
	]}`
	fetcher := &fakeFetcher{responses: []fakeResponse{{body: []byte(body)}}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	result, err := client.FetchSchedule(context.Background(), models.SeriesCup, 2026)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(1), result.Records[0].ID())
	require.Len(t, result.Dropped, 5)
	for _, d := range result.Dropped {
		assert.True(t, errors.Is(d, models.ErrSchema), "got %v", d)
	}
	assert.Contains(t, result.Dropped[0].Error(), "Race_Id")
}

func TestFetchScheduleToleratesOptionalFieldTypes(t *testing.T) {
	body := `{"status": 200, "response": [
		{"Race_Id": 5501, "Race_Name": "Daytona 500", "Track_Id": "105", "Track_Name": "Daytona International Speedway",
		 "Race_Date": "2026-02-15T14:30:00-0500", "Race_TV": 5, "Race_Radio": true, "Race_URL": ["x"],
		 "Scheduled_Laps": "200", "Playoff_Round": "Round of 16"},
		{"Race_Id": 5502, "Track_Name": 42, "Race_Date": "2026-02-22T15:00:00-0500"}
	]}`
	fetcher := &fakeFetcher{responses: []fakeResponse{{body: []byte(body)}}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	result, err := client.FetchSchedule(context.Background(), models.SeriesCup, 2026)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, int64(5501), rec.ID())
	require.NotNil(t, rec.TrackID)
	assert.Equal(t, 105, *rec.TrackID)
	assert.Equal(t, "5", rec.RaceTV)
	assert.Equal(t, "", rec.RaceRadio)
	assert.Equal(t, "", rec.RaceURL)
	assert.True(t, rec.Has(FieldRaceTV))
	assert.Equal(t, "Round of 16", rec.PlayoffRoundText())

	require.Len(t, result.Dropped, 1, "a required field of the wrong type still drops the record")
	assert.True(t, errors.Is(result.Dropped[0], models.ErrSchema))
}

func TestFetchScheduleRetriesThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{responses: []fakeResponse{
		{err: &StatusError{URL: "x", StatusCode: 503}},
		{err: errors.New("net/http: TLS handshake timeout")},
		{body: []byte(validFeed)},
	}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	result, err := client.FetchSchedule(context.Background(), models.SeriesCup, 2026)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, fetcher.requests, 3)
}

func TestFetchScheduleRetryExhaustionIsTransient(t *testing.T) {
	fetcher := &fakeFetcher{responses: []fakeResponse{{err: &StatusError{URL: "x", StatusCode: 503}}}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	_, err := client.FetchSchedule(context.Background(), models.SeriesTruck, 2026)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransient))
	assert.Len(t, fetcher.requests, 3, "one attempt plus two retries")

	var pe *models.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.SeriesTruck, pe.Series)
	assert.Equal(t, 2026, pe.Year)
}

func TestFetchScheduleForbiddenIsUpstreamWithoutRetry(t *testing.T) {
	fetcher := &fakeFetcher{responses: []fakeResponse{{err: &StatusError{URL: "x", StatusCode: 403}}}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	_, err := client.FetchSchedule(context.Background(), models.SeriesCup, 2026)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstream))
	assert.Len(t, fetcher.requests, 1)
}

func TestFetchScheduleCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &fakeFetcher{responses: []fakeResponse{{err: context.Canceled}}}
	client := NewScheduleClient(fetcher, quietLogger(), fastRetry())

	_, err := client.FetchSchedule(ctx, models.SeriesCup, 2026)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransient))
	assert.LessOrEqual(t, len(fetcher.requests), 1)
}

func TestFlexibleInt(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{`200`, 200, true},
		{`"267"`, 267, true},
		{`" 90 "`, 90, true},
		{`null`, 0, false},
		{``, 0, false},
		{`"TBD"`, 0, false},
		{`12.5`, 0, false},
	}
	for _, tt := range tests {
		got, ok := FlexibleInt(json.RawMessage(tt.raw))
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestStatusErrorRetryable(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 429}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 502}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 403}).Retryable())
	assert.False(t, (&StatusError{StatusCode: 404}).Retryable())
}

func TestHTTPFetcherSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(validFeed))
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 100
	fetcher := NewHTTPFetcher(cfg, quietLogger())
	defer fetcher.Close()

	body, err := fetcher.Fetch(context.Background(), FetchRequest{
		FeedURL: server.URL + "/cacher/2026/1/schedule-combined-feed.json",
		PageURL: "https://www.nascar.com/nascar-cup-series/2026/schedule/",
	})
	require.NoError(t, err)
	assert.JSONEq(t, validFeed, string(body))
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "https://www.nascar.com/nascar-cup-series/2026/schedule/", gotReferer)
}

func TestHTTPFetcherStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 100
	cfg.MaxRetries = 0
	fetcher := NewHTTPFetcher(cfg, quietLogger())

	_, err := fetcher.Fetch(context.Background(), FetchRequest{FeedURL: server.URL})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(validFeed))
	}))
	defer server.Close()

	cfg := DefaultHTTPClientConfig()
	cfg.RateLimit = 100
	cfg.MaxRetries = 2
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	fetcher := NewHTTPFetcher(cfg, quietLogger())

	_, err := fetcher.Fetch(context.Background(), FetchRequest{FeedURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026", "1", "schedule-combined-feed.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(validFeed), 0o644))

	fetcher := NewFileFetcher(dir)
	body, err := fetcher.Fetch(context.Background(), FetchRequest{
		FeedURL: "https://cf.nascar.com/cacher/2026/1/schedule-combined-feed.json",
	})
	require.NoError(t, err)
	assert.Equal(t, validFeed, string(body))

	_, err = fetcher.Fetch(context.Background(), FetchRequest{
		FeedURL: "https://cf.nascar.com/cacher/2026/3/schedule-combined-feed.json",
	})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)
	assert.False(t, statusErr.Retryable())
}

func TestFileFetcherStaysInsideDir(t *testing.T) {
	fetcher := NewFileFetcher("/fixtures")
	path, err := fetcher.pathFor("https://cf.nascar.com/cacher/../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "/fixtures/etc/passwd", path)
}

func TestCachingFetcher(t *testing.T) {
	inner := &fakeFetcher{responses: []fakeResponse{{body: []byte(validFeed)}}}
	cached := NewCachingFetcher(inner, time.Minute)
	req := FetchRequest{FeedURL: "https://cf.nascar.com/cacher/2026/1/schedule-combined-feed.json"}

	for i := 0; i < 3; i++ {
		body, err := cached.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, validFeed, string(body))
	}

	hits, misses := cached.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Len(t, inner.requests, 1)
	assert.Equal(t, "fake", cached.Name())

	cached.Invalidate()
	_, err := cached.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, inner.requests, 2)
}

func TestCachingFetcherDoesNotCacheErrors(t *testing.T) {
	inner := &fakeFetcher{responses: []fakeResponse{
		{err: &StatusError{StatusCode: 503}},
		{body: []byte(validFeed)},
	}}
	cached := NewCachingFetcher(inner, time.Minute)
	req := FetchRequest{FeedURL: "u"}

	_, err := cached.Fetch(context.Background(), req)
	require.Error(t, err)
	_, err = cached.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, inner.requests, 2)
}

func TestFactoryNewFetcher(t *testing.T) {
	factory := NewFactory(quietLogger())

	tests := []struct {
		name     string
		cfg      config.AcquisitionConfig
		wantName string
		wantType interface{}
	}{
		{"browser", config.AcquisitionConfig{Mode: ModeBrowser}, "browser", &BrowserFetcher{}},
		{"http", config.AcquisitionConfig{Mode: ModeHTTP, TimeoutSeconds: 10}, "http", &HTTPFetcher{}},
		{"file", config.AcquisitionConfig{Mode: ModeFile, FixturesDir: t.TempDir()}, "file", &FileFetcher{}},
		{"cached", config.AcquisitionConfig{Mode: ModeFile, FixturesDir: t.TempDir(), CacheTTLSeconds: 60}, "file", &CachingFetcher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher, err := factory.NewFetcher(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, fetcher.Name())
			assert.IsType(t, tt.wantType, fetcher)
		})
	}

	_, err := factory.NewFetcher(config.AcquisitionConfig{Mode: "curl"})
	assert.Error(t, err)
	_, err = factory.NewFetcher(config.AcquisitionConfig{Mode: ModeFile})
	assert.Error(t, err)
}

func TestFactoryNewScheduleClient(t *testing.T) {
	factory := NewFactory(quietLogger())
	client := factory.NewScheduleClient(config.AcquisitionConfig{
		TimeoutSeconds:     30,
		MaxRetries:         1,
		RetryInitialMillis: 100,
		RetryMaxMillis:     1000,
		FeedURLTemplate:    "http://localhost/{year}/{series_id}.json",
	}, &fakeFetcher{})

	assert.Equal(t, 30*time.Second, client.retry.AttemptTimeout)
	assert.Equal(t, 1, client.retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, client.retry.InitialInterval)
	assert.Equal(t, "http://localhost/2026/3.json", client.Request(models.SeriesTruck, 2026).FeedURL)
	assert.Equal(t, DefaultPageURLTemplate, client.pageURLTemplate)
}

func receive(t *testing.T, l *feedListener) capturedResponse {
	t.Helper()
	select {
	case res := <-l.captured:
		return res
	case <-time.After(time.Second):
		t.Fatal("no feed response captured")
		return capturedResponse{}
	}
}

func TestFeedListenerCapturesFeedBody(t *testing.T) {
	const feed = "https://cf.nascar.com/cacher/2026/1/schedule-combined-feed.json"
	l := newFeedListener(feed, func(id network.RequestID) ([]byte, error) {
		assert.Equal(t, network.RequestID("feed-1"), id)
		return []byte(validFeed), nil
	})

	l.handle(&network.EventRequestWillBeSent{RequestID: "other", Request: &network.Request{URL: "https://www.nascar.com/app.js"}})
	l.handle(&network.EventRequestWillBeSent{RequestID: "feed-1", Request: &network.Request{URL: feed + "?v=2"}})
	l.handle(&network.EventResponseReceived{RequestID: "feed-1", Response: &network.Response{URL: feed + "?v=2", Status: 200}})
	l.handle(&network.EventLoadingFinished{RequestID: "other"})
	l.handle(&network.EventLoadingFinished{RequestID: "feed-1"})

	res := receive(t, l)
	require.NoError(t, res.err)
	assert.Equal(t, int64(200), res.status)
	assert.Equal(t, validFeed, string(res.body))
}

func TestFeedListenerFailsFastWithoutResponse(t *testing.T) {
	const feed = "https://cf.nascar.com/cacher/2026/1/schedule-combined-feed.json"
	l := newFeedListener(feed, func(network.RequestID) ([]byte, error) {
		t.Error("body requested for a failed load")
		return nil, nil
	})

	l.handle(&network.EventRequestWillBeSent{RequestID: "feed-1", Request: &network.Request{URL: feed}})
	l.handle(&network.EventLoadingFailed{RequestID: "unrelated", ErrorText: "net::ERR_ABORTED"})
	l.handle(&network.EventLoadingFailed{RequestID: "feed-1", ErrorText: "net::ERR_FAILED"})

	res := receive(t, l)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "net::ERR_FAILED")
}

func TestBrowserFetcherResultStatus(t *testing.T) {
	f := NewBrowserFetcher(DefaultBrowserConfig(), quietLogger())
	req := FetchRequest{FeedURL: "https://cf.nascar.com/cacher/2026/1/schedule-combined-feed.json"}

	_, err := f.result(req, capturedResponse{status: 403})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 403, statusErr.StatusCode)

	body, err := f.result(req, capturedResponse{status: 200, body: []byte("{}")})
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), body)
}
