package datasource

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// BrowserConfig holds configuration for the headless browser fetcher
type BrowserConfig struct {
	ExecPath  string
	UserAgent string
	Headless  bool
	// Settle is how long to wait after navigation for the page to request the feed
	// before requesting it from the page context directly
	Settle time.Duration
}

// DefaultBrowserConfig returns recommended defaults
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		UserAgent: DefaultUserAgent,
		Headless:  true,
		Settle:    5 * time.Second,
	}
}

// BrowserFetcher loads the schedule page in a real Chrome and captures the feed
// response from the browser's network stack, so the request carries the browser's
// own headers and TLS fingerprint.
type BrowserFetcher struct {
	cfg    BrowserConfig
	logger *logrus.Logger
}

// NewBrowserFetcher creates a new browser fetcher
func NewBrowserFetcher(cfg BrowserConfig, logger *logrus.Logger) *BrowserFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &BrowserFetcher{cfg: cfg, logger: logger}
}

// Name returns the fetcher name
func (f *BrowserFetcher) Name() string {
	return "browser"
}

type capturedResponse struct {
	body   []byte
	status int64
	err    error
}

// feedListener follows the first network request for the feed URL through the
// browser's network events and delivers one capturedResponse, success or failure.
type feedListener struct {
	feedURL  string
	getBody  func(network.RequestID) ([]byte, error)
	captured chan capturedResponse

	mu        sync.Mutex
	requestID network.RequestID
	status    int64
}

func newFeedListener(feedURL string, getBody func(network.RequestID) ([]byte, error)) *feedListener {
	return &feedListener{
		feedURL:  feedURL,
		getBody:  getBody,
		captured: make(chan capturedResponse, 1),
	}
}

// track claims id for the feed when no request has been claimed yet
func (l *feedListener) track(id network.RequestID, url string) {
	if !strings.HasPrefix(url, l.feedURL) {
		return
	}
	l.mu.Lock()
	if l.requestID == "" {
		l.requestID = id
	}
	l.mu.Unlock()
}

func (l *feedListener) deliver(res capturedResponse) {
	select {
	case l.captured <- res:
	default:
	}
}

// handle must not block; it runs on the browser's event loop
func (l *feedListener) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request != nil {
			l.track(e.RequestID, e.Request.URL)
		}

	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		l.track(e.RequestID, e.Response.URL)
		l.mu.Lock()
		if e.RequestID == l.requestID {
			l.status = e.Response.Status
		}
		l.mu.Unlock()

	case *network.EventLoadingFinished:
		l.mu.Lock()
		id, st := l.requestID, l.status
		l.mu.Unlock()
		if id == "" || e.RequestID != id {
			return
		}
		go func() {
			body, err := l.getBody(id)
			l.deliver(capturedResponse{body: body, status: st, err: err})
		}()

	case *network.EventLoadingFailed:
		l.mu.Lock()
		id := l.requestID
		l.mu.Unlock()
		if id != "" && e.RequestID == id {
			l.deliver(capturedResponse{err: fmt.Errorf("feed request failed: %s", e.ErrorText)})
		}
	}
}

// Fetch starts a browser, navigates to req.PageURL and returns the body of the
// first response whose URL starts with req.FeedURL. The browser is closed on return.
func (f *BrowserFetcher) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(f.cfg.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	if !f.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	log := f.logger.WithFields(logrus.Fields{
		"component": "browser_fetcher",
		"feed_url":  req.FeedURL,
	})

	listener := newFeedListener(req.FeedURL, func(id network.RequestID) ([]byte, error) {
		c := chromedp.FromContext(browserCtx)
		return network.GetResponseBody(id).Do(cdp.WithExecutor(browserCtx, c.Target))
	})
	chromedp.ListenTarget(browserCtx, listener.handle)

	// A page that never finishes loading is expected; the feed usually arrives before it does.
	if err := chromedp.Run(browserCtx, network.Enable(), chromedp.Navigate(req.PageURL)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Debug("Schedule page navigation incomplete")
	}

	select {
	case res := <-listener.captured:
		return f.result(req, res)
	case <-time.After(f.cfg.Settle):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	log.Debug("Feed not requested by page, requesting from page context")
	var fetchStatus int
	script := fmt.Sprintf("fetch(%q, {credentials: 'omit'}).then(r => r.status)", req.FeedURL)
	err := chromedp.Run(browserCtx, chromedp.Evaluate(script, &fetchStatus,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A rejected fetch produces no response to wait for.
		select {
		case res := <-listener.captured:
			return f.result(req, res)
		default:
		}
		return nil, fmt.Errorf("in-page feed request failed: %w", err)
	}

	select {
	case res := <-listener.captured:
		return f.result(req, res)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *BrowserFetcher) result(req FetchRequest, res capturedResponse) ([]byte, error) {
	if res.err != nil {
		return nil, res.err
	}
	if res.status != 200 {
		return nil, &StatusError{URL: req.FeedURL, StatusCode: int(res.status)}
	}
	return res.body, nil
}
