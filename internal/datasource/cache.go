package datasource

import (
	"context"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// CachingFetcher keeps successful feed bodies for a TTL so repeated runs in one
// process (daemon mode, multi-document layouts) do not relaunch the browser.
type CachingFetcher struct {
	next   Fetcher
	cache  *cache.Cache
	ttl    time.Duration
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachingFetcher wraps next with a TTL cache keyed by feed URL
func NewCachingFetcher(next Fetcher, ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{
		next:  next,
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// Name returns the wrapped fetcher name
func (c *CachingFetcher) Name() string {
	return c.next.Name()
}

// Fetch returns a cached body or delegates and caches on success
func (c *CachingFetcher) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	if v, found := c.cache.Get(req.FeedURL); found {
		if body, ok := v.([]byte); ok {
			c.hits.Add(1)
			return body, nil
		}
	}
	c.misses.Add(1)

	body, err := c.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Set(req.FeedURL, body, c.ttl)
	return body, nil
}

// Invalidate drops every cached feed
func (c *CachingFetcher) Invalidate() {
	c.cache.Flush()
}

// Stats returns cache hits and misses
func (c *CachingFetcher) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
