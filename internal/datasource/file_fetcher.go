package datasource

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileFetcher serves feeds from a directory laid out like the CDN path below /cacher/,
// e.g. {dir}/2026/1/schedule-combined-feed.json. Used for offline runs and fixtures.
type FileFetcher struct {
	dir string
}

// NewFileFetcher creates a fetcher rooted at dir
func NewFileFetcher(dir string) *FileFetcher {
	return &FileFetcher{dir: dir}
}

// Name returns the fetcher name
func (f *FileFetcher) Name() string {
	return "file"
}

// Fetch reads the fixture matching the feed URL
func (f *FileFetcher) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.pathFor(req.FeedURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StatusError{URL: req.FeedURL, StatusCode: 404}
		}
		return nil, err
	}
	return data, nil
}

func (f *FileFetcher) pathFor(feedURL string) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	rel := u.Path
	if i := strings.Index(rel, "/cacher/"); i >= 0 {
		rel = rel[i+len("/cacher/"):]
	}
	rel = filepath.Clean("/" + rel)
	return filepath.Join(f.dir, rel), nil
}
