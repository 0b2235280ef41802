package models

import (
	"fmt"
	"strings"
	"time"
)

// EntryStatus is the iCalendar STATUS of an entry; empty means no STATUS line
type EntryStatus string

const (
	StatusScheduled EntryStatus = ""
	StatusCancelled EntryStatus = "CANCELLED"
)

// RenderedContent holds every field of an entry that subscribers can see.
// Two entries with equal content are the same revision.
type RenderedContent struct {
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	URL         string      `json:"url,omitempty"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
	Status      EntryStatus `json:"status,omitempty"`
}

// Equal compares content field by field; times compare as instants
func (c RenderedContent) Equal(o RenderedContent) bool {
	return c.Summary == o.Summary &&
		c.Description == o.Description &&
		c.Location == o.Location &&
		c.URL == o.URL &&
		c.Status == o.Status &&
		c.StartsAt.Equal(o.StartsAt) &&
		c.EndsAt.Equal(o.EndsAt)
}

// CalendarEntry is one synthesized event, 1:1 with a RaceRecord
type CalendarEntry struct {
	UID    string `json:"uid"`
	Series Series `json:"series"`
	RenderedContent
	Sequence     int       `json:"sequence"`
	LastModified time.Time `json:"last_modified"`
}

// Content returns the subscriber-visible fields of the entry
func (e CalendarEntry) Content() RenderedContent {
	return e.RenderedContent
}

// IsCancelled reports whether the entry carries a cancellation marker
func (e CalendarEntry) IsCancelled() bool {
	return e.Status == StatusCancelled
}

// RemovalPolicy decides what happens to a published entry whose race left the feed
type RemovalPolicy string

const (
	RemovalRetain RemovalPolicy = "retain"
	RemovalPrune  RemovalPolicy = "prune"
	RemovalCancel RemovalPolicy = "cancel"
)

// ParseRemovalPolicy accepts retain, prune or cancel; empty means retain
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch p := RemovalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case RemovalRetain, RemovalPrune, RemovalCancel:
		return p, nil
	case "":
		return RemovalRetain, nil
	default:
		return "", fmt.Errorf("unknown removal policy %q", s)
	}
}
