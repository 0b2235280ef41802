package models

import (
	"fmt"
	"strings"
	"time"
)

// Series identifies a NASCAR national series
type Series string

const (
	SeriesCup     Series = "CUP"
	SeriesXfinity Series = "XFINITY"
	SeriesTruck   Series = "TRUCK"
)

// AllSeries returns every supported series in feed-id order
func AllSeries() []Series {
	return []Series{SeriesCup, SeriesXfinity, SeriesTruck}
}

// ParseSeries accepts the enum name, the lowercase slug or the numeric feed id
func ParseSeries(s string) (Series, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CUP", "1":
		return SeriesCup, nil
	case "XFINITY", "2":
		return SeriesXfinity, nil
	case "TRUCK", "TRUCKS", "3":
		return SeriesTruck, nil
	default:
		return "", fmt.Errorf("unknown series: %q", s)
	}
}

// Valid reports whether s is a supported series
func (s Series) Valid() bool {
	switch s {
	case SeriesCup, SeriesXfinity, SeriesTruck:
		return true
	}
	return false
}

// FeedID is the numeric series id used in the upstream CDN path
func (s Series) FeedID() int {
	switch s {
	case SeriesCup:
		return 1
	case SeriesXfinity:
		return 2
	case SeriesTruck:
		return 3
	}
	return 0
}

// DisplayName returns the human readable series name
func (s Series) DisplayName() string {
	switch s {
	case SeriesCup:
		return "NASCAR Cup Series"
	case SeriesXfinity:
		return "NASCAR Xfinity Series"
	case SeriesTruck:
		return "NASCAR Craftsman Truck Series"
	}
	return string(s)
}

// PageSlug is the nascar.com path segment of the series schedule page
func (s Series) PageSlug() string {
	switch s {
	case SeriesCup:
		return "nascar-cup-series"
	case SeriesXfinity:
		return "nascar-xfinity-series"
	case SeriesTruck:
		return "nascar-craftsman-truck-series"
	}
	return ""
}

// FieldOrigin records where a RaceRecord field value came from
type FieldOrigin string

const (
	OriginSourced   FieldOrigin = "sourced"
	OriginDerived   FieldOrigin = "derived"
	OriginDefaulted FieldOrigin = "defaulted"
)

// Canonical field names used as provenance keys
const (
	FieldStartAt       = "start_at"
	FieldScheduledLaps = "scheduled_laps"
	FieldDistanceMiles = "distance_miles"
)

// RaceKey is the identity of a race across runs
type RaceKey struct {
	Series Series
	RaceID int64
}

func (k RaceKey) String() string {
	return fmt.Sprintf("%s-%d", k.Series, k.RaceID)
}

// RaceRecord is the canonical race after normalization and enrichment
type RaceRecord struct {
	SeriesID       Series    `json:"series_id" validate:"required"`
	RaceID         int64     `json:"race_id" validate:"required,gt=0"`
	Name           string    `json:"name"`
	TrackID        int       `json:"track_id"`
	TrackName      string    `json:"track_name" validate:"required"`
	State          string    `json:"state"`
	StartAt        time.Time `json:"start_at" validate:"required"`
	StartTimeLocal string    `json:"start_time_local,omitempty"`
	ScheduledLaps  int       `json:"scheduled_laps" validate:"gte=0"`
	DistanceMiles  *float64  `json:"distance_miles"`
	TV             string    `json:"tv,omitempty"`
	Radio          string    `json:"radio,omitempty"`
	Streaming      string    `json:"streaming,omitempty"`
	InfoURL        string    `json:"info_url,omitempty"`
	PlayoffRound   string    `json:"playoff_round,omitempty"`

	SourceFieldsPresent map[string]bool        `json:"source_fields_present"`
	Provenance          map[string]FieldOrigin `json:"provenance"`
}

// Key returns the (series, race id) identity
func (r *RaceRecord) Key() RaceKey {
	return RaceKey{Series: r.SeriesID, RaceID: r.RaceID}
}

// HasSourceField reports whether the feed returned the named field
func (r *RaceRecord) HasSourceField(field string) bool {
	return r.SourceFieldsPresent[field]
}

// Origin returns the provenance of a canonical field, sourced when unrecorded
func (r *RaceRecord) Origin(field string) FieldOrigin {
	if o, ok := r.Provenance[field]; ok {
		return o
	}
	return OriginSourced
}

// Location renders "Track, State" or just the track when the state is empty
func (r *RaceRecord) Location() string {
	if r.TrackName == "" {
		return ""
	}
	if r.State == "" {
		return r.TrackName
	}
	return r.TrackName + ", " + r.State
}
