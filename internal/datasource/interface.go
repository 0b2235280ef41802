package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FetchRequest names the feed to capture and the page whose load triggers it
type FetchRequest struct {
	FeedURL string
	PageURL string
}

// Fetcher retrieves raw feed bytes. Implementations may drive a real browser.
type Fetcher interface {
	// Fetch returns the body of the response for req.FeedURL
	Fetch(ctx context.Context, req FetchRequest) ([]byte, error)

	// Name returns the name of the fetcher
	Name() string
}

// StatusError reports a non-200 HTTP status observed for the feed response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status may clear up on a later attempt
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// Feed field names
const (
	FieldRaceID         = "Race_Id"
	FieldRaceName       = "Race_Name"
	FieldTrackID        = "Track_Id"
	FieldTrackName      = "Track_Name"
	FieldRaceState      = "Race_State"
	FieldRaceDate       = "Race_Date"
	FieldRaceStart      = "Race_Start"
	FieldScheduledLaps  = "Scheduled_Laps"
	FieldRaceTV         = "Race_TV"
	FieldRaceRadio      = "Race_Radio"
	FieldRaceLiveStream = "Race_Live_Stream"
	FieldRaceURL        = "Race_URL"
	FieldPlayoffRound   = "Playoff_Round"
)

// RawRaceRecord is one element of the feed's response array
type RawRaceRecord struct {
	RaceID         *int64          `json:"Race_Id" validate:"required,gt=0"`
	RaceName       string          `json:"Race_Name"`
	TrackID        *int            `json:"Track_Id"`
	TrackName      string          `json:"Track_Name" validate:"required"`
	RaceState      string          `json:"Race_State"`
	RaceDate       string          `json:"Race_Date" validate:"required"`
	RaceStart      string          `json:"Race_Start"`
	ScheduledLaps  json.RawMessage `json:"Scheduled_Laps"`
	RaceTV         string          `json:"Race_TV"`
	RaceRadio      string          `json:"Race_Radio"`
	RaceLiveStream string          `json:"Race_Live_Stream"`
	RaceURL        string          `json:"Race_URL"`
	PlayoffRound   json.RawMessage `json:"Playoff_Round"`

	// FieldsPresent holds the keys the feed returned with a non-null value
	FieldsPresent map[string]bool `json:"-"`
}

// UnmarshalJSON decodes one feed record. Optional fields are read leniently, so a
// number where text is expected (or the reverse) never rejects the record. Required
// fields that are missing or of the wrong type are left zero for validation to report.
func (r *RawRaceRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = RawRaceRecord{FieldsPresent: make(map[string]bool, len(fields))}
	for k, v := range fields {
		if len(v) > 0 && string(v) != "null" {
			r.FieldsPresent[k] = true
		}
	}

	if id, ok := FlexibleInt(fields[FieldRaceID]); ok {
		v := int64(id)
		r.RaceID = &v
	}
	if id, ok := FlexibleInt(fields[FieldTrackID]); ok {
		r.TrackID = &id
	}
	r.TrackName = strictText(fields[FieldTrackName])
	r.RaceDate = strictText(fields[FieldRaceDate])

	r.RaceName = flexibleText(fields[FieldRaceName])
	r.RaceState = flexibleText(fields[FieldRaceState])
	r.RaceStart = flexibleText(fields[FieldRaceStart])
	r.RaceTV = flexibleText(fields[FieldRaceTV])
	r.RaceRadio = flexibleText(fields[FieldRaceRadio])
	r.RaceLiveStream = flexibleText(fields[FieldRaceLiveStream])
	r.RaceURL = flexibleText(fields[FieldRaceURL])
	r.ScheduledLaps = fields[FieldScheduledLaps]
	r.PlayoffRound = fields[FieldPlayoffRound]
	return nil
}

// ID returns the race id or 0 when absent
func (r *RawRaceRecord) ID() int64 {
	if r.RaceID == nil {
		return 0
	}
	return *r.RaceID
}

// Has reports whether the feed returned field with a non-null value
func (r *RawRaceRecord) Has(field string) bool {
	return r.FieldsPresent[field]
}

// trimStrings strips surrounding whitespace from every string field
func (r *RawRaceRecord) trimStrings() {
	for _, s := range []*string{
		&r.RaceName, &r.TrackName, &r.RaceState, &r.RaceDate, &r.RaceStart,
		&r.RaceTV, &r.RaceRadio, &r.RaceLiveStream, &r.RaceURL,
	} {
		*s = strings.TrimSpace(*s)
	}
}

// PlayoffRoundText renders Playoff_Round whether the feed sent a string or a number
func (r *RawRaceRecord) PlayoffRoundText() string {
	return flexibleText(r.PlayoffRound)
}

func flexibleText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if n.String() == "0" {
			return ""
		}
		return n.String()
	}
	return ""
}

// strictText returns a JSON string value, or "" for anything else
func strictText(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// FlexibleInt decodes a JSON number or numeric string. ok is false for missing or non-numeric values.
func FlexibleInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			return v, true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
	}
	return 0, false
}
