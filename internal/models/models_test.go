package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeries(t *testing.T) {
	tests := []struct {
		in   string
		want Series
	}{
		{"cup", SeriesCup},
		{"CUP", SeriesCup},
		{" 1 ", SeriesCup},
		{"xfinity", SeriesXfinity},
		{"2", SeriesXfinity},
		{"truck", SeriesTruck},
		{"trucks", SeriesTruck},
		{"3", SeriesTruck},
	}
	for _, tt := range tests {
		got, err := ParseSeries(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSeries("arca")
	assert.Error(t, err)
}

func TestSeriesAttributes(t *testing.T) {
	assert.Equal(t, []Series{SeriesCup, SeriesXfinity, SeriesTruck}, AllSeries())
	assert.Equal(t, 1, SeriesCup.FeedID())
	assert.Equal(t, 2, SeriesXfinity.FeedID())
	assert.Equal(t, 3, SeriesTruck.FeedID())
	assert.Equal(t, "NASCAR Craftsman Truck Series", SeriesTruck.DisplayName())
	assert.Equal(t, "nascar-xfinity-series", SeriesXfinity.PageSlug())
	assert.False(t, Series("ARCA").Valid())
	assert.Equal(t, 0, Series("ARCA").FeedID())
}

func TestRaceRecordHelpers(t *testing.T) {
	r := RaceRecord{
		SeriesID:            SeriesCup,
		RaceID:              5501,
		TrackName:           "Daytona International Speedway",
		State:               "FL",
		SourceFieldsPresent: map[string]bool{"Race_TV": true},
		Provenance:          map[string]FieldOrigin{"scheduled_laps": OriginDefaulted},
	}

	assert.Equal(t, RaceKey{Series: SeriesCup, RaceID: 5501}, r.Key())
	assert.Equal(t, "CUP-5501", r.Key().String())
	assert.True(t, r.HasSourceField("Race_TV"))
	assert.False(t, r.HasSourceField("Race_Radio"))
	assert.Equal(t, OriginDefaulted, r.Origin("scheduled_laps"))
	assert.Equal(t, OriginSourced, r.Origin("name"))
	assert.Equal(t, "Daytona International Speedway, FL", r.Location())

	r.State = ""
	assert.Equal(t, "Daytona International Speedway", r.Location())
}

func TestRenderedContentEqualComparesInstants(t *testing.T) {
	utc := time.Date(2026, 2, 15, 19, 30, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))

	a := RenderedContent{Summary: "Daytona 500", StartsAt: utc, EndsAt: utc.Add(4 * time.Hour)}
	b := RenderedContent{Summary: "Daytona 500", StartsAt: est, EndsAt: est.Add(4 * time.Hour)}
	assert.True(t, a.Equal(b))

	b.Status = StatusCancelled
	assert.False(t, a.Equal(b))
}

func TestCalendarEntryCancelled(t *testing.T) {
	e := CalendarEntry{UID: "cup-1@nascar-calendar"}
	assert.False(t, e.IsCancelled())
	e.Status = StatusCancelled
	assert.True(t, e.IsCancelled())
	assert.Equal(t, StatusCancelled, e.Content().Status)
}

func TestPipelineErrorMatching(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewPipelineError(KindTransient, SeriesCup, 2026, "feed fetch failed", cause)

	assert.True(t, errors.Is(err, ErrTransient))
	assert.False(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, err.Retryable())
	assert.Equal(t, "transient: CUP/2026: feed fetch failed (connection reset)", err.Error())

	wrapped := fmt.Errorf("series run: %w", err)
	assert.True(t, errors.Is(wrapped, ErrTransient))
	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestRecordError(t *testing.T) {
	err := NewRecordError(KindParse, SeriesTruck, 77, "invalid Race_Date", nil)

	assert.True(t, errors.Is(err, ErrParse))
	assert.False(t, err.Retryable())
	assert.Equal(t, "parse: TRUCK: race 77: invalid Race_Date", err.Error())
}

func TestParseRemovalPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    RemovalPolicy
		wantErr bool
	}{
		{in: "", want: RemovalRetain},
		{in: "retain", want: RemovalRetain},
		{in: " PRUNE ", want: RemovalPrune},
		{in: "cancel", want: RemovalCancel},
		{in: "delete", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRemovalPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
