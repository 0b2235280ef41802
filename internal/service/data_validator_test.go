package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/nascar-calendar/internal/models"
)

func validRace() models.RaceRecord {
	return models.RaceRecord{
		SeriesID:      models.SeriesCup,
		RaceID:        5501,
		Name:          "Daytona 500",
		TrackName:     "Daytona International Speedway",
		State:         "FL",
		StartAt:       time.Date(2026, 2, 15, 19, 30, 0, 0, time.UTC),
		ScheduledLaps: 200,
		InfoURL:       "https://www.nascar.com/daytona-500",
	}
}

func TestValidateRace(t *testing.T) {
	v := NewDataValidator(quietLogger())

	tests := []struct {
		name       string
		mutate     func(r *models.RaceRecord)
		shouldHave string
	}{
		{name: "valid race", mutate: func(r *models.RaceRecord) {}},
		{name: "missing track", mutate: func(r *models.RaceRecord) { r.TrackName = "" }, shouldHave: "TrackName"},
		{name: "zero start", mutate: func(r *models.RaceRecord) { r.StartAt = time.Time{} }, shouldHave: "StartAt"},
		{name: "start outside season", mutate: func(r *models.RaceRecord) { r.StartAt = r.StartAt.AddDate(3, 0, 0) }, shouldHave: "outside season"},
		{name: "season boundary is tolerated", mutate: func(r *models.RaceRecord) { r.StartAt = time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC) }},
		{name: "too many laps", mutate: func(r *models.RaceRecord) { r.ScheduledLaps = 5000 }, shouldHave: "scheduled_laps"},
		{name: "relative url", mutate: func(r *models.RaceRecord) { r.InfoURL = "/daytona-500" }, shouldHave: "info_url"},
		{name: "empty url is fine", mutate: func(r *models.RaceRecord) { r.InfoURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			race := validRace()
			tt.mutate(&race)
			problems := v.ValidateRace(&race, 2026)

			if tt.shouldHave == "" {
				assert.Empty(t, problems)
				return
			}
			assert.NotEmpty(t, problems, "expected validation problems")
			assert.Contains(t, strings.Join(problems, "; "), tt.shouldHave)
		})
	}
}

func TestDedupeKeepsFirst(t *testing.T) {
	v := NewDataValidator(quietLogger())

	first := validRace()
	second := validRace()
	second.Name = "Daytona 500 (rescheduled)"
	other := validRace()
	other.SeriesID = models.SeriesXfinity

	out, dups := v.Dedupe([]models.RaceRecord{first, second, other})
	assert.Equal(t, 1, dups)
	if assert.Len(t, out, 2) {
		assert.Equal(t, "Daytona 500", out[0].Name)
		assert.Equal(t, models.SeriesXfinity, out[1].SeriesID)
	}
}
