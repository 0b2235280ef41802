package service

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/yourusername/nascar-calendar/internal/datasource"
)

type mockTrackLookup struct {
	mock.Mock
}

func (m *mockTrackLookup) LookupTrackLength(name string) (float64, bool) {
	args := m.Called(name)
	return args.Get(0).(float64), args.Bool(1)
}

// staticTracks is a TrackLookup over a fixed table
type staticTracks map[string]float64

func (s staticTracks) LookupTrackLength(name string) (float64, bool) {
	l, ok := s[strings.TrimSpace(name)]
	return l, ok
}

var testTracks = staticTracks{
	"Daytona International Speedway": 2.5,
	"Bristol Motor Speedway":         0.533,
	"Atlanta Motor Speedway":         1.54,
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// rawRecord builds a raw record the way the schedule client would after decoding
func rawRecord(id int64, name, track, date string, laps string) datasource.RawRaceRecord {
	rec := datasource.RawRaceRecord{
		RaceID:    &id,
		RaceName:  name,
		TrackName: track,
		RaceState: "FL",
		RaceDate:  date,
		FieldsPresent: map[string]bool{
			datasource.FieldRaceID:    true,
			datasource.FieldRaceName:  true,
			datasource.FieldTrackName: true,
			datasource.FieldRaceState: true,
			datasource.FieldRaceDate:  true,
		},
	}
	if laps != "" {
		rec.ScheduledLaps = json.RawMessage(laps)
		rec.FieldsPresent[datasource.FieldScheduledLaps] = true
	}
	return rec
}
