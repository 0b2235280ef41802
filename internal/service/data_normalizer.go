package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/datasource"
	"github.com/yourusername/nascar-calendar/internal/models"
)

// TrackLookup resolves a track's length in miles by name
type TrackLookup interface {
	LookupTrackLength(name string) (float64, bool)
}

// raceDatePattern is YYYY-MM-DDTHH:MM:SS followed by a ±HHMM or ±HH:MM offset
var raceDatePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})([+-]\d{2}):?(\d{2})$`)

const (
	raceDateLayout    = "2006-01-02T15:04:05-0700"
	distancePrecision = 3
)

// DataNormalizer converts raw feed records into canonical race records
type DataNormalizer struct {
	tracks TrackLookup
	logger *logrus.Logger
}

// NewDataNormalizer creates a new data normalizer
func NewDataNormalizer(tracks TrackLookup, logger *logrus.Logger) *DataNormalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &DataNormalizer{tracks: tracks, logger: logger}
}

// NormalizeResult is the outcome of normalizing one series' records
type NormalizeResult struct {
	Records []models.RaceRecord
	// Errors holds one ParseError per skipped record
	Errors []error
	// UnknownTracks lists records whose track is missing from the reference data
	UnknownTracks []UnknownTrack
}

// UnknownTrack identifies a record whose distance could not be derived
type UnknownTrack struct {
	RaceID    int64
	TrackName string
}

// Normalize converts one raw record. It is deterministic and reads no clock.
func (n *DataNormalizer) Normalize(series models.Series, raw datasource.RawRaceRecord) (models.RaceRecord, error) {
	rec, _, err := n.normalize(series, raw)
	return rec, err
}

// NormalizeBatch normalizes every record, skipping and collecting the ones that fail
func (n *DataNormalizer) NormalizeBatch(series models.Series, raws []datasource.RawRaceRecord) *NormalizeResult {
	result := &NormalizeResult{Records: make([]models.RaceRecord, 0, len(raws))}
	log := n.logger.WithFields(logrus.Fields{
		"component": "normalizer",
		"series":    series,
	})

	for _, raw := range raws {
		rec, unknownTrack, err := n.normalize(series, raw)
		if err != nil {
			log.WithError(err).WithField("race_id", raw.ID()).Debug("Skipping race record")
			result.Errors = append(result.Errors, err)
			continue
		}
		if unknownTrack {
			result.UnknownTracks = append(result.UnknownTracks, UnknownTrack{RaceID: rec.RaceID, TrackName: rec.TrackName})
		}
		result.Records = append(result.Records, rec)
	}

	return result
}

func (n *DataNormalizer) normalize(series models.Series, raw datasource.RawRaceRecord) (models.RaceRecord, bool, error) {
	startAt, err := ParseRaceDate(raw.RaceDate)
	if err != nil {
		return models.RaceRecord{}, false, models.NewRecordError(models.KindParse, series, raw.ID(), "invalid Race_Date", err)
	}

	rec := models.RaceRecord{
		SeriesID:       series,
		RaceID:         raw.ID(),
		Name:           raw.RaceName,
		TrackName:      raw.TrackName,
		State:          raw.RaceState,
		StartAt:        startAt,
		StartTimeLocal: raw.RaceStart,
		TV:             raw.RaceTV,
		Radio:          raw.RaceRadio,
		Streaming:      raw.RaceLiveStream,
		InfoURL:        raw.RaceURL,
		PlayoffRound:   raw.PlayoffRoundText(),
		Provenance: map[string]models.FieldOrigin{
			models.FieldStartAt: models.OriginSourced,
		},
		SourceFieldsPresent: make(map[string]bool, len(raw.FieldsPresent)),
	}
	for k, v := range raw.FieldsPresent {
		rec.SourceFieldsPresent[k] = v
	}
	if raw.TrackID != nil {
		rec.TrackID = *raw.TrackID
	}

	laps, ok := datasource.FlexibleInt(raw.ScheduledLaps)
	if ok && laps >= 0 {
		rec.ScheduledLaps = laps
		rec.Provenance[models.FieldScheduledLaps] = models.OriginSourced
	} else {
		rec.ScheduledLaps = 0
		rec.Provenance[models.FieldScheduledLaps] = models.OriginDefaulted
	}

	length, known := n.lookupLength(rec.TrackName)
	// Defaulted laps carry no distance; a sourced zero is a real 0.0.
	if known && rec.Provenance[models.FieldScheduledLaps] == models.OriginSourced {
		d := DeriveDistance(length, rec.ScheduledLaps)
		rec.DistanceMiles = &d
		rec.Provenance[models.FieldDistanceMiles] = models.OriginDerived
	}

	return rec, !known, nil
}

func (n *DataNormalizer) lookupLength(trackName string) (float64, bool) {
	if n.tracks == nil || strings.TrimSpace(trackName) == "" {
		return 0, false
	}
	return n.tracks.LookupTrackLength(trackName)
}

// ParseRaceDate parses the feed's Race_Date, keeping its UTC offset.
// A colon in the offset is accepted; anything else is rejected.
func ParseRaceDate(s string) (time.Time, error) {
	m := raceDatePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%q does not match YYYY-MM-DDTHH:MM:SS±HHMM", s)
	}
	t, err := time.Parse(raceDateLayout, m[1]+m[2]+m[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a valid date-time: %w", s, err)
	}
	return t, nil
}

// DeriveDistance returns length × laps rounded to three decimal places
func DeriveDistance(lengthMiles float64, laps int) float64 {
	d := decimal.NewFromFloat(lengthMiles).
		Mul(decimal.NewFromInt(int64(laps))).
		Round(distancePrecision)
	f, _ := d.Float64()
	return f
}
