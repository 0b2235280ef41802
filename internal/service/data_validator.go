package service

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/models"
)

// maxScheduledLaps is well above the longest race on the calendar (Coca-Cola 600, 400 laps)
const maxScheduledLaps = 1000

// DataValidator checks canonical race records for anomalies. The feed is
// authoritative, so anomalies are reported but the record is still published.
type DataValidator struct {
	validate *validator.Validate
	logger   *logrus.Logger
}

// NewDataValidator creates a new data validator
func NewDataValidator(logger *logrus.Logger) *DataValidator {
	if logger == nil {
		logger = logrus.New()
	}
	return &DataValidator{validate: validator.New(), logger: logger}
}

// ValidateRace returns the anomalies found in a record for the given season
func (v *DataValidator) ValidateRace(race *models.RaceRecord, season int) []string {
	var problems []string

	if err := v.validate.Struct(race); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if !race.StartAt.IsZero() && season > 0 {
		if y := race.StartAt.UTC().Year(); y < season-1 || y > season+1 {
			problems = append(problems, fmt.Sprintf("start_at year %d outside season %d", y, season))
		}
	}

	if race.ScheduledLaps > maxScheduledLaps {
		problems = append(problems, fmt.Sprintf("scheduled_laps %d exceeds %d", race.ScheduledLaps, maxScheduledLaps))
	}

	if race.InfoURL != "" && !isAbsoluteURL(race.InfoURL) {
		problems = append(problems, fmt.Sprintf("info_url %q is not an absolute URL", race.InfoURL))
	}

	return problems
}

// Dedupe keeps the first record for each (series, race id) and returns the number dropped
func (v *DataValidator) Dedupe(records []models.RaceRecord) ([]models.RaceRecord, int) {
	seen := make(map[models.RaceKey]bool, len(records))
	out := make([]models.RaceRecord, 0, len(records))
	duplicates := 0

	for _, r := range records {
		key := r.Key()
		if seen[key] {
			duplicates++
			v.logger.WithFields(logrus.Fields{
				"component": "validator",
				"series":    r.SeriesID,
				"race_id":   r.RaceID,
			}).Warn("Duplicate race record ignored")
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out, duplicates
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
