package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nascar-calendar/internal/models"
)

const (
	// DefaultUIDDomain is the right-hand side of every generated UID
	DefaultUIDDomain = "nascar-calendar"
	// DefaultEventDuration is the nominal length of a race event
	DefaultEventDuration = 4 * time.Hour

	defaultRaceName = "NASCAR Race"
)

// lineBreaks folds CR and CRLF into LF, the only break a TEXT value survives encoding with
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// uriBreaks drops line breaks from URI values, which are written unescaped
var uriBreaks = strings.NewReplacer("\r", "", "\n", "")

// Outcome is what synthesis did with one entry
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRetained  Outcome = "retained"
	OutcomePruned    Outcome = "pruned"
	OutcomeCancelled Outcome = "cancelled"
)

// AllOutcomes lists outcomes in report order
func AllOutcomes() []Outcome {
	return []Outcome{OutcomeCreated, OutcomeUpdated, OutcomeUnchanged, OutcomeRetained, OutcomeCancelled, OutcomePruned}
}

// SynthesizerConfig holds calendar synthesis settings
type SynthesizerConfig struct {
	UIDDomain     string
	EventDuration time.Duration
	RemovalPolicy models.RemovalPolicy
}

// CalendarSynthesizer turns race records into calendar entries that stay stable across runs
type CalendarSynthesizer struct {
	cfg    SynthesizerConfig
	logger *logrus.Logger
}

// NewCalendarSynthesizer creates a synthesizer, filling unset config with defaults
func NewCalendarSynthesizer(cfg SynthesizerConfig, logger *logrus.Logger) *CalendarSynthesizer {
	if cfg.UIDDomain == "" {
		cfg.UIDDomain = DefaultUIDDomain
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = DefaultEventDuration
	}
	if cfg.RemovalPolicy == "" {
		cfg.RemovalPolicy = models.RemovalRetain
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CalendarSynthesizer{cfg: cfg, logger: logger}
}

// SynthesisOptions carries the per-run inputs of Synthesize
type SynthesisOptions struct {
	// RunTime stamps created, updated and cancelled entries
	RunTime time.Time
	// Fetched holds the series acquired successfully this run. The removal policy only
	// touches entries of these series. Nil means the series present in the records.
	Fetched map[models.Series]bool
}

// SynthesisResult is the merged entry list plus what happened to each uid
type SynthesisResult struct {
	Entries    []models.CalendarEntry
	Outcomes   map[string]Outcome
	Duplicates int
}

// Count returns how many entries had the given outcome
func (r *SynthesisResult) Count(o Outcome) int {
	n := 0
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

// Changed reports whether any entry was created, updated, cancelled or pruned
func (r *SynthesisResult) Changed() bool {
	for _, o := range r.Outcomes {
		switch o {
		case OutcomeCreated, OutcomeUpdated, OutcomeCancelled, OutcomePruned:
			return true
		}
	}
	return false
}

// UID returns the stable identifier of a race's entry
func (s *CalendarSynthesizer) UID(series models.Series, raceID int64) string {
	return strings.ToLower(string(series)) + "-" + strconv.FormatInt(raceID, 10) + "@" + s.cfg.UIDDomain
}

// Render produces the subscriber-visible content of a record. It is pure and total.
func (s *CalendarSynthesizer) Render(rec models.RaceRecord) models.RenderedContent {
	name := rec.Name
	if name == "" {
		name = defaultRaceName
	}
	start := rec.StartAt.UTC()

	return models.RenderedContent{
		Summary:     lineBreaks.Replace(fmt.Sprintf("%s (%s)", name, rec.SeriesID.DisplayName())),
		Description: lineBreaks.Replace(describe(rec)),
		Location:    lineBreaks.Replace(rec.Location()),
		URL:         uriBreaks.Replace(rec.InfoURL),
		StartsAt:    start,
		EndsAt:      start.Add(s.cfg.EventDuration),
	}
}

func describe(rec models.RaceRecord) string {
	parts := []string{
		"Series: " + rec.SeriesID.DisplayName(),
		"Track: " + rec.TrackName,
	}
	if rec.Origin(models.FieldScheduledLaps) != models.OriginDefaulted && rec.ScheduledLaps > 0 {
		parts = append(parts, "Laps: "+strconv.Itoa(rec.ScheduledLaps))
	}
	if rec.DistanceMiles != nil && *rec.DistanceMiles > 0 {
		parts = append(parts, "Distance: "+decimal.NewFromFloat(*rec.DistanceMiles).String()+" mi")
	}
	if rec.StartTimeLocal != "" {
		parts = append(parts, "Start Time: "+rec.StartTimeLocal+" (local)")
	}
	if rec.TV != "" {
		parts = append(parts, "TV: "+rec.TV)
	}
	if rec.Radio != "" {
		parts = append(parts, "Radio: "+rec.Radio)
	}
	if rec.Streaming != "" {
		parts = append(parts, "Streaming: "+rec.Streaming)
	}
	if rec.PlayoffRound != "" {
		parts = append(parts, "Playoff Round: "+rec.PlayoffRound)
	}
	if rec.InfoURL != "" {
		parts = append(parts, "", "More info: "+rec.InfoURL)
	}
	return strings.Join(parts, "\n")
}

// Synthesize merges records into the previously published entries.
//
// A new uid starts at sequence 0; unchanged content is carried forward untouched;
// changed content bumps the sequence and last-modified time. Entries of the fetched
// series that no longer have a record follow the removal policy. For a uid seen more
// than once in records, the first wins. The result is sorted by start, then uid.
func (s *CalendarSynthesizer) Synthesize(previous map[string]models.CalendarEntry, records []models.RaceRecord, opts SynthesisOptions) *SynthesisResult {
	runTime := opts.RunTime.UTC().Truncate(time.Second)
	fetched := opts.Fetched
	if fetched == nil {
		fetched = make(map[models.Series]bool)
		for _, r := range records {
			fetched[r.SeriesID] = true
		}
	}

	result := &SynthesisResult{
		Entries:  make([]models.CalendarEntry, 0, len(previous)+len(records)),
		Outcomes: make(map[string]Outcome, len(previous)+len(records)),
	}

	for _, rec := range records {
		uid := s.UID(rec.SeriesID, rec.RaceID)
		if _, dup := result.Outcomes[uid]; dup {
			result.Duplicates++
			continue
		}
		content := s.Render(rec)

		prev, existed := previous[uid]
		switch {
		case !existed:
			result.add(models.CalendarEntry{
				UID:             uid,
				Series:          rec.SeriesID,
				RenderedContent: content,
				Sequence:        0,
				LastModified:    runTime,
			}, OutcomeCreated)
		case prev.Content().Equal(content):
			result.add(prev, OutcomeUnchanged)
		default:
			result.add(models.CalendarEntry{
				UID:             uid,
				Series:          rec.SeriesID,
				RenderedContent: content,
				Sequence:        prev.Sequence + 1,
				LastModified:    runTime,
			}, OutcomeUpdated)
		}
	}

	for _, uid := range sortedKeys(previous) {
		if _, seen := result.Outcomes[uid]; seen {
			continue
		}
		prev := previous[uid]
		if !fetched[prev.Series] {
			result.add(prev, OutcomeRetained)
			continue
		}

		switch s.cfg.RemovalPolicy {
		case models.RemovalPrune:
			result.Outcomes[uid] = OutcomePruned
		case models.RemovalCancel:
			if prev.IsCancelled() {
				result.add(prev, OutcomeRetained)
				continue
			}
			cancelled := prev
			cancelled.Status = models.StatusCancelled
			cancelled.Sequence = prev.Sequence + 1
			cancelled.LastModified = runTime
			result.add(cancelled, OutcomeCancelled)
		default:
			result.add(prev, OutcomeRetained)
		}
	}

	SortEntries(result.Entries)

	if result.Duplicates > 0 {
		s.logger.WithFields(logrus.Fields{
			"component":  "synthesizer",
			"duplicates": result.Duplicates,
		}).Warn("Duplicate race ids in feed, first occurrence kept")
	}
	return result
}

func (r *SynthesisResult) add(e models.CalendarEntry, o Outcome) {
	r.Entries = append(r.Entries, e)
	r.Outcomes[e.UID] = o
}

// SortEntries orders entries by start time, then uid
func SortEntries(entries []models.CalendarEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].StartsAt.Equal(entries[j].StartsAt) {
			return entries[i].StartsAt.Before(entries[j].StartsAt)
		}
		return entries[i].UID < entries[j].UID
	})
}

// OrderViolations returns the indexes of entries that sort before their predecessor
func OrderViolations(entries []models.CalendarEntry) []int {
	var out []int
	for i := 1; i < len(entries); i++ {
		a, b := entries[i-1], entries[i]
		if b.StartsAt.Before(a.StartsAt) || (b.StartsAt.Equal(a.StartsAt) && b.UID < a.UID) {
			out = append(out, i)
		}
	}
	return out
}

func sortedKeys(m map[string]models.CalendarEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
