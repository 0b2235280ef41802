package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/nascar-calendar/internal/config"
	"github.com/yourusername/nascar-calendar/internal/datasource"
	"github.com/yourusername/nascar-calendar/internal/ical"
	"github.com/yourusername/nascar-calendar/internal/logger"
	"github.com/yourusername/nascar-calendar/internal/metrics"
	"github.com/yourusername/nascar-calendar/internal/models"
	"github.com/yourusername/nascar-calendar/internal/store"
)

// ScheduleSource acquires one series' schedule for a season
type ScheduleSource interface {
	FetchSchedule(ctx context.Context, series models.Series, year int) (*datasource.ScheduleResult, error)
}

// PipelineConfig holds the settings of a pipeline run
type PipelineConfig struct {
	Series       []models.Series
	Concurrency  int
	CalendarName string
	ProductID    string
	Output       config.OutputConfig
}

// RunOptions overrides configuration for a single run
type RunOptions struct {
	// Year is the season; zero means the current UTC year
	Year int
	// Series replaces the configured series when non-empty
	Series []models.Series
	// DryRun synthesizes and encodes but never writes
	DryRun bool
}

// SeriesReport summarizes acquisition and normalization of one series
type SeriesReport struct {
	Series        models.Series
	Year          int
	Fetched       int
	Normalized    int
	SchemaDropped int
	ParseErrors   int
	Duplicates    int
	UnknownTracks int
	Anomalies     int
	Attempts      int
	Duration      time.Duration
	Err           error
}

// Failed reports whether the series update was aborted
func (r SeriesReport) Failed() bool {
	return r.Err != nil
}

// DocumentReport summarizes one synthesized calendar document
type DocumentReport struct {
	Name     string
	Location string
	Series   []models.Series
	Entries  int
	Outcomes map[Outcome]int
	Changed  bool
	Written  bool
	Bytes    []byte
	Err      error
}

// Failed reports whether the document could not be published
func (r DocumentReport) Failed() bool {
	return r.Err != nil
}

// RunReport is the result of one pipeline pass
type RunReport struct {
	RunID     string
	Year      int
	StartedAt time.Time
	Duration  time.Duration
	DryRun    bool
	Series    []SeriesReport
	Documents []DocumentReport
}

// FailedSeries returns the reports of series whose update was aborted
func (r *RunReport) FailedSeries() []SeriesReport {
	var out []SeriesReport
	for _, s := range r.Series {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// FailedDocuments returns the reports of documents that could not be published
func (r *RunReport) FailedDocuments() []DocumentReport {
	var out []DocumentReport
	for _, d := range r.Documents {
		if d.Failed() {
			out = append(out, d)
		}
	}
	return out
}

// Err joins the per-series failures, or returns nil when every series succeeded
func (r *RunReport) Err() error {
	var errs []error
	for _, s := range r.FailedSeries() {
		errs = append(errs, s.Err)
	}
	return errors.Join(errs...)
}

// Pipeline runs acquisition, normalization, synthesis and publication
type Pipeline struct {
	source      ScheduleSource
	normalizer  *DataNormalizer
	validator   *DataValidator
	synthesizer *CalendarSynthesizer
	store       store.Store
	cfg         PipelineConfig
	logger      *logrus.Logger
	now         func() time.Time
}

// NewPipeline creates a pipeline
func NewPipeline(
	source ScheduleSource,
	normalizer *DataNormalizer,
	synthesizer *CalendarSynthesizer,
	docs store.Store,
	cfg PipelineConfig,
	logger *logrus.Logger,
) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if len(cfg.Series) == 0 {
		cfg.Series = models.AllSeries()
	}
	return &Pipeline{
		source:      source,
		normalizer:  normalizer,
		validator:   NewDataValidator(logger),
		synthesizer: synthesizer,
		store:       docs,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

type seriesOutcome struct {
	report  SeriesReport
	records []models.RaceRecord
}

// Run performs one pass. Series failures are reported in the RunReport and leave
// that series' published entries untouched. A document that cannot be published
// (unreadable previous document, lock or write failure) is reported on its
// DocumentReport, the remaining documents are still published, and the returned
// error joins every document failure.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	begin := time.Now()
	runTime := p.now().UTC().Truncate(time.Second)
	year := opts.Year
	if year == 0 {
		year = runTime.Year()
	}
	series := opts.Series
	if len(series) == 0 {
		series = p.cfg.Series
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Year:      year,
		StartedAt: runTime,
		DryRun:    opts.DryRun,
	}
	plog := logger.NewPipelineLogger(p.logger, report.RunID)
	plog.WithFields(logrus.Fields{
		"year":    year,
		"series":  series,
		"dry_run": opts.DryRun,
	}).Info("Starting pipeline run")

	outcomes := p.acquireAll(ctx, series, year, plog)

	for _, o := range outcomes {
		report.Series = append(report.Series, o.report)
	}

	var docErrs []error
	for _, group := range p.documentGroups(series) {
		doc, err := p.publish(ctx, year, runTime, group, outcomes, opts.DryRun, plog)
		if err != nil {
			doc.Err = err
			docErrs = append(docErrs, err)
			plog.WithError(err).WithField("document", doc.Name).Error("Calendar document not published")
		}
		report.Documents = append(report.Documents, *doc)
	}

	report.Duration = time.Since(begin)
	failed := len(report.FailedSeries())
	metrics.RecordRun(failed == 0 && len(docErrs) == 0, report.Duration.Seconds(), float64(runTime.Unix()))
	plog.LogRunCompleted(report.Duration, failed)

	return report, errors.Join(docErrs...)
}

// acquireAll fetches and normalizes each series concurrently. A failing series never
// cancels the others.
func (p *Pipeline) acquireAll(ctx context.Context, series []models.Series, year int, plog *logger.PipelineLogger) []seriesOutcome {
	outcomes := make([]seriesOutcome, len(series))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, s := range series {
		i, s := i, s
		g.Go(func() error {
			outcomes[i] = p.acquire(ctx, s, year, plog.ForSeries(string(s), year))
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *Pipeline) acquire(ctx context.Context, series models.Series, year int, log *logger.PipelineLogger) seriesOutcome {
	start := time.Now()
	rep := SeriesReport{Series: series, Year: year}
	fail := func(err error) seriesOutcome {
		rep.Err = err
		rep.Duration = time.Since(start)
		kind := string(models.KindOf(err))
		metrics.RecordSeriesFailure(string(series), kind)
		log.LogSeriesFailed(kind, err)
		return seriesOutcome{report: rep}
	}

	result, err := p.source.FetchSchedule(ctx, series, year)
	if err != nil {
		return fail(err)
	}
	rep.Attempts = result.Attempts
	rep.Fetched = len(result.Records) + len(result.Dropped)
	rep.SchemaDropped = len(result.Dropped)
	metrics.RecordFetch(string(series), rep.Fetched, result.Duration.Seconds())
	metrics.RecordDropped(string(series), string(models.KindSchema), rep.SchemaDropped)

	if rep.Fetched == 0 {
		return fail(models.NewPipelineError(models.KindUpstream, series, year, "feed returned no races", nil))
	}

	normalized := p.normalizer.NormalizeBatch(series, result.Records)
	rep.ParseErrors = len(normalized.Errors)
	rep.UnknownTracks = len(normalized.UnknownTracks)
	for _, u := range normalized.UnknownTracks {
		log.LogUnknownTrack(u.RaceID, u.TrackName)
	}
	for _, e := range normalized.Errors {
		var pe *models.PipelineError
		if errors.As(e, &pe) {
			log.LogRecordDropped(pe.RaceID, string(pe.Kind), e)
		}
	}
	metrics.RecordDropped(string(series), string(models.KindParse), rep.ParseErrors)
	metrics.RecordUnknownTracks(string(series), rep.UnknownTracks)

	records, dups := p.validator.Dedupe(normalized.Records)
	rep.Duplicates = dups
	metrics.RecordDropped(string(series), "duplicate", dups)

	for i := range records {
		if problems := p.validator.ValidateRace(&records[i], year); len(problems) > 0 {
			rep.Anomalies++
			log.WithFields(logrus.Fields{
				"race_id":  records[i].RaceID,
				"problems": strings.Join(problems, "; "),
			}).Warn("Race record anomalies")
		}
	}

	if len(records) == 0 {
		return fail(models.NewPipelineError(models.KindParse, series, year,
			fmt.Sprintf("none of %d records could be normalized", rep.Fetched), nil))
	}

	rep.Normalized = len(records)
	rep.Duration = time.Since(start)
	metrics.RecordNormalized(string(series), rep.Normalized)
	log.LogSeriesCompleted(rep.Fetched, rep.Normalized, rep.SchemaDropped+rep.ParseErrors+rep.Duplicates, rep.UnknownTracks)

	return seriesOutcome{report: rep, records: records}
}

// documentGroups splits the run's series by output document
func (p *Pipeline) documentGroups(series []models.Series) [][]models.Series {
	if p.cfg.Output.Layout != "per_series" {
		return [][]models.Series{series}
	}
	groups := make([][]models.Series, 0, len(series))
	for _, s := range series {
		groups = append(groups, []models.Series{s})
	}
	return groups
}

func (p *Pipeline) documentName(year int, group []models.Series) string {
	if p.cfg.Output.Layout == "per_series" && len(group) == 1 {
		return p.cfg.Output.DocumentName(year, string(group[0]))
	}
	return p.cfg.Output.DocumentName(year, "")
}

func (p *Pipeline) calendarName(year int, group []models.Series) string {
	name := p.cfg.CalendarName
	if name == "" {
		name = "NASCAR {year}"
	}
	name = strings.ReplaceAll(name, "{year}", fmt.Sprint(year))
	if p.cfg.Output.Layout == "per_series" && len(group) == 1 {
		name += " - " + group[0].DisplayName()
	}
	return name
}

// publish synthesizes and writes one document. The returned report is never nil.
func (p *Pipeline) publish(
	ctx context.Context,
	year int,
	runTime time.Time,
	group []models.Series,
	outcomes []seriesOutcome,
	dryRun bool,
	plog *logger.PipelineLogger,
) (*DocumentReport, error) {
	name := p.documentName(year, group)
	doc := &DocumentReport{
		Name:     name,
		Location: p.store.Location(name),
		Series:   group,
		Outcomes: make(map[Outcome]int),
	}

	if !dryRun {
		unlock, err := p.store.Lock(ctx, name)
		if err != nil {
			return doc, models.NewPipelineError(models.KindFatal, "", year, "lock "+name, err)
		}
		defer func() {
			if err := unlock(); err != nil {
				plog.WithError(err).Warn("Failed to release document lock")
			}
		}()
	}

	previousBytes, previous, err := p.readPrevious(ctx, name)
	if err != nil {
		return doc, models.NewPipelineError(models.KindFatal, "", year, "read previous "+name, err)
	}

	inGroup := make(map[models.Series]bool, len(group))
	for _, s := range group {
		inGroup[s] = true
	}
	fetched := make(map[models.Series]bool)
	var records []models.RaceRecord
	for _, o := range outcomes {
		if !inGroup[o.report.Series] || o.report.Failed() {
			continue
		}
		fetched[o.report.Series] = true
		records = append(records, o.records...)
	}

	if len(fetched) == 0 && previousBytes == nil {
		plog.WithField("document", name).Warn("No series succeeded and no document exists, nothing to publish")
		return doc, nil
	}

	result := p.synthesizer.Synthesize(previous, records, SynthesisOptions{
		RunTime: runTime,
		Fetched: fetched,
	})
	for _, o := range AllOutcomes() {
		n := result.Count(o)
		doc.Outcomes[o] = n
		metrics.RecordEntryOutcome(string(o), n)
	}
	for _, uid := range sortedOutcomeKeys(result.Outcomes) {
		switch o := result.Outcomes[uid]; o {
		case OutcomeCreated, OutcomeUpdated, OutcomeCancelled, OutcomePruned:
			seq := -1
			for _, e := range result.Entries {
				if e.UID == uid {
					seq = e.Sequence
					break
				}
			}
			plog.LogEntryChange(uid, string(o), seq)
		}
	}

	encoded := ical.Encode(ical.Calendar{
		ProductID: p.cfg.ProductID,
		Name:      p.calendarName(year, group),
		Entries:   result.Entries,
	})
	doc.Entries = len(result.Entries)
	doc.Bytes = encoded
	doc.Changed = !bytes.Equal(encoded, previousBytes)

	if dryRun || !doc.Changed {
		plog.WithFields(logrus.Fields{
			"document": name,
			"entries":  doc.Entries,
			"changed":  doc.Changed,
			"dry_run":  dryRun,
		}).Info("Calendar document not written")
		return doc, nil
	}

	if err := p.store.Write(ctx, name, encoded); err != nil {
		return doc, models.NewPipelineError(models.KindFatal, "", year, "write "+name, err)
	}
	doc.Written = true
	metrics.RecordDocumentWritten(name, doc.Entries)
	plog.LogDocumentWritten(doc.Location, doc.Entries, len(encoded), true)

	return doc, nil
}

func (p *Pipeline) readPrevious(ctx context.Context, name string) ([]byte, map[string]models.CalendarEntry, error) {
	data, err := p.store.Read(ctx, name)
	if errors.Is(err, store.ErrNotExist) {
		return nil, map[string]models.CalendarEntry{}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	entries, err := ical.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	return data, entries, nil
}

func sortedOutcomeKeys(m map[string]Outcome) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
