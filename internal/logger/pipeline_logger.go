// Package logger provides pipeline-specific logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// PipelineLogger provides dedicated logging for calendar pipeline events.
type PipelineLogger struct {
	*logrus.Entry
}

// NewPipelineLogger creates a pipeline logger tagged with the run id.
func NewPipelineLogger(baseLogger *logrus.Logger, runID string) *PipelineLogger {
	return &PipelineLogger{
		Entry: baseLogger.WithFields(logrus.Fields{
			"component": "pipeline",
			"run_id":    runID,
		}),
	}
}

// ForSeries returns a logger carrying series and year fields.
func (pl *PipelineLogger) ForSeries(series string, year int) *PipelineLogger {
	return &PipelineLogger{Entry: pl.WithFields(logrus.Fields{
		"series": series,
		"year":   year,
	})}
}

// LogRecordDropped logs a raw or unparseable record that was skipped.
func (pl *PipelineLogger) LogRecordDropped(raceID int64, kind string, err error) {
	pl.WithError(err).WithFields(logrus.Fields{
		"race_id":    raceID,
		"error_kind": kind,
	}).Warn("Race record dropped")
}

// LogUnknownTrack logs a track missing from the reference data.
func (pl *PipelineLogger) LogUnknownTrack(raceID int64, trackName string) {
	pl.WithFields(logrus.Fields{
		"race_id":    raceID,
		"track_name": trackName,
	}).Warn("Unknown track, distance left empty")
}

// LogEntryChange logs a calendar entry that was created, updated or cancelled.
func (pl *PipelineLogger) LogEntryChange(uid, outcome string, sequence int) {
	pl.WithFields(logrus.Fields{
		"uid":      uid,
		"outcome":  outcome,
		"sequence": sequence,
	}).Info("Calendar entry changed")
}

// LogSeriesFailed logs a series whose acquisition or normalization failed.
func (pl *PipelineLogger) LogSeriesFailed(kind string, err error) {
	pl.WithError(err).WithField("error_kind", kind).Error("Series update failed, previous entries retained")
}

// LogSeriesCompleted logs per-series counts.
func (pl *PipelineLogger) LogSeriesCompleted(fetched, normalized, dropped, unknownTracks int) {
	pl.WithFields(logrus.Fields{
		"fetched":        fetched,
		"normalized":     normalized,
		"dropped":        dropped,
		"unknown_tracks": unknownTracks,
	}).Info("Series processed")
}

// LogDocumentWritten logs a published calendar document.
func (pl *PipelineLogger) LogDocumentWritten(name string, entries, bytes int, changed bool) {
	pl.WithFields(logrus.Fields{
		"document": name,
		"entries":  entries,
		"bytes":    bytes,
		"changed":  changed,
	}).Info("Calendar document written")
}

// LogRunCompleted logs the end of a run.
func (pl *PipelineLogger) LogRunCompleted(duration time.Duration, failedSeries int) {
	entry := pl.WithFields(logrus.Fields{
		"duration_ms":   duration.Milliseconds(),
		"failed_series": failedSeries,
	})
	if failedSeries > 0 {
		entry.Warn("Pipeline run completed with failures")
		return
	}
	entry.Info("Pipeline run completed")
}
