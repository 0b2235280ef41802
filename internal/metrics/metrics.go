// Package metrics provides the centralized Prometheus metrics registry for the calendar pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nascar_calendar"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	RecordsFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_fetched_total",
		Help:      "Raw race records returned by the schedule feed",
	}, []string{"series"})
	RecordsNormalizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_normalized_total",
		Help:      "Race records normalized into canonical form",
	}, []string{"series"})
	RecordsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_dropped_total",
		Help:      "Race records skipped, by series and reason",
	}, []string{"series", "reason"})
	UnknownTracksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_tracks_total",
		Help:      "Race records whose track is missing from the reference data",
	}, []string{"series"})
	EntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calendar_entries_total",
		Help:      "Calendar entries by synthesis outcome",
	}, []string{"outcome"})
	SeriesFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "series_failures_total",
		Help:      "Series updates aborted, by error kind",
	}, []string{"series", "kind"})
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by result",
	}, []string{"result"})
	DocumentsWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_written_total",
		Help:      "Calendar documents published",
	})
)

// Gauge metrics
var (
	LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last completed run",
	})
	LastSuccessTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run in which every series succeeded",
	})
	CalendarEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calendar_entries",
		Help:      "Entries in the last written document",
	}, []string{"document"})
)

// Histogram metrics
var (
	FetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of schedule feed acquisition including retries",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 180},
	}, []string{"series"})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a full pipeline run",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(RecordsFetchedTotal)
		registry.MustRegister(RecordsNormalizedTotal)
		registry.MustRegister(RecordsDroppedTotal)
		registry.MustRegister(UnknownTracksTotal)
		registry.MustRegister(EntriesTotal)
		registry.MustRegister(SeriesFailuresTotal)
		registry.MustRegister(RunsTotal)
		registry.MustRegister(DocumentsWrittenTotal)

		registry.MustRegister(LastRunTimestamp)
		registry.MustRegister(LastSuccessTimestamp)
		registry.MustRegister(CalendarEntries)

		registry.MustRegister(FetchDuration)
		registry.MustRegister(RunDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is written to a temporary name and renamed, so readers never see a partial file.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, GetRegistry())
}

// RecordFetch records a successful schedule acquisition.
func RecordFetch(series string, records int, durationSeconds float64) {
	RecordsFetchedTotal.WithLabelValues(series).Add(float64(records))
	FetchDuration.WithLabelValues(series).Observe(durationSeconds)
}

// RecordNormalized records normalized race records.
func RecordNormalized(series string, count int) {
	RecordsNormalizedTotal.WithLabelValues(series).Add(float64(count))
}

// RecordDropped records skipped records for a reason (schema, parse, duplicate).
func RecordDropped(series, reason string, count int) {
	if count == 0 {
		return
	}
	RecordsDroppedTotal.WithLabelValues(series, reason).Add(float64(count))
}

// RecordUnknownTracks records records whose track length is unknown.
func RecordUnknownTracks(series string, count int) {
	if count == 0 {
		return
	}
	UnknownTracksTotal.WithLabelValues(series).Add(float64(count))
}

// RecordEntryOutcome records synthesized entries for an outcome.
func RecordEntryOutcome(outcome string, count int) {
	if count == 0 {
		return
	}
	EntriesTotal.WithLabelValues(outcome).Add(float64(count))
}

// RecordSeriesFailure records an aborted series update.
func RecordSeriesFailure(series, kind string) {
	SeriesFailuresTotal.WithLabelValues(series, kind).Inc()
}

// RecordDocumentWritten records a published document and its size.
func RecordDocumentWritten(document string, entries int) {
	DocumentsWrittenTotal.Inc()
	CalendarEntries.WithLabelValues(document).Set(float64(entries))
}

// RecordRun records the end of a run at unix time nowUnix.
func RecordRun(success bool, durationSeconds float64, nowUnix float64) {
	RunDuration.Observe(durationSeconds)
	LastRunTimestamp.Set(nowUnix)
	if success {
		RunsTotal.WithLabelValues("success").Inc()
		LastSuccessTimestamp.Set(nowUnix)
		return
	}
	RunsTotal.WithLabelValues("partial_failure").Inc()
}
