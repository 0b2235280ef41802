package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	registry := GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
	assert.Same(t, registry, InitRegistry())
}

func TestRecordFetch(t *testing.T) {
	InitRegistry()
	before := testutil.ToFloat64(RecordsFetchedTotal.WithLabelValues("TEST_FETCH"))

	RecordFetch("TEST_FETCH", 38, 4.2)

	assert.Equal(t, before+38, testutil.ToFloat64(RecordsFetchedTotal.WithLabelValues("TEST_FETCH")))
}

func TestRecordDroppedSkipsZero(t *testing.T) {
	InitRegistry()
	before := testutil.CollectAndCount(RecordsDroppedTotal)

	RecordDropped("TEST_DROP", "parse", 0)
	assert.Equal(t, before, testutil.CollectAndCount(RecordsDroppedTotal))

	RecordDropped("TEST_DROP", "parse", 2)
	assert.Equal(t, before+1, testutil.CollectAndCount(RecordsDroppedTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(RecordsDroppedTotal.WithLabelValues("TEST_DROP", "parse")))
}

func TestRecordEntryOutcome(t *testing.T) {
	InitRegistry()
	before := testutil.ToFloat64(EntriesTotal.WithLabelValues("created"))

	RecordEntryOutcome("created", 3)
	RecordEntryOutcome("created", 0)

	assert.Equal(t, before+3, testutil.ToFloat64(EntriesTotal.WithLabelValues("created")))
}

func TestRecordRun(t *testing.T) {
	InitRegistry()

	RecordRun(true, 12.5, 1_700_000_000)
	assert.Equal(t, float64(1_700_000_000), testutil.ToFloat64(LastSuccessTimestamp))

	RecordRun(false, 3, 1_700_000_600)
	assert.Equal(t, float64(1_700_000_600), testutil.ToFloat64(LastRunTimestamp))
	assert.Equal(t, float64(1_700_000_000), testutil.ToFloat64(LastSuccessTimestamp))
}

func TestRecordSeriesFailureAndDocument(t *testing.T) {
	InitRegistry()

	assert.NotPanics(t, func() {
		RecordSeriesFailure("CUP", "transient")
		RecordUnknownTracks("CUP", 1)
		RecordNormalized("CUP", 36)
	})

	RecordDocumentWritten("nascar_2026.ics", 96)
	assert.Equal(t, float64(96), testutil.ToFloat64(CalendarEntries.WithLabelValues("nascar_2026.ics")))
}

func TestMetricsHandler(t *testing.T) {
	InitRegistry()
	RecordDocumentWritten("handler.ics", 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nascar_calendar_documents_written_total")
}

func TestWriteTextfile(t *testing.T) {
	InitRegistry()
	RecordDocumentWritten("textfile.ics", 5)
	path := filepath.Join(t.TempDir(), "nascar_calendar.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `nascar_calendar_calendar_entries{document="textfile.ics"} 5`)
}

func BenchmarkRecordEntryOutcome(b *testing.B) {
	InitRegistry()

	for i := 0; i < b.N; i++ {
		RecordEntryOutcome("unchanged", 1)
	}
}
