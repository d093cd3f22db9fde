package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(RecordsTotal.WithLabelValues("ingest", "toilet", "skip"))
	RecordOutcome("ingest", "toilet", "skip", 3)
	RecordOutcome("ingest", "toilet", "skip", 0)
	assert.Equal(t, before+3, testutil.ToFloat64(RecordsTotal.WithLabelValues("ingest", "toilet", "skip")))
}

func TestRecordWrite(t *testing.T) {
	RecordWrite("toilets", "replace", 4, 2, 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(RowsWrittenTotal.WithLabelValues("toilets", "replace")), 4.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(RowsDeletedTotal.WithLabelValues("toilets")), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(BatchErrorsTotal.WithLabelValues("toilets")), 1.0)
}

func TestWriteTextfile(t *testing.T) {
	require.NoError(t, WriteTextfile(""))

	RecordOutcome("export", "library", "ok", 1)
	path := filepath.Join(t.TempDir(), "sarpras.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sarpras_records_total{driver="export",entity="library",outcome="ok"}`)
}
