// Package metrics provides Prometheus metrics for sync runs.
//
// The CLI is short-lived, so metrics are not scraped: a run writes them once
// to a node-exporter textfile collector file.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal tracks per-record outcomes by driver and entity
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sarpras",
			Name:      "records_total",
			Help:      "Records processed by driver, entity and outcome (ok, skip, fail)",
		},
		[]string{"driver", "entity", "outcome"},
	)

	// RowsWrittenTotal tracks rows written to the backing store
	RowsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sarpras",
			Name:      "rows_written_total",
			Help:      "Rows written to the backing store by table and mode",
		},
		[]string{"table", "mode"},
	)

	// RowsDeletedTotal tracks rows purged by replace syncs
	RowsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sarpras",
			Name:      "rows_deleted_total",
			Help:      "Rows deleted by replace syncs by table",
		},
		[]string{"table"},
	)

	// BatchErrorsTotal tracks failed write batches
	BatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sarpras",
			Name:      "batch_errors_total",
			Help:      "Failed write batches by table",
		},
		[]string{"table"},
	)

	// FetchDuration tracks source document fetches
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sarpras",
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of source document fetches in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source", "origin"},
	)
)

// RecordOutcome adds n records with the given outcome.
func RecordOutcome(driver, entity, outcome string, n int) {
	if n <= 0 {
		return
	}
	RecordsTotal.WithLabelValues(driver, entity, outcome).Add(float64(n))
}

// RecordWrite records a completed table sync.
func RecordWrite(table, mode string, written, deleted, failedBatches int) {
	if written > 0 {
		RowsWrittenTotal.WithLabelValues(table, mode).Add(float64(written))
	}
	if deleted > 0 {
		RowsDeletedTotal.WithLabelValues(table).Add(float64(deleted))
	}
	if failedBatches > 0 {
		BatchErrorsTotal.WithLabelValues(table).Add(float64(failedBatches))
	}
}

// RecordFetch records a source fetch. origin is remote, cache or local.
func RecordFetch(source, origin string, durationSeconds float64) {
	FetchDuration.WithLabelValues(source, origin).Observe(durationSeconds)
}

// WriteTextfile writes every registered metric to path in the text
// exposition format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
