// Package metrics exposes Prometheus collectors for ingestion runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ingestion collectors. A nil *Metrics records nothing.
type Metrics struct {
	rows        *prometheus.CounterVec
	files       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	retries     *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// New registers the collectors with registerer, or the default registerer
// when nil.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetingest",
			Name:      "rows_total",
			Help:      "Rows read from spreadsheets by entity and outcome (valid, invalid).",
		}, []string{"entity", "outcome"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetingest",
			Name:      "files_total",
			Help:      "Processed files by entity and final status.",
		}, []string{"entity", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by status.",
		}, []string{"status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetingest",
			Name:      "retries_total",
			Help:      "Retried fetch and load attempts.",
		}, []string{"operation"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sheetingest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 540},
		}),
	}

	registerer.MustRegister(m.rows, m.files, m.runs, m.retries, m.runDuration)
	return m
}

// ObserveRows adds the valid and invalid row counts of one file.
func (m *Metrics) ObserveRows(entity string, valid, invalid int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(entity, "valid").Add(float64(valid))
	m.rows.WithLabelValues(entity, "invalid").Add(float64(invalid))
}

// ObserveFile counts a finished file.
func (m *Metrics) ObserveFile(entity, status string) {
	if m == nil {
		return
	}
	if entity == "" {
		entity = "unknown"
	}
	m.files.WithLabelValues(entity, status).Inc()
}

// ObserveRun counts a finished run and its duration.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// ObserveRetry counts one retried attempt of operation (fetch, load).
func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}
