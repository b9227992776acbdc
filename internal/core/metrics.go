package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes ingestion counters and gauges to Prometheus.
type Metrics struct {
	BatchesSubmitted *prometheus.CounterVec
	BatchesFinished  *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	RowsProcessed    *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	ActiveBatches    prometheus.Gauge
	AuditWrites      *prometheus.CounterVec
	AuditBreakerOpen prometheus.Gauge
}

// NewMetrics registers the ingestion metrics on reg.
// A nil reg gets a private registry so tests and tools can skip wiring.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		BatchesSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_batches_submitted_total",
			Help: "Import batches accepted, by entity type.",
		}, []string{"entity"}),

		BatchesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_batches_finished_total",
			Help: "Import batches finished, by entity type and outcome.",
		}, []string{"entity", "outcome"}),

		BatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_batch_duration_seconds",
			Help:    "Wall time from batch start to audit write.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}, []string{"entity"}),

		RowsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Data rows processed, by entity type and result (inserted, rejected).",
		}, []string{"entity", "result"}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Batches waiting for a worker.",
		}),

		ActiveBatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_active_batches",
			Help: "Batches currently being processed.",
		}),

		AuditWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_audit_writes_total",
			Help: "Audit entry writes, by result (stored, fallback).",
		}, []string{"result"}),

		AuditBreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_audit_breaker_open",
			Help: "1 while the audit store circuit breaker is open.",
		}),
	}
}
