// Package metrics defines the Prometheus collectors for the harvest pipeline
// and exposes a handler for scraping them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttemptsTotal *prometheus.CounterVec
	FetchDuration      prometheus.Histogram
	KeysSettledTotal   *prometheus.CounterVec
	KeysSkippedTotal   prometheus.Counter
	HarvestState       *prometheus.GaugeVec
	ReconcileRecords   *prometheus.CounterVec
	SyncRecordsTotal   *prometheus.CounterVec
	SyncBatchesTotal   *prometheus.CounterVec
	SyncBatchDuration  prometheus.Histogram
	HTTPRequestsTotal  *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "Fetch attempts by outcome (success, transient, permanent).",
			},
			[]string{"outcome"},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_duration_seconds",
				Help:    "Latency of a single entity fetch.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		KeysSettledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_keys_settled_total",
				Help: "Keys that reached a terminal status by status.",
			},
			[]string{"status"},
		),
		KeysSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_keys_skipped_total",
				Help: "Keys skipped because an earlier run settled them.",
			},
		),
		HarvestState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_run_state",
				Help: "1 for the current run state, 0 otherwise.",
			},
			[]string{"state"},
		),
		ReconcileRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_records_total",
				Help: "Unified records emitted by parent match (matched, unmatched).",
			},
			[]string{"match"},
		),
		SyncRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_records_total",
				Help: "Records processed by the sync engine by table and result.",
			},
			[]string{"table", "result"},
		),
		SyncBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_batches_total",
				Help: "Sync batches by table and result.",
			},
			[]string{"table", "result"},
		),
		SyncBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sync_batch_duration_seconds",
				Help:    "Latency of a single sync batch transaction.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Status API requests by method, path and status.",
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		m.FetchAttemptsTotal,
		m.FetchDuration,
		m.KeysSettledTotal,
		m.KeysSkippedTotal,
		m.HarvestState,
		m.ReconcileRecords,
		m.SyncRecordsTotal,
		m.SyncBatchesTotal,
		m.SyncBatchDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
