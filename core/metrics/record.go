package metrics

import (
	"strconv"
	"time"
)

// RunStates lists the values exported by the harvest_run_state gauge.
var RunStates = []string{"initializing", "running", "draining", "completed"}

func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) KeySettled(status string) {
	if m == nil {
		return
	}
	m.KeysSettledTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) KeysSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.KeysSkippedTotal.Add(float64(n))
}

// SetState flags state as current and clears every other run state.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range RunStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.HarvestState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) Reconciled(matched, unmatched int) {
	if m == nil {
		return
	}
	m.ReconcileRecords.WithLabelValues("matched").Add(float64(matched))
	m.ReconcileRecords.WithLabelValues("unmatched").Add(float64(unmatched))
}

// ObserveBatch records one sync batch of n records.
func (m *Metrics) ObserveBatch(table string, n int, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "loaded"
	if err != nil {
		result = "failed"
	}
	m.SyncRecordsTotal.WithLabelValues(table, result).Add(float64(n))
	m.SyncBatchesTotal.WithLabelValues(table, result).Inc()
	m.SyncBatchDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
