package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("success", time.Second)
		m.KeySettled("succeeded")
		m.KeysSkipped(3)
		m.SetState("running")
		m.Reconciled(1, 2)
		m.ObserveBatch("t", 10, nil, time.Millisecond)
		m.ObserveRequest("GET", "/health", 200)
	})
	assert.Nil(t, m.Registry())
}

func TestCollectors(t *testing.T) {
	m := New()

	m.ObserveFetch("success", 10*time.Millisecond)
	m.ObserveFetch("transient", 10*time.Millisecond)
	m.ObserveFetch("transient", 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchAttemptsTotal.WithLabelValues("transient")))

	m.KeysSkipped(4)
	m.KeysSkipped(0)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.KeysSkippedTotal))

	m.SetState("running")
	m.SetState("draining")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HarvestState.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HarvestState.WithLabelValues("draining")))

	m.ObserveBatch("yc_jobs", 100, nil, time.Millisecond)
	m.ObserveBatch("yc_jobs", 50, errors.New("boom"), time.Millisecond)
	assert.Equal(t, 100.0, testutil.ToFloat64(m.SyncRecordsTotal.WithLabelValues("yc_jobs", "loaded")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.SyncRecordsTotal.WithLabelValues("yc_jobs", "failed")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.KeySettled("succeeded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `harvest_keys_settled_total{status="succeeded"} 1`)
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
