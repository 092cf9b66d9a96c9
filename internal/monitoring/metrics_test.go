package monitoring

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()
	m.ObserveFetch("cache_hit")
	m.ObserveFetch("cache_hit")
	m.ObserveFetch("failed")
	m.ObserveUnit("acs", "completed")
	m.ObserveStage("acs", 3*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("cache_hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchOutcomes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Units.WithLabelValues("acs", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestMetrics_PrivateRegistry(t *testing.T) {
	// Two instances must not collide.
	a := NewMetrics()
	b := NewMetrics()
	a.ObserveUnit("roads", "skipped")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Units.WithLabelValues("roads", "skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Units.WithLabelValues("roads", "skipped")))
}

func TestMetrics_PushEmptyURL(t *testing.T) {
	assert.NoError(t, NewMetrics().Push(context.Background(), "", "job"))
}

func TestMetrics_Push(t *testing.T) {
	var gotPath, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m := NewMetrics()
	m.ObserveFetch("downloaded")
	m.Finish(time.Unix(1700000000, 0))

	require.NoError(t, m.Push(context.Background(), ts.URL, "commute_pipeline"))
	assert.Equal(t, "/metrics/job/commute_pipeline", gotPath)
	assert.Contains(t, gotBody, "commute_fetch_total")
}

func TestMetrics_PushError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := NewMetrics().Push(context.Background(), ts.URL, "commute_pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
