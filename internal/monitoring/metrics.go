// Package monitoring exports pipeline run metrics and alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"
)

const namespace = "commute"

// Metrics holds the Prometheus collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	FetchOutcomes *prometheus.CounterVec   // labels: outcome={cache_hit,downloaded,failed}
	Units         *prometheus.CounterVec   // labels: stage, outcome={completed,skipped,failed}
	StageDuration *prometheus.HistogramVec // labels: stage
	LastRun       prometheus.Gauge
}

// NewMetrics creates metrics registered on a private registry, so repeated
// construction in tests never collides with the default registerer.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Remote resource fetches by outcome.",
		}, []string{"outcome"}),
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Pipeline units by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"stage"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(m.FetchOutcomes, m.Units, m.StageDuration, m.LastRun)
	return m
}

// Registry exposes the private registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFetch implements fetcher.Observer.
func (m *Metrics) ObserveFetch(outcome string) {
	m.FetchOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveUnit counts one unit outcome for stage.
func (m *Metrics) ObserveUnit(stage, outcome string) {
	m.Units.WithLabelValues(stage, outcome).Inc()
}

// ObserveStage records how long stage ran.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Finish stamps the end of a run.
func (m *Metrics) Finish(at time.Time) {
	m.LastRun.Set(float64(at.Unix()))
}

// Push sends every collected metric to a Pushgateway. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return eris.Wrap(err, "monitoring: push metrics")
	}
	return nil
}
