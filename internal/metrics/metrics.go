// Package metrics defines the Prometheus collectors for the pipeline stages and
// exposes an HTTP handler for scraping.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	StageOutcomesTotal *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	UploadsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors on a private registry, so several instances can
// live in one process.
func New() *Metrics {
	m := &Metrics{
		StageOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idpflow_stage_outcomes_total",
				Help: "Stage invocations by stage and outcome (applied, skipped, failed).",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idpflow_stage_duration_seconds",
				Help:    "Stage invocation latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idpflow_upload_requests_total",
				Help: "Upload requests by result (accepted, rejected, error).",
			},
			[]string{"result"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.StageOutcomesTotal,
		m.StageDuration,
		m.UploadsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveStage records one stage invocation.
func (m *Metrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	m.StageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Pusher sends the registry to a Prometheus Pushgateway. Event-triggered
// functions have nothing to scrape, so they push after each invocation.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher returns a Pusher for the gateway at url. Each function instance
// owns one group, keyed by job and instance.
func (m *Metrics) NewPusher(url, job, instance string) *Pusher {
	return &Pusher{
		pusher: push.New(url, job).
			Gatherer(m.registry).
			Grouping("instance", instance),
	}
}

// Push replaces this instance's group on the gateway with the current values.
func (p *Pusher) Push(ctx context.Context) error {
	return p.pusher.PushContext(ctx)
}
