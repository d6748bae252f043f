// Package telemetry exposes the ensemble's Prometheus metrics.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the registry and instruments for the ensemble core.
type Metrics struct {
	registry *prometheus.Registry

	SweepDuration *prometheus.HistogramVec
	SweepFailures *prometheus.CounterVec

	AdmissionDecisions *prometheus.CounterVec
	ReviewQueueDepth   prometheus.Gauge
	ReviewResolutions  *prometheus.CounterVec

	LearningsApplied    prometheus.Counter
	LearningSuggestions *prometheus.CounterVec

	PortfolioTransitions *prometheus.CounterVec
	MovesDetected        *prometheus.CounterVec
}

// New builds a registry with all ensemble instruments registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quorum_sweep_duration_seconds",
				Help:    "Duration of periodic sweeps by job and result",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"job", "result"},
		),
		SweepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_sweep_entity_failures_total",
				Help: "Per-entity failures isolated inside sweeps",
			},
			[]string{"job"},
		),
		AdmissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_admission_decisions_total",
				Help: "Signal admission outcomes by route",
			},
			[]string{"route"},
		),
		ReviewQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quorum_review_queue_depth",
				Help: "Pending review queue items",
			},
		),
		ReviewResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_review_resolutions_total",
				Help: "Review resolutions by decision",
			},
			[]string{"decision"},
		),
		LearningsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quorum_learnings_applied_total",
				Help: "Learnings folded into analyst prompts",
			},
		),
		LearningSuggestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_learning_suggestions_total",
				Help: "Learning suggestions enqueued by source",
			},
			[]string{"source"},
		),
		PortfolioTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_portfolio_transitions_total",
				Help: "Portfolio status transitions by edge",
			},
			[]string{"from", "to"},
		),
		MovesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_moves_detected_total",
				Help: "Significant moves detected by universe domain",
			},
			[]string{"domain"},
		),
	}

	m.registry.MustRegister(
		m.SweepDuration, m.SweepFailures,
		m.AdmissionDecisions, m.ReviewQueueDepth, m.ReviewResolutions,
		m.LearningsApplied, m.LearningSuggestions,
		m.PortfolioTransitions, m.MovesDetected,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot gathers current counter/gauge values keyed by metric name, for
// the diagnostics endpoint.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64, len(families))
	for _, fam := range families {
		var total float64
		for _, metric := range fam.GetMetric() {
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				total += metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[fam.GetName()] = total
	}
	return out, nil
}
