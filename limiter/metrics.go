/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Limiter kinds used as a metrics label.
const (
	KindHTTP      = "http"
	KindWebSocket = "websocket"
)

// Decision outcomes used as a metrics label.
const (
	OutcomeAllowed  = "allowed"
	OutcomeBlocked  = "blocked"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

const (
	metricsLabelKind    = "kind"
	metricsLabelOutcome = "outcome"
)

// DefaultStoreDurationBuckets is default buckets into which observations of store round trips are counted.
var DefaultStoreDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// MetricsCollector represents a collector of metrics for rate limiting decisions.
type MetricsCollector interface {
	IncDecisions(kind, outcome string)
	ObserveStoreDuration(kind string, d time.Duration)
}

// PrometheusMetrics represents a collector of Prometheus metrics for rate limiting decisions.
type PrometheusMetrics struct {
	Decisions     *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string, constLabels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rate_limit_decisions_total",
			Help:        "Number of rate limiting decisions.",
			ConstLabels: constLabels,
		}, []string{metricsLabelKind, metricsLabelOutcome}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "rate_limit_store_duration_seconds",
			Help:        "A histogram of the rate limiting store round trip durations.",
			Buckets:     DefaultStoreDurationBuckets,
			ConstLabels: constLabels,
		}, []string{metricsLabelKind}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Decisions, pm.StoreDuration)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Decisions)
	prometheus.Unregister(pm.StoreDuration)
}

// IncDecisions increments the number of decisions of the given kind and outcome.
func (pm *PrometheusMetrics) IncDecisions(kind, outcome string) {
	pm.Decisions.With(prometheus.Labels{metricsLabelKind: kind, metricsLabelOutcome: outcome}).Inc()
}

// ObserveStoreDuration observes the duration of a store round trip.
func (pm *PrometheusMetrics) ObserveStoreDuration(kind string, d time.Duration) {
	pm.StoreDuration.With(prometheus.Labels{metricsLabelKind: kind}).Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncDecisions(string, string)                 {}
func (disabledMetrics) ObserveStoreDuration(string, time.Duration) {}
