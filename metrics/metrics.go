// Package metrics contains the Prometheus instrumentation for the
// assistant bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. Collectors are registered on the
// registry passed to New, so tests can use a private registry.
type Metrics struct {
	TurnsProcessed prometheus.Counter
	TurnFallbacks  *prometheus.CounterVec
	TurnDuration   prometheus.Histogram

	TranscribeDuration prometheus.Histogram
	GenerateDuration   prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "assistant_turns_processed_total",
			Help: "Total number of call turns processed",
		}),
		TurnFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_turn_fallbacks_total",
			Help: "Total number of turns answered with a fallback reply",
		}, []string{"stage"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "End-to-end duration of a call turn",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		TranscribeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_transcribe_duration_seconds",
			Help:    "Duration of speech-to-text inference",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		GenerateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_generate_duration_seconds",
			Help:    "Duration of reply generation requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
	}
}

// RecordTurn records a completed turn and its duration.
func (m *Metrics) RecordTurn(durationSeconds float64) {
	m.TurnsProcessed.Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordFallback records a turn answered with a fallback reply, labelled
// with the stage that failed or short-circuited.
func (m *Metrics) RecordFallback(stage string) {
	m.TurnFallbacks.WithLabelValues(stage).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
}
