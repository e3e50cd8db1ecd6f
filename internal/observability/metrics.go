package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for provider attempts
const (
	OutcomeAcquired = "acquired"
	OutcomeFailed   = "failed"
	OutcomeAborted  = "aborted"
)

// Metrics collects gateway metrics.
type Metrics interface {
	RecordAttempt(provider, outcome string)
	RecordFallback(from, kind string)
	RecordExhausted()
	RecordFragments(provider string, n int)
	RecordTurn(provider string, seconds float64)
}

// LLMBuckets spans typical generation latencies, 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// PrometheusMetrics implements Metrics with Prometheus collectors
type PrometheusMetrics struct {
	attempts  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	exhausted prometheus.Counter
	fragments *prometheus.CounterVec
	turns     *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_provider_attempts_total",
				Help: "Stream handle acquisitions by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_fallbacks_total",
				Help: "Fallbacks away from a provider by error kind",
			},
			[]string{"from", "kind"},
		),
		exhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_exhausted_total",
				Help: "Turns where every provider failed",
			},
		),
		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_stream_fragments_total",
				Help: "Fragments forwarded to callers",
			},
			[]string{"provider"},
		),
		turns: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_turn_duration_seconds",
				Help:    "Duration of completed turns",
				Buckets: LLMBuckets,
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(m.attempts, m.fallbacks, m.exhausted, m.fragments, m.turns)
	return m
}

func (m *PrometheusMetrics) RecordAttempt(provider, outcome string) {
	m.attempts.WithLabelValues(provider, outcome).Inc()
}

func (m *PrometheusMetrics) RecordFallback(from, kind string) {
	m.fallbacks.WithLabelValues(from, kind).Inc()
}

func (m *PrometheusMetrics) RecordExhausted() {
	m.exhausted.Inc()
}

func (m *PrometheusMetrics) RecordFragments(provider string, n int) {
	m.fragments.WithLabelValues(provider).Add(float64(n))
}

func (m *PrometheusMetrics) RecordTurn(provider string, seconds float64) {
	m.turns.WithLabelValues(provider).Observe(seconds)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordAttempt(string, string)  {}
func (NopMetrics) RecordFallback(string, string) {}
func (NopMetrics) RecordExhausted()              {}
func (NopMetrics) RecordFragments(string, int)   {}
func (NopMetrics) RecordTurn(string, float64)    {}
