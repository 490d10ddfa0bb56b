// Package metrics records retry attempts as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/aschepis/backscratcher/llmretry/llm"
	"github.com/aschepis/backscratcher/llmretry/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements retry.Observer using Prometheus metrics.
type PrometheusRecorder struct {
	gatherer prometheus.Gatherer

	attemptsTotal   *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
	exhaustedTotal  *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	backoffDelay    *prometheus.HistogramVec
	restartsTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the retry metrics with the default registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewPrometheusRecorderWith registers the retry metrics with reg. Handler
// serves what g gathers.
func NewPrometheusRecorderWith(reg prometheus.Registerer, g prometheus.Gatherer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		gatherer: g,
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmretry_attempts_total",
				Help: "Total number of physical model attempts by model, outcome and error type",
			},
			[]string{"model", "outcome", "error_type"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmretry_fallbacks_total",
				Help: "Total number of moves from a model to the next model of its chain",
			},
			[]string{"from_model"},
		),
		exhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmretry_exhausted_total",
				Help: "Total number of logical calls that failed after every attempt",
			},
			[]string{"model"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmretry_attempt_duration_seconds",
				Help:    "Duration of physical model attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "mode"},
		),
		backoffDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmretry_backoff_delay_seconds",
				Help:    "Backoff delay applied before retries in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 60},
			},
			[]string{"model"},
		),
		restartsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmretry_stream_restarts_total",
				Help: "Total number of streams restarted after a retryable failure",
			},
			[]string{"model"},
		),
	}
}

// ObserveAttempt implements retry.Observer.
func (p *PrometheusRecorder) ObserveAttempt(_ context.Context, a retry.Attempt) {
	p.attemptsTotal.WithLabelValues(a.ModelID, string(a.Outcome), errorType(a.Err)).Inc()

	mode := "call"
	if a.Stream {
		mode = "stream"
	}
	p.attemptDuration.WithLabelValues(a.ModelID, mode).Observe(a.Duration.Seconds())
	if a.Number > 0 {
		p.backoffDelay.WithLabelValues(a.ModelID).Observe(a.Delay.Seconds())
	}

	switch a.Outcome {
	case retry.OutcomeFallback:
		p.fallbacksTotal.WithLabelValues(a.ModelID).Inc()
	case retry.OutcomeExhausted:
		p.exhaustedTotal.WithLabelValues(a.ModelID).Inc()
	}
	if a.Stream && (a.Outcome == retry.OutcomeRetry || a.Outcome == retry.OutcomeFallback) {
		p.restartsTotal.WithLabelValues(a.ModelID).Inc()
	}
}

// Handler serves the gathered metrics in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// errorType labels err with its llm error kind. Success is labelled "none";
// errors outside the taxonomy are "other".
func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	if t, ok := llm.TypeOf(err); ok {
		return string(t)
	}
	return "other"
}

var _ retry.Observer = (*PrometheusRecorder)(nil)
