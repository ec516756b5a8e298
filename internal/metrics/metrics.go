// Package metrics exports session metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samcharles93/smolchat/internal/inference"
)

const namespace = "smolchat"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completion turns by outcome.",
		},
		[]string{"outcome"},
	)
	tokensGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_generated_total",
			Help:      "Tokens sampled across all turns.",
		},
	)
	generationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time between the first and the last token of a turn.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	tokensPerSecond = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens_per_second",
			Help:      "Generation speed of the last completed turn.",
		},
	)
	contextUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_tokens_used",
			Help:      "Tokens held in the context window.",
		},
	)
	contextSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_tokens_size",
			Help:      "Size of the context window in tokens.",
		},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, tokensGenerated, generationSeconds, tokensPerSecond, contextUsed, contextSize)
}

// ObserveTurn records a completed turn.
func ObserveTurn(m inference.Metrics) {
	turnsTotal.WithLabelValues("completed").Inc()
	tokensGenerated.Add(float64(m.TokensGenerated))
	generationSeconds.Observe(m.GenerationTime.Seconds())
	tokensPerSecond.Set(m.TokensPerSecond)
	contextUsed.Set(float64(m.ContextUsed))
	contextSize.Set(float64(m.ContextSize))
}

// ObserveError records a turn that ended with err.
func ObserveError(err error) {
	if err == nil {
		return
	}
	turnsTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObserveContext refreshes the context gauges outside of a turn, e.g. after
// loading or after a failure.
func ObserveContext(used, size int) {
	contextUsed.Set(float64(used))
	contextSize.Set(float64(size))
}

// Outcome maps an error to the turns_total outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, inference.ErrContextWindowExceeded):
		return "context_exceeded"
	case errors.Is(err, inference.ErrBackendDecode):
		return "decode_failure"
	case errors.Is(err, inference.ErrMisuse):
		return "misuse"
	case errors.Is(err, inference.ErrLoadFailure):
		return "load_failure"
	default:
		return "cancelled"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
