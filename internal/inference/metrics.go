package inference

import "time"

// Metrics describes the last completed turn. ContextUsed and ContextSize
// are in tokens.
type Metrics struct {
	GenerationTime  time.Duration `json:"generation_time"`
	TokensGenerated int           `json:"tokens_generated"`
	TokensPerSecond float64       `json:"tokens_per_second"`
	ContextUsed     int           `json:"context_used"`
	ContextSize     int           `json:"context_size"`
}

func newMetrics(first, last time.Time, tokens, ctxUsed, ctxSize int) Metrics {
	m := Metrics{TokensGenerated: tokens, ContextUsed: ctxUsed, ContextSize: ctxSize}
	if tokens > 0 {
		m.GenerationTime = last.Sub(first)
	}
	if secs := m.GenerationTime.Seconds(); secs > 0 {
		m.TokensPerSecond = float64(tokens) / secs
	}
	return m
}
