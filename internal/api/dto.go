package api

import (
	"github.com/samcharles93/smolchat/internal/inference"
)

type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AddMessageResponse struct {
	Messages int `json:"messages"`
}

type StopWordsRequest struct {
	StopWords []string `json:"stop_words"`
}

type StopWordsResponse struct {
	StopWords []string `json:"stop_words"`
}

type CompletionRequest struct {
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream,omitempty"`
}

type CompletionResponse struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Created      int64             `json:"created"`
	Text         string            `json:"text"`
	FinishReason string            `json:"finish_reason"`
	Metrics      inference.Metrics `json:"metrics"`
}

// CompletionChunk is one SSE event of a streamed completion. The final
// chunk carries FinishReason and Metrics.
type CompletionChunk struct {
	ID           string             `json:"id"`
	Object       string             `json:"object"`
	Created      int64              `json:"created"`
	Delta        string             `json:"delta,omitempty"`
	FinishReason string             `json:"finish_reason,omitempty"`
	Metrics      *inference.Metrics `json:"metrics,omitempty"`
	Error        *ErrorBody         `json:"error,omitempty"`
}

type SessionMetricsResponse struct {
	inference.Metrics
	State          string  `json:"state"`
	Busy           bool    `json:"busy"`
	ContextUsedNow int     `json:"context_used_now"`
	GenerationSecs float64 `json:"generation_seconds"`
}

type HistoryResponse struct {
	Messages []inference.Message `json:"messages"`
}

type HealthResponse struct {
	Status string         `json:"status"`
	Model  inference.Info `json:"model"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
