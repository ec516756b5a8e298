package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/smolchat/internal/backend"
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
)

const stubEOG backend.Token = 2

// stubBackend tokenizes one token per byte and replies with the pieces in
// queue, then end-of-generation.
type stubBackend struct {
	ctxSize  int
	queue    []string
	pieces   map[backend.Token][]byte
	used     int
	onSample func(n int)
	samples  int
}

func (b *stubBackend) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	out := make([]backend.Token, 0, len(text)+1)
	if addBOS {
		out = append(out, 1)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, backend.Token(100+int(text[i])))
	}
	return out, nil
}

func (b *stubBackend) Decode(tokens []backend.Token) error {
	if b.used+len(tokens) > b.ctxSize {
		return backend.ErrNoKVSlot
	}
	b.used += len(tokens)
	return nil
}

func (b *stubBackend) Sample() (backend.Token, error) {
	b.samples++
	if b.onSample != nil {
		b.onSample(b.samples)
	}
	if len(b.queue) == 0 {
		return stubEOG, nil
	}
	tok := backend.Token(10000 + b.samples)
	b.pieces[tok] = []byte(b.queue[0])
	b.queue = b.queue[1:]
	return tok, nil
}

func (b *stubBackend) Piece(tok backend.Token) ([]byte, error) {
	p, ok := b.pieces[tok]
	if !ok {
		return nil, fmt.Errorf("unknown token %d", tok)
	}
	return p, nil
}

func (b *stubBackend) IsEOG(tok backend.Token) bool { return tok == stubEOG }
func (b *stubBackend) ContextSize() int             { return b.ctxSize }
func (b *stubBackend) ClearMemory() error           { b.used = 0; return nil }
func (b *stubBackend) Close() error                 { return nil }

func newTestServer(t *testing.T, ctxSize int, queue ...string) (*echo.Echo, *Server, *stubBackend) {
	t.Helper()
	model := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(model, []byte("not a model"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	stub := &stubBackend{ctxSize: ctxSize, queue: queue, pieces: make(map[backend.Token][]byte)}
	open := func(ctx context.Context, p backend.Params) (backend.Backend, error) { return stub, nil }

	cfg := inference.DefaultConfig()
	cfg.ModelPath = model
	cfg.ContextSize = ctxSize
	cfg.StoreChats = true
	sess, err := inference.Load(context.Background(), cfg, open, logger.Discard())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	srv := NewServer(sess, logger.Discard())
	e := echo.New()
	srv.Register(e)
	return e, srv, stub
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCompletionReturnsTextAndStoresHistory(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 4096, "Hel", "lo")

	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[CompletionResponse](t, rec)
	if resp.Text != "Hello" {
		t.Fatalf("got %q, want %q", resp.Text, "Hello")
	}
	if resp.FinishReason != "stop" {
		t.Fatalf("finish reason: got %q, want %q", resp.FinishReason, "stop")
	}
	if !strings.HasPrefix(resp.ID, "cmpl-") {
		t.Fatalf("unexpected id %q", resp.ID)
	}
	if resp.Metrics.TokensGenerated != 2 {
		t.Fatalf("tokens: got %d, want 2", resp.Metrics.TokensGenerated)
	}

	hist := decodeBody[HistoryResponse](t, doJSON(t, e, http.MethodGet, "/v1/history", ""))
	if len(hist.Messages) != 2 {
		t.Fatalf("history: got %d messages, want 2", len(hist.Messages))
	}
	if hist.Messages[1].Role != inference.RoleAssistant || hist.Messages[1].Content != "Hello" {
		t.Fatalf("unexpected assistant turn %+v", hist.Messages[1])
	}
}

func TestCompletionHidesStopWords(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 4096, "Hi", " the", "re<|e", "nd|>", "never")

	rec := doJSON(t, e, http.MethodPut, "/v1/stop-words", `{"stop_words":["<|end|>",""]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop words status: got %d body=%s", rec.Code, rec.Body.String())
	}
	words := decodeBody[StopWordsResponse](t, rec)
	if len(words.StopWords) != 1 || words.StopWords[0] != "<|end|>" {
		t.Fatalf("got %q, want [<|end|>]", words.StopWords)
	}

	resp := decodeBody[CompletionResponse](t, doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`))
	if resp.Text != "Hi there" {
		t.Fatalf("got %q, want %q", resp.Text, "Hi there")
	}
}

func TestCompletionStreamsEvents(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 4096, "a", "b", "c")

	rec := doJSON(t, e, http.MethodPost, "/v1/completions?stream=true", `{"prompt":"go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type: got %q", ct)
	}

	var (
		text   strings.Builder
		reason string
		done   bool
	)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == "[DONE]" {
			done = true
			continue
		}
		var ch CompletionChunk
		if err := json.Unmarshal([]byte(payload), &ch); err != nil {
			t.Fatalf("decode chunk %q: %v", payload, err)
		}
		text.WriteString(ch.Delta)
		if ch.FinishReason != "" {
			reason = ch.FinishReason
		}
	}
	if text.String() != "abc" {
		t.Fatalf("got %q, want %q", text.String(), "abc")
	}
	if reason != "stop" || !done {
		t.Fatalf("stream not terminated: reason=%q done=%v", reason, done)
	}
}

func TestCompletionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctxSize int
		body    string
		status  int
		errType string
	}{
		{name: "malformed json", ctxSize: 4096, body: `{"prompt":`, status: http.StatusBadRequest, errType: "invalid_request_error"},
		{name: "empty prompt", ctxSize: 4096, body: `{"prompt":"  "}`, status: http.StatusBadRequest, errType: "invalid_request_error"},
		{name: "prompt too long", ctxSize: 16, body: `{"prompt":"this prompt does not fit"}`, status: http.StatusRequestEntityTooLarge, errType: "context_window_exceeded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, _, _ := newTestServer(t, tc.ctxSize, "x")
			rec := doJSON(t, e, http.MethodPost, "/v1/completions", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d, want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.errType) {
				t.Fatalf("body %s missing %q", rec.Body.String(), tc.errType)
			}
		})
	}
}

func TestCompletionBusy(t *testing.T) {
	t.Parallel()

	e, srv, _ := newTestServer(t, 4096, "x")

	srv.mu.Lock()
	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`)
	metricsRec := doJSON(t, e, http.MethodGet, "/v1/metrics/session", "")
	srv.mu.Unlock()

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
	m := decodeBody[SessionMetricsResponse](t, metricsRec)
	if !m.Busy {
		t.Fatalf("expected busy session metrics")
	}
}

func TestStopCompletionKeepsPartialReply(t *testing.T) {
	t.Parallel()

	e, _, stub := newTestServer(t, 4096, "Hel", "lo", " world")
	stub.onSample = func(n int) {
		if n == 2 {
			rec := doJSON(t, e, http.MethodPost, "/v1/completions/stop", "")
			if rec.Code != http.StatusOK {
				t.Errorf("stop status: got %d body=%s", rec.Code, rec.Body.String())
			}
		}
	}

	resp := decodeBody[CompletionResponse](t, doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`))
	if resp.FinishReason != "stopped" {
		t.Fatalf("finish reason: got %q, want %q", resp.FinishReason, "stopped")
	}
	if resp.Text != "Hello" {
		t.Fatalf("got %q, want %q", resp.Text, "Hello")
	}

	hist := decodeBody[HistoryResponse](t, doJSON(t, e, http.MethodGet, "/v1/history", ""))
	if len(hist.Messages) != 2 || hist.Messages[1].Content != "Hello" {
		t.Fatalf("unexpected history %+v", hist.Messages)
	}
}

func TestStopWithoutCompletion(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 4096)
	rec := doJSON(t, e, http.MethodPost, "/v1/completions/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestAddMessage(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 4096)

	tests := []struct {
		body   string
		status int
	}{
		{`{"role":"system","content":"be brief"}`, http.StatusOK},
		{`{"role":"robot","content":"beep"}`, http.StatusBadRequest},
		{`{"role":"assistant","content":"out of order"}`, http.StatusConflict},
		{`{"role":"user","content":"example question"}`, http.StatusOK},
		{`{"role":"assistant","content":"example answer"}`, http.StatusOK},
	}
	for i, tc := range tests {
		rec := doJSON(t, e, http.MethodPost, "/v1/messages", tc.body)
		if rec.Code != tc.status {
			t.Fatalf("request %d: got %d, want %d body=%s", i, rec.Code, tc.status, rec.Body.String())
		}
	}

	hist := decodeBody[HistoryResponse](t, doJSON(t, e, http.MethodGet, "/v1/history", ""))
	if len(hist.Messages) != 3 {
		t.Fatalf("history: got %d messages, want 3", len(hist.Messages))
	}
}

func TestSessionMetricsAfterCompletion(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 4096, "a", "b")
	doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`)

	m := decodeBody[SessionMetricsResponse](t, doJSON(t, e, http.MethodGet, "/v1/metrics/session", ""))
	if m.Busy {
		t.Fatalf("session reported busy")
	}
	if m.State != "idle" {
		t.Fatalf("state: got %q, want %q", m.State, "idle")
	}
	if m.TokensGenerated != 2 {
		t.Fatalf("tokens: got %d, want 2", m.TokensGenerated)
	}
	if m.ContextUsedNow == 0 || m.ContextUsedNow > 4096 {
		t.Fatalf("context used out of range: %d", m.ContextUsedNow)
	}
}

func TestHealthAndPrometheus(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestServer(t, 512, "x")
	doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"hi"}`)

	health := decodeBody[HealthResponse](t, doJSON(t, e, http.MethodGet, "/healthz", ""))
	if health.Status != "ok" || health.Model.ContextSize != 512 {
		t.Fatalf("unexpected health %+v", health)
	}

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "smolchat_turns_total") {
		t.Fatalf("metrics output missing smolchat_turns_total")
	}
}
