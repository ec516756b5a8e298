package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/smolchat/internal/inference"
)

// SSEStreamWriter writes a completion as server-sent events, one chunk per
// delta, then a final chunk and a [DONE] marker.
type SSEStreamWriter struct {
	w       io.Writer
	flusher func()
	id      string
	created int64
}

func NewSSEStreamWriter(c *echo.Context, id string, created int64) (*SSEStreamWriter, error) {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{w: res, flusher: flusher.Flush, id: id, created: created}, nil
}

func (s *SSEStreamWriter) chunk() CompletionChunk {
	return CompletionChunk{ID: s.id, Object: "completion.chunk", Created: s.created}
}

func (s *SSEStreamWriter) EmitToken(delta string) error {
	ch := s.chunk()
	ch.Delta = delta
	return s.send(ch)
}

func (s *SSEStreamWriter) Complete(result *inference.Result, reason string) error {
	ch := s.chunk()
	ch.FinishReason = reason
	ch.Metrics = &result.Stats
	if err := s.send(ch); err != nil {
		return err
	}
	return s.done()
}

func (s *SSEStreamWriter) Failed(err error) error {
	_, errType := statusFor(err)
	ch := s.chunk()
	ch.FinishReason = "error"
	ch.Error = &ErrorBody{Message: err.Error(), Type: errType}
	if err := s.send(ch); err != nil {
		return err
	}
	return s.done()
}

func (s *SSEStreamWriter) send(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEStreamWriter) done() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEStreamWriter) flush() {
	if s.flusher != nil {
		s.flusher()
	}
}
