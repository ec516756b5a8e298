package inference

import (
	"context"
	"errors"
	"io"
	"strings"
)

// StreamFunc receives text as it becomes safe to show. Stop words never
// reach it.
type StreamFunc func(text string)

type Result struct {
	Text  string
	Stats Metrics
}

// Generate runs a whole turn: StartCompletion, Step until io.EOF, then
// StopCompletion. ctx is checked between steps; on cancellation the partial
// reply is kept as the assistant turn and ctx.Err() is returned.
func (s *Session) Generate(ctx context.Context, query string, stream StreamFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.StartCompletion(query); err != nil {
		return nil, err
	}

	filter := NewStopFilter(s.stopWords)
	var sb strings.Builder
	emit := func(text string) {
		if text == "" {
			return
		}
		sb.WriteString(text)
		if stream != nil {
			stream(text)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = s.StopCompletion()
			return nil, err
		}
		frag, err := s.Step()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		emit(filter.Push(frag))
	}
	emit(filter.Flush())

	if s.state != StateIdle {
		_ = s.StopCompletion()
	}
	return &Result{Text: sb.String(), Stats: s.Metrics()}, nil
}
