package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type StreamMode string

const (
	StreamInstant StreamMode = "instant"
	StreamSmooth  StreamMode = "smooth"
	StreamQuiet   StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return StreamInstant, nil
	case StreamInstant, StreamSmooth, StreamQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (instant, smooth, quiet)", s)
	}
}

// StreamWriter prints generated text as it arrives. Smooth mode batches
// fragments into words; quiet mode prints nothing until Flush.
type StreamWriter struct {
	mode StreamMode
	out  *bufio.Writer
	raw  bool

	batch     strings.Builder
	lastFlush time.Time
	interval  time.Duration
	words     int

	all strings.Builder
	now func() time.Time
}

func NewStreamWriter(w io.Writer, mode StreamMode, raw bool) *StreamWriter {
	return &StreamWriter{
		mode:      mode,
		out:       bufio.NewWriterSize(w, 4096),
		raw:       raw,
		interval:  50 * time.Millisecond,
		words:     4,
		now:       time.Now,
		lastFlush: time.Now(),
	}
}

func (w *StreamWriter) Write(text string) {
	w.all.WriteString(text)
	switch w.mode {
	case StreamQuiet:
	case StreamSmooth:
		w.batch.WriteString(text)
		if strings.Count(w.batch.String(), " ")+1 >= w.words || w.now().Sub(w.lastFlush) >= w.interval {
			w.flushBatch()
		}
	default:
		w.emit(text)
		_ = w.out.Flush()
	}
}

// Flush writes anything held back and returns the full text.
func (w *StreamWriter) Flush() string {
	switch w.mode {
	case StreamQuiet:
		w.emit(w.all.String())
	case StreamSmooth:
		w.flushBatch()
	}
	_ = w.out.Flush()
	return w.all.String()
}

func (w *StreamWriter) flushBatch() {
	if w.batch.Len() == 0 {
		return
	}
	w.emit(w.batch.String())
	_ = w.out.Flush()
	w.batch.Reset()
	w.lastFlush = w.now()
}

func (w *StreamWriter) emit(s string) {
	if w.raw {
		s = escapeRaw(s)
	}
	_, _ = w.out.WriteString(s)
}

// escapeRaw makes control characters visible, for debugging templates.
func escapeRaw(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\\':
			b.WriteString(`\\`)
		default:
			if strconv.IsPrint(r) {
				b.WriteRune(r)
			} else {
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		}
	}
	return b.String()
}
