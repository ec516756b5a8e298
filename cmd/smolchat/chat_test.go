package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
)

type scriptedLines struct {
	lines []string
}

func (s *scriptedLines) ReadLine(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func newTestRepl(t *testing.T, lines ...string) (*repl, *bytes.Buffer, *int) {
	t.Helper()
	var out bytes.Buffer
	loads := 0
	r := &repl{
		load: func(context.Context) (*inference.Session, error) {
			loads++
			sess, _ := loadScripted(t, 4096, true, "Hi there", "Second answer")
			return sess, nil
		},
		in:   &scriptedLines{lines: lines},
		out:  &out,
		mode: StreamInstant,
		log:  logger.Discard(),
	}
	return r, &out, &loads
}

func TestReplConversation(t *testing.T) {
	t.Parallel()

	r, out, _ := newTestRepl(t,
		"/system be nice",
		"hello",
		"   ",
		"and again",
		"/history",
	)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{"system prompt added", "Hi there", "Second answer", "be nice", "and again", "tok/s"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if n := len(r.sess.Messages()); n != 5 {
		t.Fatalf("history: got %d messages, want 5", n)
	}
}

func TestReplCommands(t *testing.T) {
	t.Parallel()

	r, out, loads := newTestRepl(t,
		"/stop END,STOP",
		"/stop",
		"/bogus",
		"hello",
		"/system too late",
		"/stats",
		"/reset",
		"/history",
		"/exit",
		"never read",
	)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		`stop words: ["END" "STOP"]`,
		"unknown command /bogus",
		"system message after",
		"session reset",
		"(empty)",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if *loads != 2 {
		t.Fatalf("loads: got %d, want 2", *loads)
	}
	if len(r.in.(*scriptedLines).lines) != 1 {
		t.Fatalf("repl kept reading after /exit")
	}
}

func TestReplReportsTurnErrors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	r := &repl{
		load: func(context.Context) (*inference.Session, error) {
			sess, _ := loadScripted(t, 8, false, "x")
			return sess, nil
		},
		in:   &scriptedLines{lines: []string{"this prompt is far too long"}},
		out:  &out,
		mode: StreamInstant,
		log:  logger.Discard(),
	}
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "context window exceeded") {
		t.Fatalf("output missing context error:\n%s", out.String())
	}
}
