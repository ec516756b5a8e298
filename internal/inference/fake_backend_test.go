package inference

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/samcharles93/smolchat/internal/backend"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/samcharles93/smolchat/internal/tplparser"
)

const (
	fakeBOS     backend.Token = 1
	fakeEOG     backend.Token = 2
	fakeGenBase backend.Token = 10000
)

// fakeBackend tokenizes one token per byte and samples pieces from queue,
// returning EOG once the queue is empty.
type fakeBackend struct {
	ctxSize int

	queue  []string
	pieces map[backend.Token][]byte
	issued int

	tokenized []string
	bos       []bool
	decoded   []backend.Token
	clears    int
	closes    int

	decodeCalls  int
	failDecodeAt int
	decodeErr    error
	panicSample  bool
}

func newFakeBackend(ctxSize int) *fakeBackend {
	return &fakeBackend{ctxSize: ctxSize, pieces: make(map[backend.Token][]byte)}
}

func (f *fakeBackend) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	f.tokenized = append(f.tokenized, text)
	f.bos = append(f.bos, addBOS)
	var out []backend.Token
	if addBOS {
		out = append(out, fakeBOS)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, backend.Token(100+int(text[i])))
	}
	return out, nil
}

func (f *fakeBackend) Decode(tokens []backend.Token) error {
	f.decodeCalls++
	if f.failDecodeAt > 0 && f.decodeCalls == f.failDecodeAt {
		return f.decodeErr
	}
	if len(f.decoded)+len(tokens) > f.ctxSize {
		return backend.ErrNoKVSlot
	}
	f.decoded = append(f.decoded, tokens...)
	return nil
}

func (f *fakeBackend) Sample() (backend.Token, error) {
	if f.panicSample {
		panic("sampler exploded")
	}
	if len(f.queue) == 0 {
		return fakeEOG, nil
	}
	tok := fakeGenBase + backend.Token(f.issued)
	f.issued++
	f.pieces[tok] = []byte(f.queue[0])
	f.queue = f.queue[1:]
	return tok, nil
}

func (f *fakeBackend) Piece(tok backend.Token) ([]byte, error) {
	p, ok := f.pieces[tok]
	if !ok {
		return nil, fmt.Errorf("unknown token %d", tok)
	}
	return p, nil
}

func (f *fakeBackend) IsEOG(tok backend.Token) bool { return tok == fakeEOG }
func (f *fakeBackend) ContextSize() int             { return f.ctxSize }

func (f *fakeBackend) ClearMemory() error {
	f.decoded = nil
	f.clears++
	return nil
}

func (f *fakeBackend) Close() error {
	f.closes++
	return nil
}

func chatmlRenderer() Renderer {
	return templateRenderer("chatml", tplparser.FamilyChatML)
}

func newTestSession(t *testing.T, fb *fakeBackend, storeChats bool) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StoreChats = storeChats
	return newSession(cfg, fb, chatmlRenderer(), logger.Discard())
}

// runTurn drives one turn to completion and returns its fragments.
func runTurn(t *testing.T, s *Session, query string) []string {
	t.Helper()
	if err := s.StartCompletion(query); err != nil {
		t.Fatalf("StartCompletion(%q): %v", query, err)
	}
	var frags []string
	for range 1000 {
		frag, err := s.Step()
		if errors.Is(err, io.EOF) {
			if err := s.StopCompletion(); err != nil {
				t.Fatalf("StopCompletion: %v", err)
			}
			return frags
		}
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		frags = append(frags, frag)
	}
	t.Fatal("turn did not terminate")
	return nil
}

func chatmlPrompt(parts ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(parts); i += 2 {
		b.WriteString("<|im_start|>" + parts[i] + "\n" + parts[i+1] + "<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}
