package inference

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samcharles93/smolchat/internal/backend"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/samcharles93/smolchat/internal/tplparser"
)

// State is the position of a Session in the generation loop.
type State int

const (
	StateIdle State = iota
	StatePrompted
	StateGenerating
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrompted:
		return "prompted"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Info describes what Load resolved.
type Info struct {
	ModelPath      string           `json:"model_path"`
	Arch           string           `json:"arch,omitempty"`
	Name           string           `json:"name,omitempty"`
	ContextSize    int              `json:"context_size"`
	Family         tplparser.Family `json:"template_family"`
	TemplateSource string           `json:"template_source"`
}

// Session drives one conversation against one backend. It is not safe for
// concurrent use; callers serialize access.
type Session struct {
	cfg  Config
	info Info
	log  logger.Logger
	be   backend.Backend
	conv *Conversation

	ctxSize   int
	stopWords []string

	state  State
	closed bool

	// pinned messages survive turns when StoreChats is false.
	pinned    int
	turnStart int

	// ctxUsed counts tokens decoded into the backend; kvText is their text.
	ctxUsed int
	kvText  string

	pending     []backend.Token
	pendingText string
	tail        []byte
	response    strings.Builder
	generated   int
	firstTok    time.Time
	lastTok     time.Time

	last Metrics
}

func newSession(cfg Config, be backend.Backend, render Renderer, log logger.Logger) *Session {
	s := &Session{
		cfg:     cfg,
		log:     log,
		be:      be,
		conv:    NewConversation(render),
		ctxSize: be.ContextSize(),
	}
	if s.ctxSize <= 0 {
		s.ctxSize = cfg.ContextSize
	}
	s.last.ContextSize = s.ctxSize
	return s
}

// AddChatMessage appends a message outside of a completion, e.g. a system
// prompt or a few-shot example. Such messages are kept even when StoreChats
// is false.
func (s *Session) AddChatMessage(text string, role Role) error {
	if err := s.checkIdle("add message"); err != nil {
		return err
	}
	if err := s.conv.Append(Message{Role: role, Content: text}); err != nil {
		return err
	}
	s.pinned = s.conv.Len()
	return nil
}

// SetStopWords replaces the stop words. Empty strings are ignored.
func (s *Session) SetStopWords(words []string) {
	s.stopWords = normalizeStopWords(words)
}

func (s *Session) StopWords() []string {
	return append([]string(nil), s.stopWords...)
}

// StartCompletion appends query as a user turn and tokenizes the part of
// the rendered conversation the backend has not seen yet.
func (s *Session) StartCompletion(query string) error {
	const op = "start completion"
	if s.state == StateCompleted {
		s.state = StateIdle
	}
	if err := s.checkIdle(op); err != nil {
		return err
	}

	s.turnStart = s.conv.Len()
	if err := s.conv.Append(Message{Role: RoleUser, Content: s.cfg.PromptWrapper.Apply(query)}); err != nil {
		return err
	}

	delta, full := s.conv.Delta()
	if full && (s.ctxUsed > 0 || s.kvText != "") {
		s.log.Debug("conversation diverged from context, re-tokenizing", "bytes", len(delta))
		if err := guard("clear memory", s.be.ClearMemory); err != nil {
			s.abortTurn(true)
			return newError(op, ErrBackendDecode, err)
		}
		s.ctxUsed = 0
		s.kvText = ""
	}

	var toks []backend.Token
	err := guard("tokenize", func() error {
		var err error
		toks, err = s.be.Tokenize(delta, full)
		return err
	})
	if err != nil {
		s.abortTurn(false)
		return newError(op, ErrBackendDecode, err)
	}
	if s.ctxUsed+len(toks) > s.ctxSize {
		s.abortTurn(false)
		return newError(op, ErrContextWindowExceeded,
			fmt.Errorf("prompt needs %d tokens, %d of %d free", len(toks), s.ctxSize-s.ctxUsed, s.ctxSize))
	}
	s.conv.Advance()

	s.resetTurn()
	s.pending = toks
	s.pendingText = delta
	s.state = StatePrompted
	s.log.Debug("turn started", "prompt_tokens", len(toks), "full", full, "context_used", s.ctxUsed)
	return nil
}

// Step decodes the pending tokens, samples one token, and returns the text
// that became complete. It returns io.EOF once the turn is over. After a
// stop word the fragment containing it is returned and the next call
// returns io.EOF; the stored reply ends where the stop word starts.
func (s *Session) Step() (frag string, err error) {
	const op = "step"
	switch {
	case s.closed:
		return "", misuse(op, "session is closed")
	case s.state == StateIdle:
		return "", misuse(op, "no completion in progress")
	case s.state == StateCompleted:
		return "", io.EOF
	}

	if n := len(s.pending); n > 0 {
		if s.ctxUsed+n > s.ctxSize {
			return "", s.fail(op, ErrContextWindowExceeded,
				fmt.Errorf("%d tokens used, %d more do not fit in %d", s.ctxUsed, n, s.ctxSize))
		}
		if err := guard("decode", func() error { return s.be.Decode(s.pending) }); err != nil {
			kind := ErrBackendDecode
			if errors.Is(err, backend.ErrNoKVSlot) {
				kind = ErrContextWindowExceeded
			}
			return "", s.fail(op, kind, err)
		}
		s.ctxUsed += n
		s.kvText += s.pendingText
		s.pending = s.pending[:0]
		s.pendingText = ""
	}

	if s.generated == 0 {
		s.firstTok = time.Now()
	}

	var (
		tok   backend.Token
		eog   bool
		piece []byte
	)
	err = guard("sample", func() error {
		var err error
		if tok, err = s.be.Sample(); err != nil {
			return err
		}
		if eog = s.be.IsEOG(tok); eog {
			return nil
		}
		piece, err = s.be.Piece(tok)
		return err
	})
	if err != nil {
		return "", s.fail(op, ErrBackendDecode, err)
	}
	if eog {
		s.finishTurn(-1)
		return "", io.EOF
	}

	s.generated++
	s.lastTok = time.Now()
	s.tail = append(s.tail, piece...)
	frag = carveUTF8(&s.tail)
	seen := s.response.Len()
	s.response.WriteString(frag)
	s.pending = append(s.pending, tok)
	s.pendingText = string(piece)
	s.state = StateGenerating

	if cut, ok := findStopWord(s.response.String(), seen, s.stopWords); ok {
		s.finishTurn(cut)
	}
	return frag, nil
}

// StopCompletion ends the current turn. From Generating the partial reply is
// stored as the assistant turn. From Prompted the user turn is withdrawn.
// From Completed it only returns the session to Idle. Calling it while Idle
// is a misuse error and changes nothing.
func (s *Session) StopCompletion() error {
	const op = "stop completion"
	if s.closed {
		return misuse(op, "session is closed")
	}
	switch s.state {
	case StateIdle:
		return misuse(op, "no completion in progress")
	case StatePrompted:
		s.abortTurn(false)
	case StateGenerating:
		s.finishTurn(-1)
	}
	s.state = StateIdle
	return nil
}

// ResetContext empties the backend context and keeps the history. The next
// turn tokenizes the whole conversation again and ContextSizeUsed starts
// over from zero.
func (s *Session) ResetContext() error {
	const op = "reset context"
	if s.state == StateCompleted {
		s.state = StateIdle
	}
	if err := s.checkIdle(op); err != nil {
		return err
	}
	s.conv.Invalidate()
	if err := guard("clear memory", s.be.ClearMemory); err != nil {
		return newError(op, ErrBackendDecode, err)
	}
	s.ctxUsed = 0
	s.kvText = ""
	return nil
}

// finishTurn writes the reply, cut at byte cut when cut >= 0, back to the
// history and snapshots metrics. Without stored chats the history drops back
// to the pinned messages but the backend keeps its content, and the next
// turn is appended after it.
func (s *Session) finishTurn(cut int) {
	reply := s.response.String()
	if cut >= 0 {
		reply = reply[:cut]
	}
	if s.cfg.SanitizeHistory {
		reply = SanitizeAssistant(reply)
	}

	if s.cfg.StoreChats {
		if err := s.conv.Append(Message{Role: RoleAssistant, Content: reply}); err != nil {
			s.log.Warn("failed to store reply, dropping turn", "error", err)
			s.truncate(s.turnStart)
			s.conv.Invalidate()
		} else {
			s.conv.Commit(s.kvText)
		}
	} else {
		s.truncate(s.pinned)
		s.conv.Rebase()
	}

	// A token still pending never reached the context and is not counted.
	decoded := s.generated - len(s.pending)
	s.last = newMetrics(s.firstTok, s.lastTok, decoded, s.ctxUsed, s.ctxSize)
	s.log.Debug("turn finished",
		"tokens", s.last.TokensGenerated,
		"tps", s.last.TokensPerSecond,
		"context_used", s.ctxUsed,
		"stop_word", cut >= 0,
	)
	s.resetTurn()
	s.state = StateCompleted
}

// fail aborts the turn after a fatal error. The backend content is unknown
// afterwards, so the next turn starts from an empty context.
func (s *Session) fail(op string, kind, err error) error {
	e := newError(op, kind, err)
	s.log.Warn("turn aborted", "error", e)
	s.abortTurn(true)
	return e
}

// abortTurn removes the turn's messages and returns to Idle. Without
// stored chats and with a live context the last rebase point still holds,
// since nothing of the turn was decoded.
func (s *Session) abortTurn(invalidate bool) {
	s.truncate(s.turnStart)
	switch {
	case invalidate || s.ctxUsed == 0:
		s.conv.Invalidate()
	case s.cfg.StoreChats:
		s.conv.Commit(s.kvText)
	}
	s.resetTurn()
	s.state = StateIdle
}

func (s *Session) truncate(n int) {
	if err := s.conv.Truncate(n); err != nil {
		s.log.Error("failed to roll back history", "error", err)
	}
}

func (s *Session) resetTurn() {
	s.pending = s.pending[:0]
	s.pendingText = ""
	s.tail = s.tail[:0]
	s.response.Reset()
	s.generated = 0
	s.firstTok = time.Time{}
	s.lastTok = time.Time{}
}

func (s *Session) checkIdle(op string) error {
	if s.closed {
		return misuse(op, "session is closed")
	}
	if s.state != StateIdle {
		return misuse(op, "completion in progress (%s)", s.state)
	}
	return nil
}

// ResponseGenerationTime is the time between the first and the last token
// of the last completed turn.
func (s *Session) ResponseGenerationTime() time.Duration { return s.last.GenerationTime }

// ResponseGenerationSpeed is the last completed turn's tokens per second.
func (s *Session) ResponseGenerationSpeed() float64 { return s.last.TokensPerSecond }

// ContextSizeUsed is the number of tokens held by the backend.
func (s *Session) ContextSizeUsed() int { return s.ctxUsed }

func (s *Session) ContextSize() int { return s.ctxSize }

func (s *Session) State() State { return s.state }

func (s *Session) Metrics() Metrics { return s.last }

func (s *Session) Messages() []Message { return s.conv.Messages() }

func (s *Session) Info() Info { return s.info }

// Close aborts any turn in progress and releases the backend. Further calls
// return nil.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	if s.state == StatePrompted || s.state == StateGenerating {
		s.abortTurn(true)
	}
	s.state = StateIdle
	s.closed = true
	if err := s.be.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}

// guard converts a backend panic into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", op, rec)
		}
	}()
	return fn()
}
