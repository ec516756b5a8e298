package inference

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (expected system, user, or assistant)", s)
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Renderer turns a full message list into prompt text.
type Renderer func(msgs []Message, addGenerationPrompt bool) (string, error)

// Conversation is the ordered chat history together with its rendering.
//
// formatted is always the rendering of the full history, with a generation
// prompt when the last message is from the user. committed is the point the
// backend content can be extended from; synced is false when there is none.
// When formatted extends committed, only the difference has to be
// tokenized; otherwise the whole rendering is.
type Conversation struct {
	render    Renderer
	msgs      []Message
	formatted string
	prevLen   int
	committed string
	synced    bool
}

func NewConversation(render Renderer) *Conversation {
	return &Conversation{render: render}
}

// Append validates role order, then re-renders the history. A rejected or
// unrenderable message leaves the conversation unchanged.
func (c *Conversation) Append(m Message) error {
	if err := c.checkOrder(m.Role); err != nil {
		return err
	}
	next := append(c.msgs[:len(c.msgs):len(c.msgs)], m)
	formatted, err := c.render(next, m.Role == RoleUser)
	if err != nil {
		return fmt.Errorf("render history: %w", err)
	}
	c.msgs = next
	c.formatted = formatted
	return nil
}

func (c *Conversation) checkOrder(role Role) error {
	var last Role
	if n := len(c.msgs); n > 0 {
		last = c.msgs[n-1].Role
	}
	switch role {
	case RoleSystem:
		if last != "" && last != RoleSystem {
			return misuse("append", "system message after %s message", last)
		}
	case RoleUser:
		if last == RoleUser {
			return misuse("append", "two consecutive user messages")
		}
	case RoleAssistant:
		if last != RoleUser {
			return misuse("append", "assistant message must follow a user message")
		}
	default:
		return misuse("append", "unknown role %q", role)
	}
	return nil
}

// Truncate drops every message from index n on and re-renders.
func (c *Conversation) Truncate(n int) error {
	if n < 0 || n > len(c.msgs) {
		return fmt.Errorf("truncate to %d: history has %d messages", n, len(c.msgs))
	}
	if n == len(c.msgs) {
		return nil
	}
	msgs := c.msgs[:n:n]
	formatted := ""
	if n > 0 {
		var err error
		formatted, err = c.render(msgs, msgs[n-1].Role == RoleUser)
		if err != nil {
			return fmt.Errorf("render history: %w", err)
		}
	}
	c.msgs = msgs
	c.formatted = formatted
	return nil
}

// Delta returns the text that still has to reach the backend. full is true
// when the backend content is not a prefix of the rendering and the whole
// conversation must be tokenized from an empty context.
func (c *Conversation) Delta() (text string, full bool) {
	if c.synced && strings.HasPrefix(c.formatted, c.committed) {
		return c.formatted[len(c.committed):], false
	}
	return c.formatted, true
}

// Advance records that the current rendering has been extracted. It must be
// called once per turn, after Delta and before the next Append.
func (c *Conversation) Advance() {
	c.prevLen = len(c.formatted)
}

// Commit records the exact text held by the backend.
func (c *Conversation) Commit(text string) {
	c.committed = text
	c.synced = text != ""
}

// Rebase marks the current rendering as the point later turns are appended
// from, while the backend keeps whatever it already holds. The next Delta
// is the part of the rendering past this point.
func (c *Conversation) Rebase() {
	c.committed = c.formatted
	c.synced = true
}

// Invalidate forgets the backend content so the next Delta is full.
func (c *Conversation) Invalidate() {
	c.committed = ""
	c.synced = false
}

func (c *Conversation) Formatted() string { return c.formatted }

// PrevLen is the byte length of the rendering at the last Advance.
func (c *Conversation) PrevLen() int { return c.prevLen }

func (c *Conversation) Len() int { return len(c.msgs) }

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}
