package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/smolchat/internal/backend"
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
)

const scriptEOG backend.Token = 2

// scriptBackend answers each turn with the next entry of replies, one piece
// per reply, then end-of-generation.
type scriptBackend struct {
	ctxSize int
	replies []string
	sent    bool
	used    int
	closed  bool
}

func (b *scriptBackend) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	out := make([]backend.Token, 0, len(text)+1)
	if addBOS {
		out = append(out, 1)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, backend.Token(100+int(text[i])))
	}
	return out, nil
}

func (b *scriptBackend) Decode(tokens []backend.Token) error {
	if b.used+len(tokens) > b.ctxSize {
		return backend.ErrNoKVSlot
	}
	b.used += len(tokens)
	return nil
}

func (b *scriptBackend) Sample() (backend.Token, error) {
	if !b.sent && len(b.replies) > 0 {
		b.sent = true
		return 1000, nil
	}
	if b.sent {
		b.replies = b.replies[1:]
		b.sent = false
	}
	return scriptEOG, nil
}

func (b *scriptBackend) Piece(tok backend.Token) ([]byte, error) {
	if tok != 1000 || len(b.replies) == 0 {
		return nil, fmt.Errorf("unknown token %d", tok)
	}
	return []byte(b.replies[0]), nil
}

func (b *scriptBackend) IsEOG(tok backend.Token) bool { return tok == scriptEOG }
func (b *scriptBackend) ContextSize() int             { return b.ctxSize }
func (b *scriptBackend) ClearMemory() error           { b.used = 0; return nil }
func (b *scriptBackend) Close() error                 { b.closed = true; return nil }

func dummyModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, []byte("not a model"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func loadScripted(t *testing.T, ctxSize int, storeChats bool, replies ...string) (*inference.Session, *scriptBackend) {
	t.Helper()
	b := &scriptBackend{ctxSize: ctxSize, replies: replies}
	cfg := inference.DefaultConfig()
	cfg.ModelPath = dummyModel(t)
	cfg.ContextSize = ctxSize
	cfg.StoreChats = storeChats
	open := func(context.Context, backend.Params) (backend.Backend, error) { return b, nil }
	sess, err := inference.Load(context.Background(), cfg, open, logger.Discard())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess, b
}

// writeGGUF writes a metadata-only GGUF v3 file with string and uint32 keys.
func writeGGUF(t *testing.T, strs map[string]string, nums map[string]uint32) string {
	t.Helper()
	var kv bytes.Buffer
	str := func(s string) {
		_ = binary.Write(&kv, binary.LittleEndian, uint64(len(s)))
		kv.WriteString(s)
	}
	for k, v := range strs {
		str(k)
		_ = binary.Write(&kv, binary.LittleEndian, uint32(8))
		str(v)
	}
	for k, v := range nums {
		str(k)
		_ = binary.Write(&kv, binary.LittleEndian, uint32(4))
		_ = binary.Write(&kv, binary.LittleEndian, v)
	}
	var buf bytes.Buffer
	buf.WriteString("GGUF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(strs)+len(nums)))
	buf.Write(kv.Bytes())

	path := filepath.Join(t.TempDir(), "tiny.gguf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write gguf: %v", err)
	}
	return path
}
