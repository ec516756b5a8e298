// Package backend defines the boundary between a chat session and the
// token-inference engine that owns the model, context, and sampler.
package backend

import (
	"context"
	"errors"
)

// Token is a vocabulary id.
type Token int32

// ErrNoKVSlot is returned by Decode when the engine has no room left for
// the batch in its context window.
var ErrNoKVSlot = errors.New("no free slot in context")

// Params configures model loading and sampling. MinP and Temperature are
// passed through to the sampler; UseMmap and UseMlock to the weight loader.
type Params struct {
	ModelPath   string
	LibPath     string
	ContextSize int
	BatchSize   int
	Threads     int
	// Device is auto, cpu, or gpu; GPULayers refines gpu and auto.
	Device      string
	GPULayers   int
	UseMmap     bool
	UseMlock    bool
	MinP        float32
	Temperature float32
}

// Backend is one loaded model with a single inference context and sampler.
// Implementations are not safe for concurrent use.
type Backend interface {
	// Tokenize converts text to tokens, parsing special tokens. addBOS
	// prepends the beginning-of-sequence token when the model uses one.
	Tokenize(text string, addBOS bool) ([]Token, error)
	// Decode appends tokens to the context and computes logits for the last.
	Decode(tokens []Token) error
	// Sample draws the next token from the logits of the last Decode.
	Sample() (Token, error)
	// Piece returns the raw bytes of a token. A piece may be a partial
	// UTF-8 sequence.
	Piece(tok Token) ([]byte, error)
	// IsEOG reports whether tok ends generation.
	IsEOG(tok Token) bool
	// ContextSize is the number of tokens the context can hold.
	ContextSize() int
	// ClearMemory drops every token held by the context.
	ClearMemory() error
	// Close releases sampler, context, and model in that order.
	Close() error
}

// Opener acquires a Backend. On error nothing must remain allocated.
type Opener func(ctx context.Context, p Params) (Backend, error)
