// Package llamacpp implements backend.Backend on llama.cpp through yzma's
// purego bindings. No cgo toolchain is needed; the shared libraries are
// loaded at runtime from LibPath or $YZMA_LIB.
package llamacpp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
	"github.com/samcharles93/smolchat/internal/backend"
)

// EnvLibPath names the directory holding the llama.cpp shared libraries.
const EnvLibPath = "YZMA_LIB"

const defaultBatch = 512

// samplerChain is min-p then temperature; top-k and top-p stay out.
var samplerChain = []llama.SamplerType{llama.SamplerTypeMinP, llama.SamplerTypeTemperature}

var (
	libOnce sync.Once
	libErr  error
)

var errNoLibPath = errors.New("llama.cpp library path not set (use --lib or " + EnvLibPath + ")")

func loadLibrary(path string) error {
	if path == "" {
		path = os.Getenv(EnvLibPath)
	}
	if path == "" {
		return errNoLibPath
	}
	libOnce.Do(func() {
		if err := llama.Load(path); err != nil {
			libErr = fmt.Errorf("load llama.cpp from %s: %w", path, err)
			return
		}
		llama.Init()
	})
	return libErr
}

// SystemInfo loads the library and reports llama.cpp's build features.
func SystemInfo(libPath string) (string, bool, error) {
	if err := loadLibrary(libPath); err != nil {
		return "", false, err
	}
	return llama.PrintSystemInfo(), llama.SupportsGpuOffload(), nil
}

type Backend struct {
	model   llama.Model
	lctx    llama.Context
	vocab   llama.Vocab
	sampler llama.Sampler

	hasModel   bool
	hasContext bool
	hasSampler bool
	closed     bool

	nCtx   int
	nBatch int
	piece  []byte
	desc   string
}

var _ backend.Backend = (*Backend)(nil)

// Open satisfies backend.Opener.
func Open(ctx context.Context, p backend.Params) (backend.Backend, error) {
	b, err := open(ctx, p)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func open(ctx context.Context, p backend.Params) (_ *Backend, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.ContextSize <= 0 {
		return nil, fmt.Errorf("context size must be positive, got %d", p.ContextSize)
	}
	if err := loadLibrary(p.LibPath); err != nil {
		return nil, err
	}
	layers, err := backend.GPULayersFor(p.Device, p.GPULayers, llama.SupportsGpuOffload())
	if err != nil {
		return nil, err
	}

	b := &Backend{nCtx: p.ContextSize, nBatch: p.BatchSize, piece: make([]byte, 64)}
	if b.nBatch <= 0 {
		b.nBatch = min(defaultBatch, p.ContextSize)
	}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	mp := llama.ModelDefaultParams()
	mp.NGpuLayers = int32(layers)
	mp.UseMmap = flag(p.UseMmap)
	mp.UseMlock = flag(p.UseMlock)
	b.model, err = llama.ModelLoadFromFile(p.ModelPath, mp)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", p.ModelPath, err)
	}
	b.hasModel = true
	b.vocab = llama.ModelGetVocab(b.model)
	b.desc = llama.ModelDesc(b.model)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cp := llama.ContextDefaultParams()
	cp.NCtx = uint32(p.ContextSize)
	cp.NBatch = uint32(b.nBatch)
	if p.Threads > 0 {
		cp.NThreads = int32(p.Threads)
		cp.NThreadsBatch = int32(p.Threads)
	}
	b.lctx, err = llama.InitFromModel(b.model, cp)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	b.hasContext = true

	// NewSampler appends dist after the listed samplers.
	sp := llama.DefaultSamplerParams()
	sp.MinP = p.MinP
	sp.Temp = p.Temperature
	b.sampler = llama.NewSampler(b.model, samplerChain, sp)
	b.hasSampler = true

	return b, nil
}

func flag(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func (b *Backend) Tokenize(text string, addBOS bool) ([]backend.Token, error) {
	if b.closed {
		return nil, errClosed
	}
	if text == "" {
		return nil, nil
	}
	raw := llama.Tokenize(b.vocab, text, addBOS, true)
	out := make([]backend.Token, len(raw))
	for i, t := range raw {
		out[i] = backend.Token(t)
	}
	return out, nil
}

// Decode feeds tokens in chunks of the context's batch size. Batches come
// from BatchGetOne and are not freed.
func (b *Backend) Decode(tokens []backend.Token) error {
	if b.closed {
		return errClosed
	}
	for start := 0; start < len(tokens); start += b.nBatch {
		end := min(start+b.nBatch, len(tokens))
		chunk := make([]llama.Token, 0, end-start)
		for _, t := range tokens[start:end] {
			chunk = append(chunk, llama.Token(t))
		}
		ret, err := llama.Decode(b.lctx, llama.BatchGetOne(chunk))
		switch {
		case ret == 1:
			return backend.ErrNoKVSlot
		case err != nil:
			return fmt.Errorf("llama_decode: %w", err)
		case ret != 0:
			return fmt.Errorf("llama_decode returned %d", ret)
		}
	}
	return nil
}

func (b *Backend) Sample() (backend.Token, error) {
	if b.closed {
		return 0, errClosed
	}
	return backend.Token(llama.SamplerSample(b.sampler, b.lctx, -1)), nil
}

func (b *Backend) Piece(tok backend.Token) ([]byte, error) {
	if b.closed {
		return nil, errClosed
	}
	n := llama.TokenToPiece(b.vocab, llama.Token(tok), b.piece, 0, true)
	if n < 0 {
		b.piece = make([]byte, -n)
		n = llama.TokenToPiece(b.vocab, llama.Token(tok), b.piece, 0, true)
		if n < 0 {
			return nil, fmt.Errorf("token %d: piece does not fit in %d bytes", tok, len(b.piece))
		}
	}
	out := make([]byte, n)
	copy(out, b.piece[:n])
	return out, nil
}

func (b *Backend) IsEOG(tok backend.Token) bool {
	return !b.closed && llama.VocabIsEOG(b.vocab, llama.Token(tok))
}

func (b *Backend) ContextSize() int { return b.nCtx }

func (b *Backend) ClearMemory() error {
	if b.closed {
		return errClosed
	}
	mem, err := llama.GetMemory(b.lctx)
	if err != nil {
		return fmt.Errorf("get memory: %w", err)
	}
	if err := llama.MemoryClear(mem, true); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

// Description is llama.cpp's one-line model summary.
func (b *Backend) Description() string { return b.desc }

// Close releases sampler, context, then model. It is safe to call on a
// partially opened backend and more than once.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	if b.hasSampler {
		llama.SamplerFree(b.sampler)
		b.hasSampler = false
	}
	if b.hasContext {
		if err := llama.Free(b.lctx); err != nil {
			errs = append(errs, fmt.Errorf("free context: %w", err))
		}
		b.hasContext = false
	}
	if b.hasModel {
		if err := llama.ModelFree(b.model); err != nil {
			errs = append(errs, fmt.Errorf("free model: %w", err))
		}
		b.hasModel = false
	}
	return errors.Join(errs...)
}

var errClosed = errors.New("llama.cpp backend is closed")
