package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samcharles93/smolchat/internal/backend"
	"github.com/samcharles93/smolchat/internal/gguf"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/samcharles93/smolchat/internal/tplparser"
)

// Load resolves context size and chat template from cfg and the model's
// GGUF metadata, opens the backend, and returns an idle session. Every
// failure is an ErrLoadFailure and leaves nothing allocated.
func Load(ctx context.Context, cfg Config, open backend.Opener, log logger.Logger) (*Session, error) {
	const op = "load"
	log = logger.OrDiscard(log)

	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, newError(op, ErrLoadFailure, errors.New("model path is required"))
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, newError(op, ErrLoadFailure, err)
	}
	device, err := backend.NormalizeDevice(cfg.Device)
	if err != nil {
		return nil, newError(op, ErrLoadFailure, err)
	}

	meta, err := gguf.ReadMetadata(cfg.ModelPath)
	if err != nil {
		log.Warn("model metadata unreadable, using defaults", "path", cfg.ModelPath, "error", err)
	}

	info := Info{ModelPath: cfg.ModelPath}
	if meta != nil {
		info.Arch = meta.Architecture()
		info.Name = meta.Name()
	}

	cfg.ContextSize = resolveContextSize(cfg.ContextSize, meta)

	tpl, source, err := resolveTemplate(cfg.ChatTemplate, meta)
	if err != nil {
		return nil, newError(op, ErrLoadFailure, err)
	}
	family := tplparser.Detect(tpl)
	if family == "" {
		family = tplparser.ByArch(info.Arch)
	}
	if family == "" {
		log.Warn("chat template not recognized, falling back to chatml", "source", source)
		family = tplparser.FamilyChatML
	}
	info.Family = family
	info.TemplateSource = source

	if err := ctx.Err(); err != nil {
		return nil, newError(op, ErrLoadFailure, err)
	}

	be, err := open(ctx, backend.Params{
		ModelPath:   cfg.ModelPath,
		LibPath:     cfg.LibPath,
		ContextSize: cfg.ContextSize,
		BatchSize:   cfg.BatchSize,
		Threads:     cfg.Threads,
		Device:      device,
		GPULayers:   cfg.GPULayers,
		UseMmap:     cfg.UseMmap,
		UseMlock:    cfg.UseMlock,
		MinP:        cfg.MinP,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, newError(op, ErrLoadFailure, err)
	}

	s := newSession(cfg, be, templateRenderer(tpl, family), log)
	info.ContextSize = s.ctxSize
	s.info = info
	cleanup := func(err error) (*Session, error) {
		_ = be.Close()
		return nil, newError(op, ErrLoadFailure, err)
	}

	if cfg.SystemPrompt != "" {
		if err := s.AddChatMessage(cfg.SystemPrompt, RoleSystem); err != nil {
			return cleanup(fmt.Errorf("system prompt: %w", err))
		}
	}
	stops := cfg.StopWords
	if len(stops) == 0 && family == tplparser.FamilyPhi3 {
		stops = Phi3StopWords
	}
	s.SetStopWords(stops)

	log.Info("model loaded",
		"model", info.ModelPath,
		"arch", info.Arch,
		"context_size", info.ContextSize,
		"template", family,
		"template_source", source,
	)
	return s, nil
}

func resolveContextSize(requested int, meta *gguf.Metadata) int {
	if requested > 0 {
		return requested
	}
	if meta != nil {
		if n, ok := meta.ContextLength(); ok && n > 0 {
			return n
		}
	}
	return DefaultContextSize
}

// resolveTemplate picks the configured template, then the model's, then the
// SmolLM default. A configured value naming an existing file is read.
func resolveTemplate(configured string, meta *gguf.Metadata) (tpl, source string, err error) {
	tpl = strings.TrimSpace(configured)
	switch {
	case tpl != "":
		source = "config"
		if len(tpl) < 256 && fileExists(tpl) {
			raw, err := os.ReadFile(tpl)
			if err != nil {
				return "", "", fmt.Errorf("read chat template: %w", err)
			}
			tpl = string(raw)
			source = "config:file"
		}
		if _, ok := tplparser.Lookup(tpl); ok {
			source = "config:name"
		}
	case meta != nil:
		if t, ok := meta.ChatTemplate(); ok {
			return t, "gguf", nil
		}
		fallthrough
	default:
		tpl, source = tplparser.SmolLMTemplate, "default"
	}
	return tpl, source, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func templateRenderer(tpl string, family tplparser.Family) Renderer {
	return func(msgs []Message, addGenerationPrompt bool) (string, error) {
		in := make([]tplparser.Message, len(msgs))
		for i, m := range msgs {
			in[i] = tplparser.Message{Role: string(m.Role), Content: m.Content}
		}
		out, ok, err := tplparser.Render(tplparser.RenderOptions{
			Template:            tpl,
			Family:              family,
			AddGenerationPrompt: addGenerationPrompt,
			Messages:            in,
		})
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no renderer for template family %q", family)
		}
		return out, nil
	}
}
