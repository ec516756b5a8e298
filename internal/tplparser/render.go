package tplparser

import (
	"fmt"
	"strings"
)

// Render returns (output, ok). ok=false means no renderer matched.
func Render(opts RenderOptions) (string, bool, error) {
	family := opts.Family
	if family == "" {
		family = Detect(opts.Template)
	}
	if family == "" {
		family = ByArch(opts.Arch)
	}
	if family == "" {
		return "", false, nil
	}
	if opts.DefaultSystem == "" {
		opts.DefaultSystem = defaultSystemFor(opts.Template)
	}

	var (
		out string
		err error
	)
	switch family {
	case FamilyChatML:
		out, err = renderChatML(opts)
	case FamilyPhi3:
		out, err = renderPhi3(opts)
	case FamilyZephyr:
		out, err = renderZephyr(opts)
	case FamilyLlama3:
		out, err = renderLlama3(opts)
	case FamilyGemma:
		out, err = renderGemma(opts)
	case FamilyMistral:
		out, err = renderMistral(opts)
	default:
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

// Lookup resolves a family identifier such as "chatml" or "phi3".
func Lookup(name string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chatml", "smollm", "qwen", "qwen2":
		return FamilyChatML, true
	case "phi3", "phi-3", "phi4":
		return FamilyPhi3, true
	case "zephyr":
		return FamilyZephyr, true
	case "llama3", "llama-3":
		return FamilyLlama3, true
	case "gemma", "gemma2", "gemma3":
		return FamilyGemma, true
	case "mistral", "llama2", "llama-2":
		return FamilyMistral, true
	default:
		return "", false
	}
}

// Detect picks a family from a template identifier or Jinja source.
func Detect(tpl string) Family {
	if f, ok := Lookup(tpl); ok {
		return f
	}
	switch {
	case strings.Contains(tpl, "<|start_header_id|>"):
		return FamilyLlama3
	case strings.Contains(tpl, "<start_of_turn>"):
		return FamilyGemma
	case strings.Contains(tpl, "<|im_start|>") && strings.Contains(tpl, "<|im_end|>"):
		return FamilyChatML
	case strings.Contains(tpl, "<|user|>") && strings.Contains(tpl, "<|end|>"):
		return FamilyPhi3
	case strings.Contains(tpl, "<|user|>") && strings.Contains(tpl, "eos_token"):
		return FamilyZephyr
	case strings.Contains(tpl, "[INST]"):
		return FamilyMistral
	default:
		return ""
	}
}

// ByArch maps a GGUF architecture to the family its instruct models use.
func ByArch(arch string) Family {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "qwen2", "qwen3", "lfm2", "smollm3", "olmo2":
		return FamilyChatML
	case "phi3":
		return FamilyPhi3
	case "gemma", "gemma2", "gemma3":
		return FamilyGemma
	case "mistral3":
		return FamilyMistral
	default:
		return ""
	}
}

func unsupportedRole(family Family, role string) error {
	return fmt.Errorf("%s: unsupported role %q", family, role)
}
