package tplparser

import "strings"

// renderPhi3 writes <|role|>\ncontent<|end|>\n turns.
func renderPhi3(opts RenderOptions) (string, error) {
	return renderTagged(opts, FamilyPhi3, "<|end|>\n")
}

// renderZephyr is Phi-3's layout with </s> closing each turn.
func renderZephyr(opts RenderOptions) (string, error) {
	return renderTagged(opts, FamilyZephyr, "</s>\n")
}

func renderTagged(opts RenderOptions, family Family, closeTag string) (string, error) {
	var b strings.Builder
	for _, m := range opts.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return "", unsupportedRole(family, m.Role)
		}
		b.WriteString("<|")
		b.WriteString(m.Role)
		b.WriteString("|>\n")
		b.WriteString(m.Content)
		b.WriteString(closeTag)
	}
	if opts.AddGenerationPrompt {
		b.WriteString("<|assistant|>\n")
	}
	return b.String(), nil
}
