package tplparser

import "strings"

// renderLlama3 omits <|begin_of_text|>; the tokenizer adds BOS on the first turn.
func renderLlama3(opts RenderOptions) (string, error) {
	var b strings.Builder
	for _, m := range opts.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return "", unsupportedRole(FamilyLlama3, m.Role)
		}
		writeLlama3Header(&b, m.Role)
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("<|eot_id|>")
	}
	if opts.AddGenerationPrompt {
		writeLlama3Header(&b, "assistant")
	}
	return b.String(), nil
}

func writeLlama3Header(b *strings.Builder, role string) {
	b.WriteString("<|start_header_id|>")
	b.WriteString(role)
	b.WriteString("<|end_header_id|>\n\n")
}
