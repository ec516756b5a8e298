package tplparser

import "strings"

// renderGemma folds system text into the first user turn; Gemma has no
// system role. The assistant role is spelled "model".
func renderGemma(opts RenderOptions) (string, error) {
	var (
		b      strings.Builder
		system []string
		first  = true
	)
	for _, m := range opts.Messages {
		role := m.Role
		switch role {
		case "system":
			if !first {
				return "", unsupportedRole(FamilyGemma, "system (after first turn)")
			}
			system = append(system, m.Content)
			continue
		case "user":
		case "assistant":
			role = "model"
		default:
			return "", unsupportedRole(FamilyGemma, m.Role)
		}
		b.WriteString("<start_of_turn>")
		b.WriteString(role)
		b.WriteByte('\n')
		if first && len(system) > 0 {
			b.WriteString(strings.Join(system, "\n\n"))
			b.WriteString("\n\n")
		}
		first = false
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("<end_of_turn>\n")
	}
	if opts.AddGenerationPrompt {
		b.WriteString("<start_of_turn>model\n")
	}
	return b.String(), nil
}
