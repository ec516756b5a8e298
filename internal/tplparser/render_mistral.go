package tplparser

import "strings"

// renderMistral writes the [INST] layout shared by Mistral and Llama 2.
// The system prompt is prepended to the first user instruction.
func renderMistral(opts RenderOptions) (string, error) {
	var (
		b      strings.Builder
		system []string
		first  = true
	)
	for _, m := range opts.Messages {
		switch m.Role {
		case "system":
			if !first {
				return "", unsupportedRole(FamilyMistral, "system (after first turn)")
			}
			system = append(system, m.Content)
		case "user":
			b.WriteString("[INST] ")
			if first && len(system) > 0 {
				b.WriteString(strings.Join(system, "\n\n"))
				b.WriteString("\n\n")
			}
			first = false
			b.WriteString(strings.TrimSpace(m.Content))
			b.WriteString(" [/INST]")
		case "assistant":
			first = false
			b.WriteByte(' ')
			b.WriteString(strings.TrimSpace(m.Content))
			b.WriteString("</s>")
		default:
			return "", unsupportedRole(FamilyMistral, m.Role)
		}
	}
	// The model continues directly after [/INST]; there is no header to add.
	return b.String(), nil
}
