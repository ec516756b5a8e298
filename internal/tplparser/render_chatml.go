package tplparser

import "strings"

func renderChatML(opts RenderOptions) (string, error) {
	var b strings.Builder
	msgs := opts.Messages

	if opts.DefaultSystem != "" && len(msgs) > 0 && msgs[0].Role != "system" {
		writeChatMLTurn(&b, "system", opts.DefaultSystem)
	}
	for _, m := range msgs {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return "", unsupportedRole(FamilyChatML, m.Role)
		}
		writeChatMLTurn(&b, m.Role, m.Content)
	}
	if opts.AddGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String(), nil
}

func writeChatMLTurn(b *strings.Builder, role, content string) {
	b.WriteString("<|im_start|>")
	b.WriteString(role)
	b.WriteByte('\n')
	b.WriteString(content)
	b.WriteString("<|im_end|>\n")
}
