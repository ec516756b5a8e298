package inference

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// sentinels are end-of-turn markers some models print as plain text.
var sentinels = strings.NewReplacer(
	"<|im_end|>", "",
	"<|endoftext|>", "",
	"<|end_of_text|>", "",
	"<|eot_id|>", "",
	"<|end|>", "",
	"<end_of_turn>", "",
	"</s>", "",
)

// SanitizeAssistant removes reasoning blocks and template sentinels from a
// reply before it is written back to the history.
func SanitizeAssistant(text string) string {
	return strings.TrimSpace(sentinels.Replace(dropReasoning(text)))
}

// dropReasoning cuts every <think> block, tags matched without regard to
// ASCII case. An unclosed block runs to the end of text.
func dropReasoning(text string) string {
	var kept strings.Builder
	for {
		open := indexFoldASCII(text, thinkOpen)
		if open < 0 {
			kept.WriteString(text)
			return kept.String()
		}
		kept.WriteString(text[:open])
		body := text[open+len(thinkOpen):]
		end := indexFoldASCII(body, thinkClose)
		if end < 0 {
			return kept.String()
		}
		text = body[end+len(thinkClose):]
	}
}

// indexFoldASCII is strings.Index with ASCII case folding. tag must be ASCII.
// The result is an offset into s; bytes of multi-byte runes never match.
func indexFoldASCII(s, tag string) int {
	for i := 0; i+len(tag) <= len(s); i++ {
		match := true
		for j := 0; j < len(tag); j++ {
			if lowerASCII(s[i+j]) != lowerASCII(tag[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
