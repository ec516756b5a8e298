package tplparser

import (
	"regexp"
	"strings"
)

// SmolLMSystemPrompt is injected by SmolLMTemplate when a conversation does
// not start with a system message.
const SmolLMSystemPrompt = "You are a helpful AI assistant named SmolLM, trained by Hugging Face"

// SmolLMTemplate is the ChatML template shipped with SmolLM instruct models.
// It is the fallback when neither configuration nor model metadata name one.
const SmolLMTemplate = "{% for message in messages %}" +
	"{% if loop.first and messages[0]['role'] != 'system' %}" +
	"{{ '<|im_start|>system\n" + SmolLMSystemPrompt + "<|im_end|>\n' }}" +
	"{% endif %}" +
	"{{'<|im_start|>' + message['role'] + '\n' + message['content'] + '<|im_end|>' + '\n'}}" +
	"{% endfor %}" +
	"{% if add_generation_prompt %}{{ '<|im_start|>assistant\n' }}{% endif %}"

var defaultSystemRe = regexp.MustCompile(`(?s)<\|im_start\|>system\s+(.*?)<\|im_end\|>`)

// defaultSystemFor extracts the literal system turn a ChatML template emits
// when the first message is not a system message.
func defaultSystemFor(tpl string) string {
	if strings.EqualFold(strings.TrimSpace(tpl), "smollm") {
		return SmolLMSystemPrompt
	}
	if !strings.Contains(tpl, "!= 'system'") && !strings.Contains(tpl, `!= "system"`) {
		return ""
	}
	for _, m := range defaultSystemRe.FindAllStringSubmatch(tpl, -1) {
		text := strings.TrimSpace(m[1])
		// Skip matches that splice template expressions.
		if text == "" || strings.ContainsAny(text, "{}+") || strings.Contains(text, "message") {
			continue
		}
		return text
	}
	return ""
}
