package tplparser

import (
	"strings"
	"testing"
)

func conversation() []Message {
	return []Message{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "bye"},
	}
}

func TestRenderFamilies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		family Family
		want   string
	}{
		{
			name:   "chatml",
			family: FamilyChatML,
			want: "<|im_start|>system\nBe brief.<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n" +
				"<|im_start|>assistant\nhello<|im_end|>\n<|im_start|>user\nbye<|im_end|>\n<|im_start|>assistant\n",
		},
		{
			name:   "phi3",
			family: FamilyPhi3,
			want:   "<|system|>\nBe brief.<|end|>\n<|user|>\nhi<|end|>\n<|assistant|>\nhello<|end|>\n<|user|>\nbye<|end|>\n<|assistant|>\n",
		},
		{
			name:   "zephyr",
			family: FamilyZephyr,
			want:   "<|system|>\nBe brief.</s>\n<|user|>\nhi</s>\n<|assistant|>\nhello</s>\n<|user|>\nbye</s>\n<|assistant|>\n",
		},
		{
			name:   "llama3",
			family: FamilyLlama3,
			want: "<|start_header_id|>system<|end_header_id|>\n\nBe brief.<|eot_id|>" +
				"<|start_header_id|>user<|end_header_id|>\n\nhi<|eot_id|>" +
				"<|start_header_id|>assistant<|end_header_id|>\n\nhello<|eot_id|>" +
				"<|start_header_id|>user<|end_header_id|>\n\nbye<|eot_id|>" +
				"<|start_header_id|>assistant<|end_header_id|>\n\n",
		},
		{
			name:   "gemma",
			family: FamilyGemma,
			want: "<start_of_turn>user\nBe brief.\n\nhi<end_of_turn>\n<start_of_turn>model\nhello<end_of_turn>\n" +
				"<start_of_turn>user\nbye<end_of_turn>\n<start_of_turn>model\n",
		},
		{
			name:   "mistral",
			family: FamilyMistral,
			want:   "[INST] Be brief.\n\nhi [/INST] hello</s>[INST] bye [/INST]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := Render(RenderOptions{Family: tc.family, AddGenerationPrompt: true, Messages: conversation()})
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if !ok {
				t.Fatal("expected renderer match")
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderPrefixStable(t *testing.T) {
	t.Parallel()

	msgs := conversation()
	msgs = append(msgs, Message{Role: "assistant", Content: "see you"})
	for _, family := range []Family{FamilyChatML, FamilyPhi3, FamilyZephyr, FamilyLlama3, FamilyGemma, FamilyMistral} {
		prev := ""
		for n := 1; n <= len(msgs); n++ {
			out, _, err := Render(RenderOptions{Family: family, Messages: msgs[:n]})
			if err != nil {
				t.Fatalf("%s: render %d: %v", family, n, err)
			}
			if !strings.HasPrefix(out, prev) {
				t.Fatalf("%s: rendering of %d messages is not an extension of %d:\nprev=%q\nnext=%q", family, n, n-1, prev, out)
			}
			// The generation prompt must also extend the plain rendering.
			withGen, _, _ := Render(RenderOptions{Family: family, AddGenerationPrompt: true, Messages: msgs[:n]})
			if !strings.HasPrefix(withGen, out) {
				t.Fatalf("%s: generation prompt rewrote the prefix: %q vs %q", family, withGen, out)
			}
			prev = out
		}
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Family
	}{
		{in: "chatml", want: FamilyChatML},
		{in: " Phi3 ", want: FamilyPhi3},
		{in: SmolLMTemplate, want: FamilyChatML},
		{in: "{{ '<|user|>\n' + message['content'] + '<|end|>\n' }}", want: FamilyPhi3},
		{in: "{{ '<|user|>\n' + message['content'] + eos_token }}", want: FamilyZephyr},
		{in: "{{ '<|start_header_id|>' + message['role'] }}", want: FamilyLlama3},
		{in: "{{ '<start_of_turn>' + role + '\n' }}", want: FamilyGemma},
		{in: "{{ bos_token + '[INST] ' + message['content'] + ' [/INST]' }}", want: FamilyMistral},
		{in: "{{ messages }}", want: ""},
	}
	for _, tc := range tests {
		if got := Detect(tc.in); got != tc.want {
			t.Fatalf("Detect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderSmolLMDefaultSystem(t *testing.T) {
	t.Parallel()

	out, ok, err := Render(RenderOptions{
		Template:            SmolLMTemplate,
		AddGenerationPrompt: true,
		Messages:            []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil || !ok {
		t.Fatalf("render: ok=%v err=%v", ok, err)
	}
	want := "<|im_start|>system\n" + SmolLMSystemPrompt + "<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	// An explicit system message replaces the default.
	out, _, _ = Render(RenderOptions{
		Template: SmolLMTemplate,
		Messages: []Message{{Role: "system", Content: "custom"}, {Role: "user", Content: "hi"}},
	})
	if strings.Contains(out, SmolLMSystemPrompt) {
		t.Fatalf("default system should not be rendered: %q", out)
	}
}

func TestDefaultSystemIgnoresExpressions(t *testing.T) {
	t.Parallel()

	tpl := "{% if messages[0]['role'] != 'system' %}{{ '<|im_start|>system\n' + messages[0]['content'] + '<|im_end|>' }}{% endif %}"
	if got := defaultSystemFor(tpl); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	if got := defaultSystemFor("smollm"); got != SmolLMSystemPrompt {
		t.Fatalf("got %q", got)
	}
}

func TestRenderUnsupported(t *testing.T) {
	t.Parallel()

	_, ok, err := Render(RenderOptions{Template: "{{ messages }}", Arch: "unknown"})
	if err != nil || ok {
		t.Fatalf("expected no match, got ok=%v err=%v", ok, err)
	}

	_, _, err = Render(RenderOptions{Family: FamilyChatML, Messages: []Message{{Role: "tool", Content: "x"}}})
	if err == nil {
		t.Fatal("expected error for unsupported role")
	}
}

func TestByArch(t *testing.T) {
	t.Parallel()

	out, ok, err := Render(RenderOptions{Arch: "phi3", Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if out != "<|user|>\nx<|end|>\n" {
		t.Fatalf("got %q", out)
	}
}
