package tplparser

// Message is one chat turn as seen by a renderer.
type Message struct {
	Role    string
	Content string
}

// Family identifies a prompt format. Renderers are hand-written per family;
// Jinja templates are matched to a family by signature, never interpreted.
type Family string

const (
	FamilyChatML  Family = "chatml"
	FamilyPhi3    Family = "phi3"
	FamilyZephyr  Family = "zephyr"
	FamilyLlama3  Family = "llama3"
	FamilyGemma   Family = "gemma"
	FamilyMistral Family = "mistral"
)

type RenderOptions struct {
	// Template is a Jinja chat template or a family identifier.
	Template string
	// Family overrides detection when set.
	Family Family
	// Arch is the GGUF general.architecture, used when Template is empty.
	Arch string
	// DefaultSystem is rendered as a system turn when the first message is
	// not a system message. Only ChatML honours it. When empty it is
	// extracted from Template.
	DefaultSystem       string
	AddGenerationPrompt bool
	Messages            []Message
}
