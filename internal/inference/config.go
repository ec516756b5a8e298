package inference

// DefaultContextSize applies when neither the configuration nor the model
// metadata provide a context length.
const DefaultContextSize = 1024

// Config is read once by Load.
type Config struct {
	ModelPath string
	// LibPath is the directory holding the llama.cpp shared libraries.
	LibPath string

	MinP        float32
	Temperature float32

	// StoreChats keeps user and assistant turns across completions. When
	// false, only messages added with AddChatMessage survive a turn.
	StoreChats bool

	// ContextSize <= 0 takes the model's trained context length.
	ContextSize int
	BatchSize   int

	// ChatTemplate is a family identifier, a template string, or a path to
	// a template file. Empty takes the template embedded in the model.
	ChatTemplate string

	Threads   int
	UseMmap   bool
	UseMlock  bool
	Device    string
	GPULayers int

	SystemPrompt    string
	StopWords       []string
	PromptWrapper   PromptWrapper
	SanitizeHistory bool
}

func DefaultConfig() Config {
	return Config{
		MinP:        0.01,
		Temperature: 1.1,
		StoreChats:  false,
		Threads:     4,
		UseMmap:     true,
		UseMlock:    false,
		Device:      "auto",
	}
}
