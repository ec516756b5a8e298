package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	envModel     = "SMOLCHAT_MODEL"
	envLib       = "SMOLCHAT_LIB"
	envModelsDir = "SMOLCHAT_MODELS_DIR"
	envConfig    = "SMOLCHAT_CONFIG"
)

// Config is the optional file at $XDG_CONFIG_HOME/smolchat/config.yaml.
// Pointer fields tell an absent key from a zero value.
type Config struct {
	Model     string `yaml:"model"`
	ModelsDir string `yaml:"models_dir"`
	LibPath   string `yaml:"lib_path"`

	ContextSize *int64 `yaml:"context_size"`
	BatchSize   *int64 `yaml:"batch_size"`
	Threads     *int64 `yaml:"threads"`
	Device      string `yaml:"device"`
	GPULayers   *int64 `yaml:"gpu_layers"`
	UseMmap     *bool  `yaml:"use_mmap"`
	UseMlock    *bool  `yaml:"use_mlock"`

	Temperature *float64 `yaml:"temperature"`
	MinP        *float64 `yaml:"min_p"`

	ChatTemplate    string   `yaml:"chat_template"`
	SystemPrompt    string   `yaml:"system_prompt"`
	StopWords       []string `yaml:"stop_words"`
	StoreChats      *bool    `yaml:"store_chats"`
	PromptWrapper   string   `yaml:"prompt_wrapper"`
	SanitizeHistory *bool    `yaml:"sanitize_history"`

	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
}

// fileConfig is loaded once by the root command's Before hook.
var fileConfig Config

func configPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfig)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "smolchat", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func setString(c *cli.Command, flag string, dst *string, values ...string) {
	if c.IsSet(flag) {
		return
	}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
			return
		}
	}
}

func setPtr[T any](c *cli.Command, flag string, dst *T, v *T) {
	if v != nil && !c.IsSet(flag) {
		*dst = *v
	}
}

// applySessionConfig fills every flag the user did not set from the config
// file, then from the environment.
func applySessionConfig(c *cli.Command, cfg Config) {
	setString(c, "model", &modelPath, cfg.Model, os.Getenv(envModel))
	setString(c, "models-path", &modelsPath, cfg.ModelsDir, os.Getenv(envModelsDir))
	setString(c, "lib", &libPath, cfg.LibPath, os.Getenv(envLib))
	setString(c, "device", &device, cfg.Device)
	setString(c, "chat-template", &chatTemplate, cfg.ChatTemplate)
	setString(c, "system", &systemPrompt, cfg.SystemPrompt)
	setString(c, "prompt-wrapper", &promptWrapper, cfg.PromptWrapper)

	setPtr(c, "ctx", &contextSize, cfg.ContextSize)
	setPtr(c, "batch-size", &batchSize, cfg.BatchSize)
	setPtr(c, "threads", &threads, cfg.Threads)
	setPtr(c, "gpu-layers", &gpuLayers, cfg.GPULayers)
	setPtr(c, "mlock", &mlock, cfg.UseMlock)
	setPtr(c, "temp", &temperature, cfg.Temperature)
	setPtr(c, "min-p", &minP, cfg.MinP)
	setPtr(c, "store-chats", &storeChats, cfg.StoreChats)
	setPtr(c, "sanitize-history", &sanitizeHistory, cfg.SanitizeHistory)
	if cfg.UseMmap != nil && !c.IsSet("no-mmap") {
		noMmap = !*cfg.UseMmap
	}
	if len(cfg.StopWords) > 0 && !c.IsSet("stop") {
		stopWords = append([]string(nil), cfg.StopWords...)
	}
}
