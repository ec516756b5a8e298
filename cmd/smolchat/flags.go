package main

import (
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/urfave/cli/v3"
)

var (
	modelPath  string
	modelsPath string
	libPath    string

	contextSize int64
	batchSize   int64
	threads     int64
	device      string
	gpuLayers   int64
	noMmap      bool
	mlock       bool

	temperature float64
	minP        float64

	chatTemplate    string
	systemPrompt    string
	stopWords       []string
	storeChats      bool
	promptWrapper   string
	sanitizeHistory bool

	logLevel  string
	logFormat string
	debug     bool
)

func modelFlags() []cli.Flag {
	def := inference.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to a .gguf model",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory searched for .gguf models when --model is not set",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "lib",
			Usage:       "directory holding the llama.cpp shared libraries",
			Destination: &libPath,
		},
		&cli.Int64Flag{
			Name:        "ctx",
			Aliases:     []string{"c", "context-size"},
			Usage:       "context window in tokens (0 = model default)",
			Destination: &contextSize,
		},
		&cli.Int64Flag{
			Name:        "batch-size",
			Usage:       "prompt batch size (0 = context size)",
			Destination: &batchSize,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Aliases:     []string{"t"},
			Usage:       "decode threads",
			Value:       int64(def.Threads),
			Destination: &threads,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "execution device (auto, cpu, gpu)",
			Value:       def.Device,
			Destination: &device,
		},
		&cli.Int64Flag{
			Name:        "gpu-layers",
			Aliases:     []string{"ngl"},
			Usage:       "layers offloaded to the GPU (0 = all when the device allows it)",
			Destination: &gpuLayers,
		},
		&cli.BoolFlag{
			Name:        "no-mmap",
			Usage:       "read weights into memory instead of mapping them",
			Destination: &noMmap,
		},
		&cli.BoolFlag{
			Name:        "mlock",
			Usage:       "lock model weights in RAM",
			Destination: &mlock,
		},
	}
}

func samplingFlags() []cli.Flag {
	def := inference.DefaultConfig()
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature"},
			Usage:       "sampling temperature",
			Value:       float64(def.Temperature),
			Destination: &temperature,
		},
		&cli.Float64Flag{
			Name:        "min-p",
			Aliases:     []string{"min_p", "minp"},
			Usage:       "min_p sampling parameter",
			Value:       float64(def.MinP),
			Destination: &minP,
		},
	}
}

func chatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "chat-template",
			Usage:       "template family (chatml, phi3, llama3, ...), template text, or template file",
			Destination: &chatTemplate,
		},
		&cli.StringFlag{
			Name:        "system",
			Aliases:     []string{"sys"},
			Usage:       "system prompt added before the first turn",
			Destination: &systemPrompt,
		},
		&cli.StringSliceFlag{
			Name:        "stop",
			Usage:       "stop word (repeatable)",
			Destination: &stopWords,
		},
		&cli.BoolFlag{
			Name:        "store-chats",
			Usage:       "keep previous turns in the conversation",
			Destination: &storeChats,
		},
		&cli.StringFlag{
			Name:        "prompt-wrapper",
			Usage:       "wrap each query, e.g. 'Rewrite politely: {query}'",
			Destination: &promptWrapper,
		},
		&cli.BoolFlag{
			Name:        "sanitize-history",
			Usage:       "strip think blocks and template markers from stored replies",
			Destination: &sanitizeHistory,
		},
	}
}

func sessionFlags() []cli.Flag {
	flags := append([]cli.Flag{}, modelFlags()...)
	flags = append(flags, samplingFlags()...)
	return append(flags, chatFlags()...)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// sessionConfig assembles the inference configuration from flag values.
func sessionConfig(model string) inference.Config {
	cfg := inference.DefaultConfig()
	cfg.ModelPath = model
	cfg.LibPath = libPath
	cfg.ContextSize = int(contextSize)
	cfg.BatchSize = int(batchSize)
	cfg.Threads = int(threads)
	cfg.Device = device
	cfg.GPULayers = int(gpuLayers)
	cfg.UseMmap = !noMmap
	cfg.UseMlock = mlock
	cfg.Temperature = float32(temperature)
	cfg.MinP = float32(minP)
	cfg.ChatTemplate = chatTemplate
	cfg.SystemPrompt = systemPrompt
	cfg.StopWords = append([]string(nil), stopWords...)
	cfg.StoreChats = storeChats
	cfg.PromptWrapper = inference.PromptWrapper(promptWrapper)
	cfg.SanitizeHistory = sanitizeHistory
	return cfg
}
