package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samcharles93/smolchat/internal/backend"
	"github.com/samcharles93/smolchat/internal/backend/llamacpp"
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/urfave/cli/v3"
)

// setup loads the config file and puts the logger into the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configPath())
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	fileConfig = cfg

	log, err := buildLogger(cmd, cfg, os.Stderr)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func buildLogger(cmd *cli.Command, cfg Config, w io.Writer) (logger.Logger, error) {
	setString(cmd, "log-level", &logLevel, cfg.LogLevel)
	setString(cmd, "log-format", &logFormat, cfg.LogFormat)
	if debug {
		logLevel = "debug"
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return nil, err
	}
	return logger.Build(w, logger.Options{Format: format, Level: level}), nil
}

// sessionOpener is replaced in tests.
var sessionOpener backend.Opener = llamacpp.Open

// openSession resolves the model and loads a session from flags, the config
// file, and the environment. Overrides run last.
func openSession(ctx context.Context, cmd *cli.Command, overrides ...func(*inference.Config)) (*inference.Session, error) {
	applySessionConfig(cmd, fileConfig)
	path, err := resolveModelPath(modelPath, modelsPath, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	cfg := sessionConfig(path)
	for _, o := range overrides {
		o(&cfg)
	}
	return inference.Load(ctx, cfg, sessionOpener, logger.FromContext(ctx))
}

func exitErr(err error) error {
	return cli.Exit(fmt.Sprintf("error: %v", err), 1)
}
