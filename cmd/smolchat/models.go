package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samcharles93/smolchat/internal/gguf"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/urfave/cli/v3"
)

func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "models",
		Aliases: []string{"ls"},
		Usage:   "List .gguf models in the models directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "directory containing .gguf models",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			setString(cmd, "models-path", &modelsPath, fileConfig.ModelsDir, os.Getenv(envModelsDir))
			if modelsPath == "" {
				return exitErr(fmt.Errorf("--models-path is required unless %s is set", envModelsDir))
			}
			models, err := discoverModels(modelsPath)
			if err != nil {
				return exitErr(err)
			}
			if len(models) == 0 {
				logger.FromContext(ctx).Info("no models found", "path", modelsPath)
				return nil
			}
			writeModelList(os.Stdout, modelsPath, models)
			return nil
		},
	}
}

func writeModelList(w io.Writer, dir string, models []string) {
	_, _ = fmt.Fprintf(w, "Models in %s:\n\n", dir)
	for _, m := range models {
		name := filepath.Base(m)
		size := "?"
		if st, err := os.Stat(m); err == nil {
			size = formatSize(st.Size())
		}
		detail := ""
		if md, err := gguf.ReadMetadata(m); err == nil {
			detail = md.Architecture()
			if n, ok := md.ContextLength(); ok {
				detail = fmt.Sprintf("%s, ctx %d", detail, n)
			}
		}
		if detail != "" {
			_, _ = fmt.Fprintf(w, "  %-40s %9s  (%s)\n", name, size, detail)
		} else {
			_, _ = fmt.Fprintf(w, "  %-40s %9s\n", name, size)
		}
	}
	_, _ = fmt.Fprintf(w, "\n%d model(s)\n", len(models))
}
