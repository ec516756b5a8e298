package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samcharles93/smolchat/internal/backend/llamacpp"
	"github.com/samcharles93/smolchat/internal/gguf"
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/tplparser"
	"github.com/urfave/cli/v3"
)

func inspectCmd() *cli.Command {
	var (
		all        bool
		showTpl    bool
		systemInfo bool
	)
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show GGUF metadata that shapes a chat session",
		ArgsUsage: "[model.gguf]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to a .gguf model",
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "lib",
				Usage:       "directory holding the llama.cpp shared libraries",
				Destination: &libPath,
			},
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "print every metadata key",
				Destination: &all,
			},
			&cli.BoolFlag{
				Name:        "template",
				Usage:       "print the embedded chat template",
				Destination: &showTpl,
			},
			&cli.BoolFlag{
				Name:        "system-info",
				Usage:       "load llama.cpp and print its build features",
				Destination: &systemInfo,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				setString(cmd, "model", &modelPath, fileConfig.Model, os.Getenv(envModel))
				path = modelPath
			}
			if path == "" && !systemInfo {
				return exitErr(errors.New("a model path is required"))
			}

			if path != "" {
				md, err := gguf.ReadMetadata(path)
				if err != nil {
					return exitErr(err)
				}
				writeInspect(os.Stdout, md, all, showTpl)
			}

			if systemInfo {
				setString(cmd, "lib", &libPath, fileConfig.LibPath, os.Getenv(envLib))
				info, gpu, err := llamacpp.SystemInfo(libPath)
				if err != nil {
					return exitErr(err)
				}
				fmt.Printf("\nllama.cpp:      %s\n", strings.TrimSpace(info))
				fmt.Printf("GPU offload:    %v\n", gpu)
			}
			return nil
		},
	}
}

func writeInspect(w io.Writer, md *gguf.Metadata, all, showTpl bool) {
	p := func(label, format string, args ...any) {
		_, _ = fmt.Fprintf(w, "%-15s "+format+"\n", append([]any{label + ":"}, args...)...)
	}
	p("File", "%s", md.Path)
	p("GGUF version", "%d", md.Version)
	p("Tensors", "%d", md.TensorCount)
	p("Architecture", "%s", orNone(md.Architecture()))
	p("Name", "%s", orNone(md.Name()))
	if n, ok := md.ContextLength(); ok {
		p("Context length", "%d", n)
	} else {
		p("Context length", "(none, %d assumed)", inference.DefaultContextSize)
	}

	tpl, hasTpl := md.ChatTemplate()
	family := tplparser.Detect(tpl)
	source := "embedded"
	switch {
	case !hasTpl:
		source = "none"
		family = tplparser.ByArch(md.Architecture())
	case family == "":
		family = tplparser.ByArch(md.Architecture())
		source = "embedded, unrecognized"
	}
	if family == "" {
		family = tplparser.FamilyChatML
		source += ", chatml fallback"
	}
	p("Chat template", "%s (%s)", family, source)

	if showTpl && hasTpl {
		_, _ = fmt.Fprintf(w, "\n%s\n", tpl)
	}
	if all {
		_, _ = fmt.Fprintln(w)
		for _, k := range md.Keys() {
			_, _ = fmt.Fprintf(w, "  %-48s %s\n", k, gguf.Describe(md.KV[k]))
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
