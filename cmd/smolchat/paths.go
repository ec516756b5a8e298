package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// stdinIsTTY is a seam for tests.
var stdinIsTTY = isTTY

// resolveModelPath returns the model to load: the explicit path, the only
// model in the models directory, or one picked interactively.
func resolveModelPath(model, modelsDir string, stdin io.Reader, stderr io.Writer) (string, error) {
	if model = strings.TrimSpace(model); model != "" {
		return filepath.Clean(model), nil
	}
	modelsDir = strings.TrimSpace(modelsDir)
	if modelsDir == "" {
		return "", fmt.Errorf("--model or --models-path is required unless %s or %s is set", envModel, envModelsDir)
	}

	models, err := discoverModels(modelsDir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 0:
		return "", fmt.Errorf("no .gguf models found in %s", modelsDir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using model %s\n", models[0])
		return models[0], nil
	}
	if !stdinIsTTY() {
		return "", fmt.Errorf("%d models found in %s but stdin is not interactive; set --model", len(models), modelsDir)
	}
	return selectModel(modelsDir, models, stdin, stderr)
}

func discoverModels(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var models []string
	for _, e := range ents {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
			continue
		}
		models = append(models, filepath.Join(dir, e.Name()))
	}
	slices.Sort(models)
	return models, nil
}

func selectModel(modelsDir string, models []string, stdin io.Reader, stderr io.Writer) (string, error) {
	_, _ = fmt.Fprintf(stderr, "models in %s:\n", modelsDir)
	for i, m := range models {
		_, _ = fmt.Fprintf(stderr, "%3d. %s\n", i+1, filepath.Base(m))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "select [1-%d]: ", len(models))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				return "", errors.New("no model selected; set --model")
			}
			continue
		}
		idx, convErr := strconv.Atoi(line)
		if convErr == nil && idx >= 1 && idx <= len(models) {
			return models[idx-1], nil
		}
		_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
		if eof {
			return "", errors.New("invalid model selection; set --model")
		}
	}
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
