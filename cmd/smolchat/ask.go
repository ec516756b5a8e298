package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
)

func askCmd() *cli.Command {
	var (
		markdown bool
		stats    bool
		raw      bool
		width    int64
	)
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a single query and exit",
		ArgsUsage: "<query> (or stdin)",
		Flags: append(sessionFlags(),
			&cli.BoolFlag{
				Name:        "markdown",
				Aliases:     []string{"md"},
				Usage:       "render the reply as markdown once it is complete",
				Destination: &markdown,
			},
			&cli.Int64Flag{
				Name:        "width",
				Usage:       "wrap width for --markdown",
				Value:       80,
				Destination: &width,
			},
			&cli.BoolFlag{
				Name:        "stats",
				Usage:       "print generation stats to stderr",
				Destination: &stats,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "escape control characters in the reply",
				Destination: &raw,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := readQuery(cmd.Args().Slice(), os.Stdin)
			if err != nil {
				return exitErr(err)
			}

			sess, err := openSession(ctx, cmd)
			if err != nil {
				return exitErr(err)
			}
			defer func() { _ = sess.Close() }()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			mode := StreamInstant
			if markdown {
				mode = StreamQuiet
			}
			var out io.Writer = os.Stdout
			if markdown {
				out = io.Discard
			}
			w := NewStreamWriter(out, mode, raw)
			res, err := sess.Generate(ctx, query, w.Write)
			text := w.Flush()
			if err != nil && !errors.Is(err, context.Canceled) {
				return exitErr(err)
			}

			if markdown {
				rendered, err := renderMarkdown(text, int(width))
				if err != nil {
					return exitErr(err)
				}
				fmt.Print(rendered)
			} else {
				fmt.Println()
			}
			if stats {
				m := sess.Metrics()
				if res != nil {
					m = res.Stats
				}
				_, _ = fmt.Fprintln(os.Stderr, statsLine(m))
			}
			return nil
		},
	}
}

// readQuery joins the arguments, or reads stdin when there are none and it
// is not a terminal.
func readQuery(args []string, stdin io.Reader) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" && !stdinIsTTY() {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		q = strings.TrimSpace(string(b))
	}
	if q == "" {
		return "", errors.New("a query is required")
	}
	return q, nil
}

func renderMarkdown(text string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}
