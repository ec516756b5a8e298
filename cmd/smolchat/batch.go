package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/urfave/cli/v3"
)

func batchCmd() *cli.Command {
	var (
		input  string
		output string
	)
	return &cli.Command{
		Name:  "batch",
		Usage: "Run one completion per input line and write JSON lines",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "file with one query per line (default stdin)",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "JSON lines output file (default stdout)",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			var in io.Reader = os.Stdin
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return exitErr(err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			var out io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return exitErr(err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			// Items are independent; earlier answers never leak into later ones.
			sess, err := openSession(ctx, cmd, func(c *inference.Config) { c.StoreChats = false })
			if err != nil {
				return exitErr(err)
			}
			defer func() { _ = sess.Close() }()

			st, err := runBatch(ctx, sess, in, out, log)
			log.Info("batch finished", "items", st.items, "failed", st.failed)
			if err != nil {
				return exitErr(err)
			}
			return nil
		},
	}
}

type batchRecord struct {
	ID          string  `json:"id"`
	Input       string  `json:"input"`
	Output      string  `json:"output"`
	Tokens      int     `json:"tokens"`
	TPS         float64 `json:"tps"`
	ContextUsed int     `json:"context_used"`
	Error       string  `json:"error,omitempty"`
}

type batchStats struct {
	items  int
	failed int
}

// runBatch answers every non-blank line of in as its own turn on an empty
// context, so a long batch never runs out of room. A failed
// item is recorded with its error and the batch continues; cancellation
// stops it.
func runBatch(ctx context.Context, sess *inference.Session, in io.Reader, out io.Writer, log logger.Logger) (batchStats, error) {
	var st batchStats
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	enc := json.NewEncoder(out)

	for sc.Scan() {
		query := strings.TrimSpace(sc.Text())
		if query == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.items++
		rec := batchRecord{ID: uuid.NewString(), Input: query}

		err := sess.ResetContext()
		var res *inference.Result
		if err == nil {
			res, err = sess.Generate(ctx, query, nil)
		}
		switch {
		case err != nil && ctx.Err() != nil:
			return st, ctx.Err()
		case err != nil:
			st.failed++
			rec.Error = err.Error()
			rec.ContextUsed = sess.ContextSizeUsed()
			log.Warn("batch item failed", "id", rec.ID, "error", err)
		default:
			rec.Output = res.Text
			rec.Tokens = res.Stats.TokensGenerated
			rec.TPS = res.Stats.TokensPerSecond
			rec.ContextUsed = res.Stats.ContextUsed
		}
		if err := enc.Encode(rec); err != nil {
			return st, fmt.Errorf("write record: %w", err)
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read input: %w", err)
	}
	return st, nil
}
