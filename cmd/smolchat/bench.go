package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/urfave/cli/v3"
)

func benchCmd() *cli.Command {
	var (
		warmup int64
		runs   int64
		prompt string
	)
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure generation speed over repeated single turns",
		Flags: append(append(modelFlags(), samplingFlags()...),
			&cli.Int64Flag{
				Name:        "warmup",
				Usage:       "untimed runs before measuring",
				Value:       1,
				Destination: &warmup,
			},
			&cli.Int64Flag{
				Name:        "runs",
				Usage:       "measured runs",
				Value:       3,
				Destination: &runs,
			},
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "query used for every run",
				Value:       "Explain the theory of relativity in simple terms.",
				Destination: &prompt,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			start := time.Now()
			sess, err := openSession(ctx, cmd, func(c *inference.Config) { c.StoreChats = false })
			if err != nil {
				return exitErr(err)
			}
			defer func() { _ = sess.Close() }()
			loaded := time.Since(start)

			info := sess.Info()
			fmt.Println("=== smolchat bench ===")
			fmt.Printf("Model:    %s\n", info.ModelPath)
			fmt.Printf("Device:   %s\n", device)
			fmt.Printf("Context:  %d tokens\n", info.ContextSize)
			fmt.Printf("CPUs:     %d (threads %d)\n", runtime.NumCPU(), threads)
			fmt.Printf("Load:     %s\n\n", loaded.Round(time.Millisecond))

			results, err := runBench(ctx, sess, prompt, int(warmup), int(runs), log)
			if err != nil {
				return exitErr(err)
			}
			writeBenchReport(os.Stdout, results)
			return nil
		},
	}
}

// runBench expects StoreChats off and empties the context before every run,
// so all runs see the same prompt from position zero.
func runBench(ctx context.Context, sess *inference.Session, prompt string, warmup, runs int, log logger.Logger) ([]inference.Metrics, error) {
	for i := range warmup {
		log.Info("warmup run", "run", i+1)
		if err := sess.ResetContext(); err != nil {
			return nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
		if _, err := sess.Generate(ctx, prompt, nil); err != nil {
			return nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}
	results := make([]inference.Metrics, 0, runs)
	for i := range runs {
		log.Info("bench run", "run", i+1)
		if err := sess.ResetContext(); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		res, err := sess.Generate(ctx, prompt, nil)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
		results = append(results, res.Stats)
	}
	return results, nil
}

func writeBenchReport(w io.Writer, results []inference.Metrics) {
	_, _ = fmt.Fprintf(w, "%-6s %10s %10s %8s %10s\n", "Run", "tok/s", "Duration", "Tokens", "Context")
	var sumTPS float64
	var sumTokens int
	for i, m := range results {
		_, _ = fmt.Fprintf(w, "%-6d %10.2f %10s %8d %10d\n",
			i+1, m.TokensPerSecond, m.GenerationTime.Round(time.Millisecond), m.TokensGenerated, m.ContextUsed)
		sumTPS += m.TokensPerSecond
		sumTokens += m.TokensGenerated
	}
	if n := len(results); n > 0 {
		_, _ = fmt.Fprintf(w, "\n%-6s %10.2f %10s %8d\n", "Avg", sumTPS/float64(n), "", sumTokens/n)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, _ = fmt.Fprintf(w, "\nGo heap: %.1f MB alloc, %.1f MB sys\n", float64(mem.Alloc)/(1<<20), float64(mem.Sys)/(1<<20))
}
