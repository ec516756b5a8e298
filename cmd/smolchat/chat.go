package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/urfave/cli/v3"
)

func chatCmd() *cli.Command {
	var (
		streamMode string
		raw        bool
	)
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with a model interactively",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:        "stream-mode",
				Usage:       "how replies are printed (instant, smooth, quiet)",
				Destination: &streamMode,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "escape control characters in replies",
				Destination: &raw,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			setString(cmd, "stream-mode", &streamMode, fileConfig.StreamMode)
			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return exitErr(err)
			}
			r := &repl{
				load: func(ctx context.Context) (*inference.Session, error) { return openSession(ctx, cmd) },
				in:   newLineReader(os.Stdin, os.Stdout),
				out:  os.Stdout,
				mode: mode,
				raw:  raw,
				log:  logger.FromContext(ctx),
			}
			if err := r.run(ctx); err != nil {
				return exitErr(err)
			}
			return nil
		},
	}
}

type lineSource interface {
	ReadLine(prompt string) (string, error)
}

// repl is the interactive chat loop. Lines starting with "/" are commands.
type repl struct {
	load func(context.Context) (*inference.Session, error)
	sess *inference.Session
	in   lineSource
	out  io.Writer
	mode StreamMode
	raw  bool
	log  logger.Logger
}

func (r *repl) run(ctx context.Context) error {
	sess, err := r.load(ctx)
	if err != nil {
		return err
	}
	r.sess = sess
	defer func() {
		if r.sess != nil {
			_ = r.sess.Close()
		}
	}()

	r.banner()
	prompt := styleUser.Render("you") + " > "
	for {
		line, err := r.in.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				r.printErr(err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.printErr(err)
		}
	}
}

func (r *repl) banner() {
	info := r.sess.Info()
	name := info.Name
	if name == "" {
		name = filepath.Base(info.ModelPath)
	}
	_, _ = fmt.Fprintln(r.out, styleBanner.Render("smolchat · "+name))
	_, _ = fmt.Fprintln(r.out, styleDim.Render(fmt.Sprintf("template %s (%s), context %d tokens. /help lists commands.",
		info.Family, info.TemplateSource, info.ContextSize)))
}

// turn runs one completion. Ctrl+C stops the reply and keeps what was
// generated so far.
func (r *repl) turn(ctx context.Context, query string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	_, _ = fmt.Fprint(r.out, styleAssistant.Render("assistant")+" > ")
	w := NewStreamWriter(r.out, r.mode, r.raw)
	res, err := r.sess.Generate(turnCtx, query, w.Write)
	w.Flush()
	_, _ = fmt.Fprintln(r.out)

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			_, _ = fmt.Fprintln(r.out, styleWarning.Render("[stopped]")+" "+statsLine(r.sess.Metrics()))
			return nil
		}
		return err
	}
	_, _ = fmt.Fprintln(r.out, statsLine(res.Stats))
	return nil
}

func (r *repl) command(ctx context.Context, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/exit", "/quit", "/q":
		return true, nil
	case "/help", "/?":
		r.help()
	case "/reset":
		_ = r.sess.Close()
		r.sess = nil
		sess, err := r.load(ctx)
		if err != nil {
			return true, fmt.Errorf("reload session: %w", err)
		}
		r.sess = sess
		_, _ = fmt.Fprintln(r.out, styleDim.Render("session reset"))
	case "/stats":
		m := r.sess.Metrics()
		m.ContextUsed = r.sess.ContextSizeUsed()
		_, _ = fmt.Fprintln(r.out, statsLine(m))
	case "/system":
		if arg == "" {
			return false, errors.New("usage: /system <text>")
		}
		if err := r.sess.AddChatMessage(arg, inference.RoleSystem); err != nil {
			return false, err
		}
		_, _ = fmt.Fprintln(r.out, styleDim.Render("system prompt added"))
	case "/stop":
		switch arg {
		case "":
		case "none":
			r.sess.SetStopWords(nil)
		default:
			r.sess.SetStopWords(strings.Split(arg, ","))
		}
		_, _ = fmt.Fprintln(r.out, styleDim.Render(fmt.Sprintf("stop words: %q", r.sess.StopWords())))
	case "/history":
		msgs := r.sess.Messages()
		if len(msgs) == 0 {
			_, _ = fmt.Fprintln(r.out, styleDim.Render("(empty)"))
		}
		for _, m := range msgs {
			_, _ = fmt.Fprintf(r.out, "%s: %s\n", roleStyle(m.Role).Render(string(m.Role)), m.Content)
		}
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (r *repl) help() {
	for _, l := range []string{
		"/system <text>   add a system prompt (before the first question)",
		"/stop a,b        set stop words; /stop none clears, /stop shows",
		"/history         print the stored conversation",
		"/stats           last reply's speed and context use",
		"/reset           reload the model and start over",
		"/exit            quit",
	} {
		_, _ = fmt.Fprintln(r.out, styleDim.Render(l))
	}
}

func (r *repl) printErr(err error) {
	_, _ = fmt.Fprintln(r.out, styleError.Render("error: "+err.Error()))
	r.log.Debug("chat error", "error", err)
}
