package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/smolchat/internal/api"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rateLimit   float64
		rateBurst   int64
	)
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve one chat session over HTTP",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "requests per second per client (0 = unlimited)",
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst allowed above --rate-limit",
				Value:       10,
				Destination: &rateBurst,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			setString(cmd, "addr", &addr, fileConfig.ServerAddress)
			setPtr(cmd, "rate-limit", &rateLimit, fileConfig.RateLimit)

			sess, err := openSession(ctx, cmd)
			if err != nil {
				return exitErr(err)
			}
			defer func() { _ = sess.Close() }()

			e := echo.New()
			e.Use(middleware.Recover())
			e.Use(api.RequestID())
			e.Use(middleware.RequestLogger())
			e.Use(api.RateLimit(rateLimit, int(rateBurst), "/healthz", "/metrics"))
			api.NewServer(sess, log).Register(e)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("starting server", "address", addr, "model", sess.Info().ModelPath)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
