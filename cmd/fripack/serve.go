package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/logger"
	"github.com/samcharles93/fripack/internal/server"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxBody     int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the patch engine over HTTP",
		Flags: append(prebuiltFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "maximum request body in bytes",
				Value:       server.DefaultMaxBody,
				Destination: &maxBody,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyServeConfig(cmd, cfg, &addr)
			applyPrebuiltConfig(cmd, cfg)

			srv := server.New(server.Config{
				Cache:   newCache(),
				MaxBody: maxBody,
				Log:     log,
			})
			e := echo.New()
			e.Use(server.RequestID())
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			srv.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(s *http.Server) error {
					s.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
