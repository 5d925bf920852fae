package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/logger"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "fripack",
		Usage:  "Build Frida-based packages by embedding scripts into prebuilt injector libraries",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			initCmd(),
			buildCmd(),
			inspectCmd(),
			cacheCmd(),
			releasesCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

// setupLogging builds the logger from the logging flags and the user config
// and stores it in the context for every subcommand.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	applyLoggingConfig(cmd, LoadConfig())

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	w := cmd.Root().ErrWriter
	if w == nil {
		w = os.Stderr
	}
	log, err := logger.ForFormat(logFormat, w, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
