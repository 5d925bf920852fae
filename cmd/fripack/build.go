package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/builder"
	"github.com/samcharles93/fripack/internal/config"
	"github.com/samcharles93/fripack/internal/logger"
)

func buildCmd() *cli.Command {
	var (
		projectPath     string
		outDir          string
		jobs            int64
		keepGoing       bool
		dataOnlySection bool
		strictVersion   bool
	)

	return &cli.Command{
		Name:      "build",
		Usage:     "Build targets from the project configuration",
		ArgsUsage: "[target]",
		Flags: append(prebuiltFlags(),
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "project file (default: nearest fripack.json in this or a parent directory)",
				Destination: &projectPath,
			},
			&cli.StringFlag{
				Name:        "out-dir",
				Aliases:     []string{"o"},
				Usage:       "output directory (default: the project directory)",
				Destination: &outDir,
			},
			&cli.Int64Flag{
				Name:        "jobs",
				Aliases:     []string{"j"},
				Usage:       "targets to build concurrently",
				Value:       1,
				Destination: &jobs,
			},
			&cli.BoolFlag{
				Name:        "keep-going",
				Aliases:     []string{"k"},
				Usage:       "build remaining targets after a failure and report all failures",
				Destination: &keepGoing,
			},
			&cli.BoolFlag{
				Name:        "data-only-section",
				Usage:       "mark the payload section non-executable",
				Destination: &dataOnlySection,
			},
			&cli.BoolFlag{
				Name:        "strict-version",
				Usage:       "only patch sentinels with the current schema version",
				Destination: &strictVersion,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyBuildConfig(cmd, cfg, &jobs)

			if projectPath == "" {
				found, err := config.Find(".")
				if err != nil {
					return err
				}
				projectPath = found
			}
			log.Info("using configuration", "path", projectPath)

			f, err := config.Load(projectPath)
			if err != nil {
				return err
			}
			targets, err := config.Resolve(f)
			if err != nil {
				return err
			}

			b := builder.New(newClient(cmd, cfg, log), log, builder.Options{
				OutDir:          outDir,
				Jobs:            int(jobs),
				KeepGoing:       keepGoing,
				DataOnlySection: dataOnlySection,
				StrictVersion:   strictVersion,
			})

			start := time.Now()
			if name := cmd.Args().First(); name != "" {
				t, ok := targets[name]
				if !ok {
					return fmt.Errorf("%w: %q", config.ErrUnknownTarget, name)
				}
				rep, err := b.BuildTarget(ctx, t)
				if err != nil {
					return err
				}
				log.Info("successfully built target", "target", name, "out", rep.Output, "took", time.Since(start))
				return nil
			}

			reports, err := b.BuildAll(ctx, targets)
			if err != nil {
				return err
			}
			log.Info("all builds completed successfully", "targets", len(reports), "took", time.Since(start))
			return nil
		},
	}
}
