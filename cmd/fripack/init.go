package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/config"
	"github.com/samcharles93/fripack/internal/logger"
)

func initCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a new fripack configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "path",
				Aliases:     []string{"p"},
				Usage:       "directory or file to create the configuration in",
				Value:       ".",
				Destination: &path,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			written, err := config.WriteTemplate(path)
			if errors.Is(err, config.ErrExists) {
				log.Warn("configuration file already exists", "path", written)
				return nil
			}
			if err != nil {
				return err
			}
			log.Info("created configuration file", "path", written)
			return nil
		},
	}
}
