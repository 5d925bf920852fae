package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/logger"
)

func releasesCmd() *cli.Command {
	return &cli.Command{
		Name:  "releases",
		Usage: "List frida versions with a published prebuilt injector",
		Flags: prebuiltFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			versions, err := newClient(cmd, LoadConfig(), log).Releases(ctx)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				log.Warn("no releases found", "repo", releaseRepo)
				return nil
			}
			w := cmd.Root().Writer
			for _, v := range versions {
				fmt.Fprintln(w, v)
			}
			return nil
		},
	}
}
