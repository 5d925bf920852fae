package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/logger"
)

func cacheCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "cache",
		Usage: "Manage downloaded prebuilt libraries",
		Flags: prebuiltFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			applyPrebuiltConfig(cmd, LoadConfig())
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached libraries",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					entries, err := newCache().List()
					if err != nil {
						return err
					}
					w := cmd.Root().Writer
					for _, e := range entries {
						fmt.Fprintf(w, "%-48s %10s  %s\n", e.Name, formatSize(e.Size), e.Path)
					}
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every cached library",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log := logger.FromContext(ctx)
					n, err := newCache().Clear()
					if err != nil {
						return err
					}
					if n == 0 {
						log.Warn("no cached files to remove")
						return nil
					}
					log.Info("removed cached files", "count", n)
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "Show cache size and contents",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "print as JSON",
						Destination: &asJSON,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st, err := newCache().Stats()
					if err != nil {
						return err
					}
					w := cmd.Root().Writer
					if asJSON {
						b, err := json.MarshalIndent(st, "", "  ")
						if err != nil {
							return err
						}
						_, err = fmt.Fprintln(w, string(b))
						return err
					}
					fmt.Fprintf(w, "cache directory:  %s\n", st.Dir)
					fmt.Fprintf(w, "cached files:     %d\n", st.FileCount)
					fmt.Fprintf(w, "total size:       %s\n", formatSize(st.TotalSize))
					for _, e := range st.Files {
						fmt.Fprintf(w, "  %-46s %10s\n", e.Name, formatSize(e.Size))
					}
					return nil
				},
			},
		},
	}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
