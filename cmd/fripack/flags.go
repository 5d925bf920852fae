package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/logger"
	"github.com/samcharles93/fripack/internal/prebuilt"
)

var (
	logLevel  string
	logFormat string
	debug     bool

	cacheDir    string
	releaseRepo string
	apiBaseURL  string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func prebuiltFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "directory for downloaded prebuilt libraries",
			Sources:     cli.EnvVars(prebuilt.EnvCacheDir),
			Destination: &cacheDir,
		},
		&cli.StringFlag{
			Name:        "release-repo",
			Usage:       "GitHub repository publishing the prebuilt injector",
			Value:       prebuilt.DefaultRepo,
			Destination: &releaseRepo,
		},
		&cli.StringFlag{
			Name:        "api-base-url",
			Usage:       "GitHub API base URL",
			Value:       prebuilt.DefaultBaseURL,
			Destination: &apiBaseURL,
		},
	}
}

// applyPrebuiltConfig fills prebuilt settings from the user config when the
// flags were not given.
func applyPrebuiltConfig(c *cli.Command, cfg Config) {
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.ReleaseRepo != "" && !c.IsSet("release-repo") {
		releaseRepo = cfg.ReleaseRepo
	}
	if cfg.APIBaseURL != "" && !c.IsSet("api-base-url") {
		apiBaseURL = cfg.APIBaseURL
	}
}

func newCache() *prebuilt.Cache {
	dir := cacheDir
	if dir == "" {
		dir = prebuilt.DefaultDir()
	}
	return &prebuilt.Cache{Dir: dir}
}

func newClient(c *cli.Command, cfg Config, log logger.Logger) *prebuilt.Client {
	applyPrebuiltConfig(c, cfg)
	client := prebuilt.NewClient(newCache(), log)
	client.Repo = releaseRepo
	client.BaseURL = apiBaseURL
	client.Token = os.Getenv("GITHUB_TOKEN")
	return client
}
