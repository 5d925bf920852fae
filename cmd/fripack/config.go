package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the user configuration file (~/.config/fripack/config.yaml).
// It supplies defaults for flags that were not given on the command line.
type Config struct {
	CacheDir    string `yaml:"cache_dir"`
	ReleaseRepo string `yaml:"release_repo"`
	APIBaseURL  string `yaml:"api_base_url"`
	Jobs        *int64 `yaml:"jobs"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

// envConfigPath points at an alternative user config file.
const envConfigPath = "FRIPACK_CONFIG"

func configPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fripack", "config.yaml")
}

// LoadConfig reads the user config file. Returns a zero Config if the file
// doesn't exist or cannot be parsed.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyBuildConfig(c *cli.Command, cfg Config, jobs *int64) {
	if cfg.Jobs != nil && !c.IsSet("jobs") {
		*jobs = *cfg.Jobs
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
