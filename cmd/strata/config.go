package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the strata configuration file
// (~/.config/strata/config.yaml, or config.toml). Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`

	// Server
	ServerAddress  string `yaml:"server_address" toml:"server_address"`
	MaxUploadBytes *int64 `yaml:"max_upload_bytes" toml:"max_upload_bytes"`

	// Export
	ExportFormat string `yaml:"export_format" toml:"export_format"`
	Digests      *bool  `yaml:"digests" toml:"digests"`
}

// configPaths lists candidate files in lookup order. STRATA_CONFIG replaces
// the defaults.
func configPaths() []string {
	if p := os.Getenv("STRATA_CONFIG"); p != "" {
		return []string{p}
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(dir, "strata", "config.yaml"),
		filepath.Join(dir, "strata", "config.toml"),
	}
}

// LoadConfig reads the first config file that exists. Returns a zero Config
// if none exists or it is malformed.
func LoadConfig() Config {
	for _, path := range configPaths() {
		cfg, err := readConfig(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}
		}
		return cfg
	}
	return Config{}
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if filepath.Ext(path) == ".toml" {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyLoggingConfig applies config file defaults to the logging flags when
// they were not explicitly set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxUpload *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxUploadBytes != nil && !c.IsSet("max-upload") {
		*maxUpload = *cfg.MaxUploadBytes
	}
}

// applyGraphConfig applies config file defaults to graph command variables.
func applyGraphConfig(c *cli.Command, cfg Config, format *string, digests *bool) {
	if cfg.ExportFormat != "" && !c.IsSet("format") {
		*format = cfg.ExportFormat
	}
	if cfg.Digests != nil && !c.IsSet("digests") {
		*digests = *cfg.Digests
	}
}
