package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/samcharles93/strata/internal/logger"
)

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("STRATA_LOG_LEVEL"),
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Sources:     cli.EnvVars("STRATA_LOG_FORMAT"),
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogger builds the process logger from flags and the config file and
// stores it in the context handed to subcommands. Without an explicit format
// a redirected stderr gets JSON.
func setupLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := LoadConfig()
	applyLoggingConfig(cmd, cfg)
	if !cmd.IsSet("log-format") && cfg.LogFormat == "" && !term.IsTerminal(int(os.Stderr.Fd())) {
		logFormat = logger.FormatJSON
	}

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.ForFormat(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
