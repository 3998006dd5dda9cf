// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"pcstyle-auth/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup applies the level and output format and installs the result as the
// global logger used through github.com/rs/zerolog/log.
func Setup(cfg config.LogConfig) zerolog.Logger {
	return setup(cfg, os.Stderr)
}

func setup(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", "pcstyle-auth").Logger()
	log.Logger = logger
	return logger
}
