// Package logger is an infrastructure component providing structured
// logging via zerolog, configured with a level name from config.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup builds a zerolog.Logger writing JSON to stdout at the named
// level, and sets it as zerolog's global logger.
func Setup(level string) zerolog.Logger {
	l := parseLevel(level)
	zerolog.SetGlobalLevel(l)
	logger := zerolog.New(os.Stdout).Level(l).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger builds a default logger at info level.
func Logger() zerolog.Logger {
	return Setup("info")
}
