package main

import (
	"io"
	"log/slog"
	"strings"
)

const (
	LOG_LEVEL_ERROR   = "ERROR"
	LOG_LEVEL_WARNING = "WARNING"
	LOG_LEVEL_INFO    = "INFO"
	LOG_LEVEL_DEBUG   = "DEBUG"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToUpper(logLevel) {
	case LOG_LEVEL_ERROR:
		return slog.LevelError
	case LOG_LEVEL_WARNING:
		return slog.LevelWarn
	case LOG_LEVEL_INFO:
		return slog.LevelInfo
	case LOG_LEVEL_DEBUG:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// initLogger installs a text logger writing to w as the default logger.
// Logs go to stderr so stdout only carries command results.
func initLogger(logLevel string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}
	logger := slog.New(slog.NewTextHandler(w, opts))

	slog.SetDefault(logger)
	return logger
}
