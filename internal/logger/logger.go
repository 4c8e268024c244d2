// Package logger provides structured logging for the relay.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// L is the global default logger; initialize with Init.
var L = slog.Default()

// Init initializes the global logger with the given level and format (e.g. "debug", "json").
func Init(level, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	L = slog.New(handler)
	slog.SetDefault(L)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs at debug level with the global logger (slog.Attr or key-value pairs).
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs at info level with the global logger.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs at warn level with the global logger.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs at error level with the global logger.
func Error(msg string, args ...any) { L.Error(msg, args...) }
