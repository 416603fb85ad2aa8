package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New создает корневой логгер бота и делает его логгером по умолчанию.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With("service", "unzipbot")
	slog.SetDefault(logger)
	return logger
}

// Module returns a child logger tagged with the component name.
func Module(parent *slog.Logger, module string) *slog.Logger {
	if parent == nil {
		parent = slog.Default()
	}
	return parent.With("module", module)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
