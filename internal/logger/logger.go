package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process logger and installs it as the slog default.
// format "json" selects the JSON handler, anything else the text handler.
func New(debug bool, format string) *slog.Logger {
	return newLogger(os.Stdout, debug, format)
}

func newLogger(w io.Writer, debug bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
