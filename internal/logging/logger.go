package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger every process uses.
func NewLogger(level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

func NewLoggerTo(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger { return slog.New(NewNoOpHandler()) }

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

type NoOpHandler struct{}

func NewNoOpHandler() *NoOpHandler { return &NoOpHandler{} }

func (h *NoOpHandler) Enabled(context.Context, slog.Level) bool { return false }

func (h *NoOpHandler) Handle(context.Context, slog.Record) error { return nil }

func (h *NoOpHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *NoOpHandler) WithGroup(string) slog.Handler { return h }
