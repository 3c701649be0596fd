package logging

import (
	"context"
	"log/slog"
)

// DiscardHandler implements slog.Handler and drops every record.
type DiscardHandler struct{}

func (h DiscardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h DiscardHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h DiscardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h DiscardHandler) WithGroup(name string) slog.Handler {
	return h
}

var discard = slog.New(DiscardHandler{})

// Discard returns a logger that writes nowhere.
func Discard() *slog.Logger {
	return discard
}

// OrDiscard returns logger, or the discarding logger when logger is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return discard
	}
	return logger
}
