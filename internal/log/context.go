package log

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// IntoContext stores logger in ctx.
func IntoContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the request logger, or one built on slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return FromSlog(slog.Default(), ComponentApp)
}
