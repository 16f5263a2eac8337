package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger and stamps every record with a component.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
}

func newLogger(base *slog.Logger, component string) *Logger {
	return &Logger{Logger: base.With(FieldComponent, component), base: base, component: component}
}

type Config struct {
	Level     slog.Level
	Component string
	Format    string // "text" (default) or "json"
	Output    io.Writer
	Handler   slog.Handler
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
		Format:    "text",
		Output:    os.Stdout,
	}
}

// New builds a logger. An explicit Handler wins over Format and Output.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		opts := &slog.HandlerOptions{Level: config.Level}
		if strings.EqualFold(config.Format, "json") {
			handler = slog.NewJSONHandler(out, opts)
		} else {
			handler = slog.NewTextHandler(out, opts)
		}
	}
	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return newLogger(slog.New(handler), component)
}

// FromSlog wraps an existing slog logger under a component name.
func FromSlog(l *slog.Logger, component string) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return newLogger(l, component)
}

func (l *Logger) With(args ...any) *Logger {
	return newLogger(l.base.With(args...), l.component)
}

// WithComponent returns a logger for a sub-component. The component attribute
// is replaced rather than repeated.
func (l *Logger) WithComponent(component string) *Logger {
	return newLogger(l.base, component)
}

// WithFields attaches a LogFields set.
func (l *Logger) WithFields(f LogFields) *Logger {
	return l.With(f.ToSlice()...)
}

// LogError logs err with its component, operation and error type.
func (l *Logger) LogError(ctx context.Context, msg string, err error, operation, errorType string) {
	l.ErrorContext(ctx, msg,
		FieldError, errString(err),
		FieldOperation, operation,
		"error_type", errorType)
}

func (l *Logger) Component() string {
	return l.component
}

func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
