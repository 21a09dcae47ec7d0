package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger and remembers the component it was built for.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	Output    io.Writer
	Handler   slog.Handler
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		out := config.Output
		if out == nil {
			out = os.Stdout
		}
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: config.Level})
	}

	component := config.Component
	if component == "" {
		component = ComponentApp
	}

	base := slog.New(handler)
	return &Logger{
		Logger:    base.With(FieldComponent, component),
		base:      base,
		component: component,
	}
}

// ParseLevel maps debug, info, warn and error onto slog levels. An empty
// string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		base:      l.Base().With(args...),
		component: l.component,
	}
}

// WithComponent returns a new logger with a specific component name. The
// component replaces the current one instead of being appended.
func (l *Logger) WithComponent(component string) *Logger {
	base := l.Base()
	return &Logger{
		Logger:    base.With(FieldComponent, component),
		base:      base,
		component: component,
	}
}

// Base returns the underlying logger without a component attribute, for
// packages that attach their own.
func (l *Logger) Base() *slog.Logger {
	if l.base == nil {
		return l.Logger
	}
	return l.base
}

// LogOutcome logs the result of a ledger operation at info on success and at
// a level matching the error class otherwise.
func (l *Logger) LogOutcome(ctx context.Context, msg string, fields LogFields, err error) {
	fields = fields.WithError(err)
	level := slog.LevelInfo
	if err != nil {
		level = levelForErrorType(fields[FieldErrorType])
	}
	l.Logger.Log(ctx, level, msg, fields.ToSlice()...)
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

func levelForErrorType(errorType any) slog.Level {
	switch errorType {
	case ErrorTypeValidation, ErrorTypeNotFound:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
