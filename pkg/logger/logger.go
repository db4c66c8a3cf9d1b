// Package logger provides structured logging with invocation context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	invocationIDKey contextKey = "invocation_id"
	integrationKey  contextKey = "integration"
	commandKey      contextKey = "command"
)

// Config holds the logger configuration.
type Config struct {
	Level     string // "debug", "info", "warn", "error"
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns a default logger configuration. Logs go to stderr
// so stdout stays reserved for command results.
func DefaultConfig() *Config {
	return &Config{
		Level:     "info",
		Format:    "json",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Logger wraps slog.Logger with additional context-aware methods.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the given configuration.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with the invocation attributes from ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := []any{}

	if id := ctx.Value(invocationIDKey); id != nil {
		attrs = append(attrs, "invocation_id", id)
	}
	if name := ctx.Value(integrationKey); name != nil {
		attrs = append(attrs, "integration", name)
	}
	if cmd := ctx.Value(commandKey); cmd != nil {
		attrs = append(attrs, "command", cmd)
	}

	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(attrs...)}
}

// With returns a new Logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithGroup returns a new Logger with a group prefix.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{Logger: l.Logger.WithGroup(name)}
}

// SetDefault sets this logger as the default slog logger.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// NewInvocation returns a context tagged with a fresh invocation id and the
// integration and command being run.
func NewInvocation(ctx context.Context, integration, command string) context.Context {
	ctx = context.WithValue(ctx, invocationIDKey, uuid.NewString())
	ctx = context.WithValue(ctx, integrationKey, integration)
	return context.WithValue(ctx, commandKey, command)
}

// InvocationIDFromContext extracts the invocation id from context.
func InvocationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(invocationIDKey).(string); ok {
		return id
	}
	return ""
}

// CommandFromContext extracts the command name from context.
func CommandFromContext(ctx context.Context) string {
	if cmd, ok := ctx.Value(commandKey).(string); ok {
		return cmd
	}
	return ""
}

var secretMarkers = []string{"password", "secret", "token", "key", "credentials"}

// Redact returns a copy of params with secret-looking values masked.
func Redact(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		lower := strings.ToLower(k)
		masked := false
		for _, m := range secretMarkers {
			if strings.Contains(lower, m) {
				masked = true
				break
			}
		}
		if masked {
			out[k] = "******"
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
