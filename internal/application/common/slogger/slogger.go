// Package slogger provides the process-wide structured logger. All
// application code logs through this package so handlers and output format
// stay configurable in one place.
package slogger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Fields is the key-value payload attached to a log record.
type Fields = map[string]interface{}

// Config controls handler construction.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

var (
	defaultLogger *slog.Logger //nolint:gochecknoglobals // singleton logging infrastructure
	loggerOnce    sync.Once    //nolint:gochecknoglobals // thread-safe singleton initialization
	loggerMu      sync.RWMutex //nolint:gochecknoglobals // guards replacement via Configure
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(Config{Level: "INFO", Format: "json", Output: os.Stdout})
		}
	})
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// Configure replaces the process logger. Call once at startup, before any
// goroutines log.
func Configure(cfg Config) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = newLogger(cfg)
}

// SetGlobalLogger allows injecting a custom logger (useful for testing).
func SetGlobalLogger(logger *slog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

func newLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func attrs(fields Fields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// Context-aware logging functions (preferred)

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	getLogger().DebugContext(ctx, msg, attrs(fields)...)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	getLogger().InfoContext(ctx, msg, attrs(fields)...)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	getLogger().WarnContext(ctx, msg, attrs(fields)...)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	getLogger().ErrorContext(ctx, msg, attrs(fields)...)
}

// ErrorWithError logs an error message with an error object and context.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	all := make(Fields, len(fields)+1)
	for k, v := range fields {
		all[k] = v
	}
	if err != nil {
		all["error"] = err.Error()
	}
	getLogger().ErrorContext(ctx, msg, attrs(all)...)
}

// No-context fallback functions

// InfoNoCtx logs an info message without context (uses background context).
func InfoNoCtx(msg string, fields Fields) {
	Info(context.Background(), msg, fields)
}

// WarnNoCtx logs a warning message without context (uses background context).
func WarnNoCtx(msg string, fields Fields) {
	Warn(context.Background(), msg, fields)
}

// ErrorNoCtx logs an error message without context (uses background context).
func ErrorNoCtx(msg string, fields Fields) {
	Error(context.Background(), msg, fields)
}

// ErrorWithErrorNoCtx logs an error message with an error object without context.
func ErrorWithErrorNoCtx(err error, msg string, fields Fields) {
	ErrorWithError(context.Background(), err, msg, fields)
}

// Helper functions for creating Fields

// Field creates a single-field Fields map.
func Field(key string, value interface{}) Fields {
	return Fields{key: value}
}

// Fields2 creates a Fields map with two key-value pairs.
func Fields2(k1 string, v1 interface{}, k2 string, v2 interface{}) Fields {
	return Fields{k1: v1, k2: v2}
}

// Fields3 creates a Fields map with three key-value pairs.
func Fields3(k1 string, v1 interface{}, k2 string, v2 interface{}, k3 string, v3 interface{}) Fields {
	return Fields{k1: v1, k2: v2, k3: v3}
}

// WithComponent returns a logger scoped to a component name.
func WithComponent(component string) *slog.Logger {
	return getLogger().With("component", component)
}
