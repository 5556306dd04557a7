// Package observability provides structured logging, request ID
// propagation, and OpenTelemetry span helpers for the caching layer.
package observability

import (
	"context"
	"io"
	"log/slog"
)

// Logger wraps slog.Logger with request ID support.
type Logger struct {
	*slog.Logger
}

// LoggerConfig contains configuration for the logger.
type LoggerConfig struct {
	Level      slog.Level
	Output     io.Writer
	AddSource  bool
	JSONFormat bool
}

// NewLogger creates a logger from config.
func NewLogger(cfg LoggerConfig) *Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Wrap adapts an existing slog.Logger.
func Wrap(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{Logger: l}
}

// WithRequestID returns a logger carrying the request ID from context.
func (l *Logger) WithRequestID(ctx context.Context) *Logger {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		return l
	}
	return &Logger{Logger: l.Logger.With("request_id", requestID)}
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.Logger
}
