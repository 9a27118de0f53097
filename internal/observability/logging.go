// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// CorrelationID keys the request-scoped id that ties together the log lines
// of one generation run.
const CorrelationID LogContextKey = "correlation_id"

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// OpLogger provides structured logging for generation operations.
type OpLogger struct {
	operation string
	logger    *Logger
}

// NewOpLogger creates a new OpLogger for the given generation operation.
func NewOpLogger(operation string) *OpLogger {
	return &OpLogger{operation: operation, logger: GlobalLogger}
}

// Start logs the beginning of an operation run.
func (l *OpLogger) Start(ctx context.Context, fields map[string]any) {
	attrs := []any{
		slog.String("operation", l.operation),
		slog.String("phase", "start"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "generation started", attrs...)
}

// Done logs the successful completion of an operation run.
func (l *OpLogger) Done(ctx context.Context, fields map[string]any) {
	attrs := []any{
		slog.String("operation", l.operation),
		slog.String("phase", "done"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "generation completed", attrs...)
}

// Fail logs a failed operation run.
func (l *OpLogger) Fail(ctx context.Context, err error, fields map[string]any) {
	attrs := []any{
		slog.String("operation", l.operation),
		slog.String("phase", "fail"),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
		slog.String("error", err.Error()),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.ErrorContext(ctx, "generation failed", attrs...)
}
