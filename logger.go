package hnswfield

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with hnswfield-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithField adds a field name to the logger.
func (l *Logger) WithField(field string) *Logger {
	return &Logger{
		Logger: l.Logger.With("field", field),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, field string, id uint32, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"field", field,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"field", field,
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogBatchInsert logs a batch of text inserts.
func (l *Logger) LogBatchInsert(ctx context.Context, field string, count int, err error) {
	if err != nil {
		l.WarnContext(ctx, "batch insert failed",
			"field", field,
			"total", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch insert completed",
			"field", field,
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, field string, k, resultsFound int, status string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"field", field,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"field", field,
			"k", k,
			"results", resultsFound,
			"status", status,
		)
	}
}

// LogSave logs a save of all fields.
func (l *Logger) LogSave(ctx context.Context, manifestID uint64, fields int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"manifest", manifestID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "save completed",
			"manifest", manifestID,
			"fields", fields,
		)
	}
}

// LogLoad logs the restore of a saved database.
func (l *Logger) LogLoad(ctx context.Context, manifestID uint64, fields int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"manifest", manifestID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"manifest", manifestID,
			"fields", fields,
		)
	}
}
