package vecsync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vecsync-specific context.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithPath adds the backing file path to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithObject adds the remote object name to the logger.
func (l *Logger) WithObject(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("object", name),
	}
}

// LogStore logs a store operation.
func (l *Logger) LogStore(ctx context.Context, start, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "store failed",
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "store completed",
			"start", start,
			"dimension", dimension,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogPush logs a push of the store to the remote object.
func (l *Logger) LogPush(ctx context.Context, auto bool, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "push failed",
			"auto", auto,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "push completed",
			"auto", auto,
			"duration", duration,
		)
	}
}

// LogPull logs a pull of the remote object into the store.
func (l *Logger) LogPull(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "pull failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "pull completed",
			"duration", duration,
		)
	}
}

// LogBackup logs a backup operation.
func (l *Logger) LogBackup(ctx context.Context, mode, name string, err error) {
	if err != nil {
		l.WarnContext(ctx, "backup failed",
			"mode", mode,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup completed",
			"mode", mode,
			"name", name,
		)
	}
}

// LogRecovery logs the boot-time restore of a backing file from its ".bak".
func (l *Logger) LogRecovery(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backing file recovery failed",
			"path", path,
			"error", err,
		)
	} else {
		l.WarnContext(ctx, "backing file restored from .bak, a pull is needed",
			"path", path,
		)
	}
}
