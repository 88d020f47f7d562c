package annbind

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with annbind-specific helpers so operations
// log consistent field names.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithKey adds a key field to the logger (useful for tagging operations).
func (l *Logger) WithKey(key uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithDimensions adds a dimensions field to the logger.
func (l *Logger) WithDimensions(dims int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimensions", dims),
	}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(key uint64, dimensions int, err error) {
	if err != nil {
		l.Error("add failed",
			"key", key,
			"dimensions", dimensions,
			"error", err,
		)
	} else {
		l.Debug("add completed",
			"key", key,
			"dimensions", dimensions,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(k, found int, filtered bool, err error) {
	if err != nil {
		l.Error("search failed",
			"k", k,
			"filtered", filtered,
			"error", err,
		)
	} else {
		l.Debug("search completed",
			"k", k,
			"filtered", filtered,
			"found", found,
		)
	}
}

// LogExactSearch logs a brute-force batch search.
func (l *Logger) LogExactSearch(queries, k int, err error) {
	if err != nil {
		l.Error("exact search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
	} else {
		l.Debug("exact search completed",
			"queries", queries,
			"k", k,
		)
	}
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(key uint64, removed int, err error) {
	if err != nil {
		l.Error("remove failed",
			"key", key,
			"error", err,
		)
	} else {
		l.Debug("remove completed",
			"key", key,
			"removed", removed,
		)
	}
}

// LogPersist logs a snapshot save, load or view.
func (l *Logger) LogPersist(op, target string, err error) {
	if err != nil {
		l.Error("persistence failed",
			"op", op,
			"target", target,
			"error", err,
		)
	} else {
		l.Info("persistence completed",
			"op", op,
			"target", target,
		)
	}
}

// LogClose logs index teardown.
func (l *Logger) LogClose(err error) {
	if err != nil {
		l.Error("close failed", "error", err)
	} else {
		l.Debug("close completed")
	}
}
