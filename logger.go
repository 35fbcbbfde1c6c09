package pagevec

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pagevec-specific field helpers so the
// lifecycle components log scopes and documents under consistent names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler. If handler is nil,
// uses a text handler to stderr at info level.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)})),
	}
}

// WithScope adds the merge or search scope to the logger.
func (l *Logger) WithScope(scope string) *Logger {
	return &Logger{
		Logger: l.Logger.With("scope", scope),
	}
}

// WithDocument adds the document id to the logger.
func (l *Logger) WithDocument(documentID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("document_id", documentID),
	}
}

// WithSession adds the session id to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session_id", sessionID),
	}
}
