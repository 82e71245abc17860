// Package logging provides the structured Logger contract used throughout
// dispatchcore, and a log/slog-backed default implementation.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logging contract. Bind returns a new Logger
// with the given key/value pairs attached to every subsequent call,
// mirroring the chaining idiom of structured loggers like zerolog's
// With() — fields accumulate without mutating the receiver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Bind(args ...any) Logger
}

// slogLogger adapts *slog.Logger to the Logger contract.
type slogLogger struct {
	l *slog.Logger
}

// New returns the default Logger, writing leveled JSON lines to stderr.
func New(level slog.Level) Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &slogLogger{l: slog.New(h)}
}

// NewText returns a Logger writing human-readable text lines, useful for
// local development (mirrors the teacher's "pretty" logging toggle).
func NewText(level slog.Level) Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) Bind(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// Noop discards every log line; useful for tests that do not care about
// log output but still need to satisfy the Logger contract.
func Noop() Logger { return &noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (n noopLogger) Bind(...any) Logger { return n }

type ctxKey struct{}

// Into attaches a Logger to a context so deep call chains (predicate
// evaluation, handler execution, listener I/O loops) can retrieve the
// request-scoped bound logger without threading it through every
// function signature.
func Into(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From retrieves the Logger bound to ctx, or Noop() if none was attached.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return Noop()
}
