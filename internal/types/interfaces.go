package types

import (
	"log/slog"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used by the notification
// pipeline. It is a narrow view over *slog.Logger so delivery components can
// be tested with mock loggers.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// slogAdapter wraps *slog.Logger to satisfy Logger.
type slogAdapter struct {
	l *slog.Logger
}

// NewLogger adapts a *slog.Logger to the Logger interface.
// A nil argument falls back to slog.Default().
func NewLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogAdapter{l: l}
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func (a *slogAdapter) With(args ...any) Logger {
	return &slogAdapter{l: a.l.With(args...)}
}
