// Package logger provides the slog-backed Logger used by fripack's commands,
// builder, prebuilt fetcher and HTTP service.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the logging interface passed through fripack.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger is a Logger backed by *slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// New wraps handler in a Logger.
func New(handler slog.Handler) Logger {
	return &SlogLogger{
		logger: slog.New(handler),
	}
}

// Default returns a pretty Logger on stderr at info level.
func Default() Logger {
	return Pretty(os.Stderr, slog.LevelInfo)
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// JSON returns a Logger writing one JSON object per record.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))
}

// Text returns a Logger writing logfmt-style key=value lines.
func Text(w io.Writer, level slog.Level) Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Pretty returns a Logger with glyph-prefixed, coloured lines for terminals.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Formats accepted by ForFormat.
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
	FormatText   = "text"
)

// ForFormat builds a Logger for one of the named formats.
func ForFormat(format string, w io.Writer, level slog.Level) (Logger, error) {
	switch strings.ToLower(format) {
	case "", FormatPretty:
		return Pretty(w, level), nil
	case FormatJSON:
		return JSON(w, level), nil
	case FormatText:
		return Text(w, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want pretty, json or text)", format)
	}
}

// FromContext retrieves a Logger from the context.
// If no logger is found, returns Default().
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return Default()
}

// WithContext adds the logger to the context.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

type loggerKey struct{}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{
		logger: l.logger.With(args...),
	}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{
		logger: l.logger.WithGroup(name),
	}
}

// ParseLevel converts a string level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
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
