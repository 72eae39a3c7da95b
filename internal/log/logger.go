// SPDX-License-Identifier: MIT

// Package log is the process-wide leveled logger. The printf-style API is
// kept for call sites; records are emitted through log/slog so component
// loggers can carry key/value context (session, segment, url).
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	currentLevel atomic.Uint32
	handlerLevel = new(slog.LevelVar)
	base         atomic.Pointer[slog.Logger]
	exit         = os.Exit
)

func init() {
	SetOutput(os.Stderr)
	SetLevel(LevelInfo)
}

// SetOutput redirects all loggers to w using slog's text format.
func SetOutput(w io.Writer) {
	base.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: handlerLevel})))
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	handlerLevel.Set(level.slogLevel())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Slog exposes the underlying slog logger for libraries that want one.
func Slog() *slog.Logger {
	return base.Load()
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

// Logger is a component logger; every record carries its attributes.
type Logger struct {
	attrs []any
}

var root = &Logger{}

// With returns a logger that adds the given key/value pairs to each record.
func With(args ...any) *Logger {
	return root.With(args...)
}

// With returns a child logger with additional key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	attrs := make([]any, 0, len(l.attrs)+len(args))
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, args...)
	return &Logger{attrs: attrs}
}

func (l *Logger) logf(level LogLevel, format string, v ...any) {
	if !shouldLog(level) {
		return
	}
	base.Load().Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, v...), l.attrs...)
}

func (l *Logger) Debugf(format string, v ...any) { l.logf(LevelDebug, format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.logf(LevelInfo, format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.logf(LevelWarn, format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.logf(LevelError, format, v...) }

// Fatalf always logs, regardless of level, and exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	base.Load().Log(context.Background(), slog.LevelError, fmt.Sprintf(format, v...), append(l.attrs, "fatal", true)...)
	exit(1)
}

// Debugf logs a formatted debug message on the root logger.
func Debugf(format string, v ...any) { root.logf(LevelDebug, format, v...) }

// Infof logs a formatted info message on the root logger.
func Infof(format string, v ...any) { root.logf(LevelInfo, format, v...) }

// Warnf logs a formatted warning on the root logger.
func Warnf(format string, v ...any) { root.logf(LevelWarn, format, v...) }

// Errorf logs a formatted error on the root logger.
func Errorf(format string, v ...any) { root.logf(LevelError, format, v...) }

// Fatalf logs on the root logger and exits the application.
func Fatalf(format string, v ...any) { root.Fatalf(format, v...) }
