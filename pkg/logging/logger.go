// Package logging implements the slgreetd logging subsystem.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
)

// Level represents the logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelNotice
	LevelWarn
	LevelError
)

// slog has no NOTICE; it sits between INFO and WARN.
const slogNotice = slog.Level(2)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelNotice:
		return "NOTICE"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelNotice:
		return slogNotice
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name to a Level. Unknown names yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Logger is a leveled printf-style logger on top of slog.
type Logger struct {
	level *slog.LevelVar
	sl    *slog.Logger
}

// New creates a text Logger writing to stderr at the given minimum level.
func New(level Level) *Logger {
	return NewWithWriter(os.Stderr, FormatText, level)
}

// NewWithWriter creates a Logger writing to w in the given format.
func NewWithWriter(w io.Writer, format Format, level Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slog())

	opts := &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if l, ok := a.Value.Any().(slog.Level); ok && l == slogNotice {
					a.Value = slog.StringValue("NOTICE")
				}
			}
			return a
		},
	}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{level: lv, sl: slog.New(h)}
}

// SetLevel changes the minimum logging level.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.sl
}

func (l *Logger) log(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.sl.Enabled(ctx, level) {
		return
	}
	l.sl.Log(ctx, level, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

// Notice logs at notice level.
func (l *Logger) Notice(format string, args ...interface{}) {
	l.log(slogNotice, format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

// ChildStarted logs a supervised process launch.
func (l *Logger) ChildStarted(role string, pid int) {
	l.sl.Info("child started", "role", role, "pid", pid)
}

// ChildExited logs the reaping of a supervised process.
func (l *Logger) ChildExited(role string, pid int, status syscall.WaitStatus) {
	switch {
	case status.Signaled():
		l.sl.Info("child exited", "role", role, "pid", pid, "signal", status.Signal().String())
	default:
		l.sl.Info("child exited", "role", role, "pid", pid, "status", status.ExitStatus())
	}
}
