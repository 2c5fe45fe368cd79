// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel orders log output from least to most verbose.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

var logLevelNames = [...]string{
	LogLevelError: "ERROR",
	LogLevelWarn:  "WARN",
	LogLevelInfo:  "INFO",
	LogLevelDebug: "DEBUG",
	LogLevelTrace: "TRACE",
}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return "UNKNOWN"
	}
	return logLevelNames[l]
}

// ParseLogLevel maps a level name (case-insensitive) to a LogLevel.
func ParseLogLevel(s string) (LogLevel, bool) {
	for l := LogLevelError; l <= LogLevelTrace; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, true
		}
	}
	return LogLevelInfo, false
}

// Logger is the transport's printf-style leveled logger, backed by zap.
// Children made with Named and With share their parent's level, so one
// SetLevel adjusts a node together with its sessions. Trace output is
// written at zap's debug level with a "trace" field.
type Logger struct {
	sugar *zap.SugaredLogger
	level *atomic.Int32
}

func newLogger(sugar *zap.SugaredLogger, level LogLevel) *Logger {
	l := &Logger{sugar: sugar, level: new(atomic.Int32)}
	l.level.Store(int32(level))
	return l
}

// NewLogger returns a console logger on stderr.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stderr, level)
}

// NewLoggerWithWriter returns a console logger on w.
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), zapcore.DebugLevel)
	return newLogger(zap.New(core).Named("livelink").Sugar(), level)
}

// NewLoggerFromZap logs through z, for programs that already configure zap.
// z must be enabled at debug level for Debug and Trace output to appear.
func NewLoggerFromZap(z *zap.Logger, level LogLevel) *Logger {
	return newLogger(z.Named("livelink").Sugar(), level)
}

// Named returns a child logger with name appended to the logger name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), level: l.level}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(args...), level: l.level}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *Logger) GetLevel() LogLevel {
	return LogLevel(l.level.Load())
}

// IsEnabled reports whether messages at level are written.
func (l *Logger) IsEnabled(level LogLevel) bool {
	return level <= l.GetLevel()
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelError) {
		l.sugar.Errorf(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelWarn) {
		l.sugar.Warnf(format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelInfo) {
		l.sugar.Infof(format, args...)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelDebug) {
		l.sugar.Debugf(format, args...)
	}
}

// Trace is for per-packet diagnostics.
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.IsEnabled(LogLevelTrace) {
		l.sugar.With("trace", true).Debugf(format, args...)
	}
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

var (
	// DevNullLogger discards everything.
	DevNullLogger = newLogger(zap.NewNop().Sugar(), LogLevelError)

	// DefaultLogger writes info and above to stderr.
	DefaultLogger = NewLogger(LogLevelInfo)
)
