// Structured logging for gcodeview
//
// Provides a component logger on top of zap with support for:
// - Log levels (DEBUG, INFO, WARN, ERROR)
// - Structured fields (key-value pairs)
// - Console and JSON encodings
// - Per-component loggers with prefixes
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

func (f Fields) zapFields() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Config holds logger construction options.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // "console" or "json"
	OutputPath string // empty means stderr
	NoColor    bool
}

// Logger is a named component logger.
type Logger struct {
	prefix string
	level  zap.AtomicLevel
	z      *zap.Logger
}

// Entry carries fields for a single log call.
type Entry struct {
	logger *Logger
	fields Fields
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// New creates a console logger on stderr with the given prefix.
func New(prefix string) *Logger {
	l, err := NewWithConfig(prefix, Config{Level: "info", Format: "console", NoColor: os.Getenv("NO_COLOR") != ""})
	if err != nil {
		return FromZap(zap.NewNop(), prefix)
	}
	return l
}

// NewWithConfig builds a logger from explicit settings.
func NewWithConfig(prefix string, cfg Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level).zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")

	zcfg := zap.Config{
		Level:            level,
		Encoding:         "console",
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if strings.EqualFold(cfg.Format, "json") {
		zcfg.Encoding = "json"
		zcfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	} else if !cfg.NoColor {
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if cfg.OutputPath != "" {
		zcfg.OutputPaths = []string{cfg.OutputPath}
	}

	z, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("log: build logger: %w", err)
	}
	return &Logger{prefix: prefix, level: level, z: z.Named(prefix)}, nil
}

// FromZap wraps an existing zap logger. Used by tests with an observer core.
func FromZap(z *zap.Logger, prefix string) *Logger {
	l := z
	if prefix != "" {
		l = z.Named(prefix)
	}
	return &Logger{prefix: prefix, level: zap.NewAtomicLevelAt(zapcore.DebugLevel), z: l}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop(), "")
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Prefix returns the component name.
func (l *Logger) Prefix() string {
	return l.prefix
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err)
}

// WithPrefix returns a logger for a sub-component sharing the same core.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, level: l.level, z: l.z.Named(prefix)}
}

func (l *Logger) logf(level zapcore.Level, msg string, args []interface{}) {
	if ce := l.z.Check(level, ""); ce != nil {
		if len(args) > 0 {
			msg = fmt.Sprintf(msg, args...)
		}
		ce.Message = msg
		ce.Write()
	}
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.logf(zapcore.DebugLevel, msg, args)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.logf(zapcore.InfoLevel, msg, args)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.logf(zapcore.WarnLevel, msg, args)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.logf(zapcore.ErrorLevel, msg, args)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	newFields := make(Fields, len(e.fields)+1)
	for k, v := range e.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Entry{logger: e.logger, fields: newFields}
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	newFields := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &Entry{logger: e.logger, fields: newFields}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", err)
}

func (e *Entry) write(level zapcore.Level, msg string) {
	if ce := e.logger.z.Check(level, msg); ce != nil {
		ce.Write(e.fields.zapFields()...)
	}
}

// Debug logs at DEBUG level with fields
func (e *Entry) Debug(msg string) { e.write(zapcore.DebugLevel, msg) }

// Info logs at INFO level with fields
func (e *Entry) Info(msg string) { e.write(zapcore.InfoLevel, msg) }

// Warn logs at WARN level with fields
func (e *Entry) Warn(msg string) { e.write(zapcore.WarnLevel, msg) }

// Error logs at ERROR level with fields
func (e *Entry) Error(msg string) { e.write(zapcore.ErrorLevel, msg) }

// Warnf logs formatted message at WARN level with fields
func (e *Entry) Warnf(format string, args ...interface{}) {
	e.write(zapcore.WarnLevel, fmt.Sprintf(format, args...))
}

// Infof logs formatted message at INFO level with fields
func (e *Entry) Infof(format string, args ...interface{}) {
	e.write(zapcore.InfoLevel, fmt.Sprintf(format, args...))
}

// Package-level functions using default logger

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetLogger returns a component logger derived from the default logger.
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("gcodeview")
		ConfigureFromEnv(defaultLogger)
	}
	if prefix == "" {
		return defaultLogger
	}
	return defaultLogger.WithPrefix(prefix)
}

// ConfigFromEnv reads logger settings from the environment.
// Environment variables:
//   - GCODEVIEW_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - GCODEVIEW_LOG_FORMAT: console, json
//   - NO_COLOR: any non-empty value disables colors
func ConfigFromEnv(base Config) Config {
	if v := os.Getenv("GCODEVIEW_LOG_LEVEL"); v != "" {
		base.Level = v
	}
	if v := os.Getenv("GCODEVIEW_LOG_FORMAT"); v != "" {
		base.Format = strings.ToLower(v)
	}
	if os.Getenv("NO_COLOR") != "" {
		base.NoColor = true
	}
	return base
}

// ConfigureFromEnv applies GCODEVIEW_LOG_LEVEL to an existing logger.
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("GCODEVIEW_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
}
