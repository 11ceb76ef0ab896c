// Package logger provides leveled structured logging with an optional audit sink.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes leveled messages to the console and an optional log file. Warnings and above,
// and explicit Audit events, are also written to the audit file.
type Logger struct {
	log   zerolog.Logger
	audit *zerolog.Logger
	files []*os.File
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	console io.Writer
	json    bool
}

// WithConsole replaces the console writer (stderr by default).
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithJSON writes the console stream as JSON lines instead of human-readable text.
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// New creates a logger. level is one of debug, info, warn, error, fatal; anything else means
// info. Empty file paths disable the corresponding sink.
func New(level, logFile, auditFile string, opts ...Option) (*Logger, error) {
	o := options{console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	l := &Logger{}
	var console io.Writer = o.console
	if !o.json {
		console = zerolog.ConsoleWriter{Out: o.console, TimeFormat: time.DateTime}
	}
	writers := []io.Writer{console}

	if logFile != "" {
		f, err := openAppend(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.files = append(l.files, f)
		writers = append(writers, f)
	}
	if auditFile != "" {
		f, err := openAppend(auditFile)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		l.files = append(l.files, f)
		a := zerolog.New(f).With().Timestamp().Str("stream", "audit").Logger()
		l.audit = &a
	}

	l.log = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

// Close closes the log files.
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Zerolog exposes the underlying logger for components that log structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.log
}

func (l *Logger) write(level zerolog.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.log.WithLevel(level).Msg(msg)
	if l.audit != nil && level >= zerolog.WarnLevel {
		l.audit.WithLevel(level).Msg(msg)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(zerolog.DebugLevel, format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(zerolog.InfoLevel, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(zerolog.WarnLevel, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zerolog.ErrorLevel, format, args...)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.write(zerolog.FatalLevel, format, args...)
	l.Close()
	os.Exit(1)
}

// Audit records an audit event with its details.
func (l *Logger) Audit(event string, details map[string]interface{}) {
	if l.audit == nil {
		return
	}
	l.audit.Log().Str("event", event).Fields(details).Msg("audit")
}
