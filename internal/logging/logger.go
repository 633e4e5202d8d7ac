package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level      string `json:"level"`
	Output     string `json:"output"`      // "stdout", "stderr", or file path
	Component  string `json:"component"`
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// Logger is a structured logger backed by zerolog
type Logger struct {
	zl        zerolog.Logger
	component string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// ParseLevel converts a string to a zerolog level
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout

	if cfg.Output == "stderr" {
		output = os.Stderr
	} else if cfg.Output != "" && cfg.Output != "stdout" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = file
		}
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	l := &Logger{zl: zl, component: cfg.Component}
	if cfg.Component != "" {
		l.zl = l.zl.With().Str("component", cfg.Component).Logger()
	}
	return l
}

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(&Config{
				Level:      "INFO",
				Output:     "stdout",
				Component:  "app",
				JSONFormat: true,
			})
		}
	})
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// WithComponent returns a new logger with the specified component
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
	}
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zl:        l.zl.With().Interface(key, value).Logger(),
		component: l.component,
	}
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		zl:        l.zl.With().Str("error", err.Error()).Logger(),
		component: l.component,
	}
}

// event attaches args to a zerolog event. Args are either key-value pairs
// (even count, string keys) or printf arguments for the message.
func event(e *zerolog.Event, msg string, args ...interface{}) {
	if len(args) == 0 {
		e.Msg(msg)
		return
	}

	if len(args)%2 == 0 {
		if _, ok := args[0].(string); ok {
			for i := 0; i < len(args); i += 2 {
				key, ok := args[i].(string)
				if !ok {
					continue
				}
				if err, isErr := args[i+1].(error); isErr {
					if err != nil {
						e.Str(key, err.Error())
					}
					continue
				}
				e.Interface(key, args[i+1])
			}
			e.Msg(msg)
			return
		}
	}

	e.Msg(fmt.Sprintf(msg, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	event(l.zl.Debug(), msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	event(l.zl.Info(), msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	event(l.zl.Warn(), msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	event(l.zl.Error(), msg, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	event(l.zl.Fatal(), msg, args...)
}

// Package-level functions for the default logger

// Debug logs a debug message using the default logger
func Debug(msg string, args ...interface{}) {
	Default().Debug(msg, args...)
}

// Info logs an info message using the default logger
func Info(msg string, args ...interface{}) {
	Default().Info(msg, args...)
}

// Warn logs a warning message using the default logger
func Warn(msg string, args ...interface{}) {
	Default().Warn(msg, args...)
}

// Error logs an error message using the default logger
func Error(msg string, args ...interface{}) {
	Default().Error(msg, args...)
}

// WithComponent returns a new logger with the specified component
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}

// WithError returns a new logger with an error field
func WithError(err error) *Logger {
	return Default().WithError(err)
}
