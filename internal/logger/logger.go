package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments that pick log format
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New returns JSON logger for production and text logger otherwise
func New(environment string, level string) (Logger, error) {
	if strings.EqualFold(environment, EnvProduction) {
		return NewJSONLogger(level)
	}
	return NewTextLogger(level)
}

// NewTextLogger creates a new text logger with the specified level
func NewTextLogger(level string) (Logger, error) {
	opts, err := handlerOptions(level)
	if err != nil {
		return nil, err
	}

	return newLogger(slog.NewTextHandler(output(), opts)), nil
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) (Logger, error) {
	opts, err := handlerOptions(level)
	if err != nil {
		return nil, err
	}

	return newLogger(slog.NewJSONHandler(output(), opts)), nil
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	return newLogger(slog.DiscardHandler)
}

func newLogger(h slog.Handler) Logger {
	return &slogLogger{logger: slog.New(h)}
}

// Logs go to stderr, stdout is left for program output
// Resolved on every call so tests may replace os.Stderr
func output() io.Writer {
	return os.Stderr
}

func handlerOptions(level string) (*slog.HandlerOptions, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	return &slog.HandlerOptions{
		Level:       l,
		AddSource:   true,
		ReplaceAttr: replaceAttr,
	}, nil
}
