package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments that choose log format
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// Attached to every record of loggers built by New
const ServiceName = "rewardledger"

// New returns JSON logger for production and text logger otherwise, both write to stderr
func New(env string, level string) (Logger, error) {
	return NewWithWriter(env, level, os.Stderr)
}

// NewWithWriter is New with custom output
func NewWithWriter(env string, level string, w io.Writer) (Logger, error) {
	var l Logger
	var err error

	switch env {
	case EnvProduction:
		l, err = newLogger(w, level, jsonHandler)
	case EnvDevelopment, "":
		l, err = newLogger(w, level, textHandler)
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}
	if err != nil {
		return nil, err
	}

	return l.With("service", ServiceName), nil
}

// NewTextLogger writes human readable records to stderr
func NewTextLogger(level string) (Logger, error) {
	return newLogger(os.Stderr, level, textHandler)
}

// NewJSONLogger writes one JSON object per record to stderr
func NewJSONLogger(level string) (Logger, error) {
	return newLogger(os.Stderr, level, jsonHandler)
}

func NewNoOpLogger() Logger {
	return &slogLogger{logger: slog.New(slog.DiscardHandler)}
}

type handlerFunc func(io.Writer, *slog.HandlerOptions) slog.Handler

func textHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(w, opts)
}

func jsonHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func newLogger(w io.Writer, level string, newHandler handlerFunc) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}

	return &slogLogger{logger: slog.New(newHandler(w, opts))}, nil
}
