// ABOUTME: Process-wide zerolog setup
// ABOUTME: Builds the default logger and per-component child loggers
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu            sync.Mutex
	defaultLogger *zerolog.Logger
)

// Options configures the default logger
type Options struct {
	Level  string    // trace, debug, info, warn, error
	JSON   bool      // JSON lines instead of console output
	Output io.Writer // defaults to stderr
}

// Setup replaces the default logger
func Setup(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(ParseLevel(opts.Level))

	mu.Lock()
	defaultLogger = &logger
	mu.Unlock()
	return logger
}

// GetDefaultLogger returns the process logger, creating an info-level
// console logger on first use
func GetDefaultLogger() *zerolog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		logger := Setup(Options{Level: "info"})
		return &logger
	}
	return l
}

// SetLevel changes the level of the default logger
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		return
	}
	l := defaultLogger.Level(ParseLevel(level))
	defaultLogger = &l
}

// Component returns a child of the default logger tagged with name
func Component(name string) zerolog.Logger {
	return GetDefaultLogger().With().Str("component", name).Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}
