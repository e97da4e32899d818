// Package logging configures zerolog for the search client, with optional
// size-based rotation when logging to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer used when FilePath is empty (default: os.Stderr).
	Output io.Writer

	// FilePath sends logs to a rotating file instead of Output.
	FilePath string

	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Pretty:     false,
		Output:     os.Stderr,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Setup configures the global zerolog logger. The returned close function
// flushes and closes the log file, if any.
func Setup(cfg Config) (zerolog.Logger, func() error, error) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	closeFn := func() error { return nil }

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		output = lj
		closeFn = lj.Close
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, NoColor: cfg.FilePath != ""}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger, closeFn, nil
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow
//   - Redacted request URL before each search request
//   - Hit and document counts per page
//
// Info: operation milestones
//   - Start and end of a paginated fetch
//   - Duplicate headlines removed
//   - Proxy startup/shutdown
//
// Warn: problems that don't stop the operation
//   - Non-2xx search responses
//   - Diagnostics recorder failures
//   - A page failure that aborts a paginated fetch
//
// Error: failures the caller sees
//   - Network errors
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - url: request URL, always with the API key redacted
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - page, max_page, hits, docs: pagination progress
//   - duration: request or fetch duration
//
// The API key itself is never logged.
