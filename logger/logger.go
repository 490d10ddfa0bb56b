// Package logger builds the zerolog logger used by the llmretry command.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitWithOptions builds a logger.
// If logFile is set, JSON logs are appended to it and the returned closer
// closes the file. Otherwise logs go to stderr, human-readable when pretty is
// true, so that stdout stays free for command output.
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error).
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, io.Closer, error) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))

	if logFile != "" {
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		log := New(file, level)
		log.Debug().Str("path", logFile).Str("level", level.String()).Msg("Logger initialized")
		return log, file, nil
	}

	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log := New(output, level)
	log.Debug().Str("output", "stderr").Bool("pretty", pretty).Str("level", level.String()).Msg("Logger initialized")
	return log, io.NopCloser(nil), nil
}

// New returns a timestamped logger writing to w at level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level. Unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
