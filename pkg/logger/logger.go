// Package logger builds the zerolog loggers used across the tracker.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
	// File, when set, receives a JSON copy of every log line (console output is unaffected).
	File string
	// ErrorFile, when set, receives a JSON copy of error and fatal lines only.
	ErrorFile string
}

// New creates a new structured logger. The returned closer releases the log
// files opened for File and ErrorFile; it is a no-op when neither is set.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	writers := []io.Writer{console}
	var files fileClosers

	if cfg.File != "" {
		if f, ok := openSink(console, cfg.File); ok {
			writers = append(writers, f)
			files = append(files, f)
		}
	}
	if cfg.ErrorFile != "" {
		if f, ok := openSink(console, cfg.ErrorFile); ok {
			writers = append(writers, minLevelWriter{w: f, min: zerolog.ErrorLevel})
			files = append(files, f)
		}
	}

	output := console
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}

	l := zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
	return l, files
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// openSink opens path for appending. On failure the problem is reported on the
// console and the sink is skipped.
func openSink(console io.Writer, path string) (*os.File, bool) {
	f, err := openLogFile(path)
	if err != nil {
		fallback := zerolog.New(console)
		fallback.Warn().Err(err).Str("file", path).Msg("Failed to open log file")
		return nil, false
	}
	return f, true
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// minLevelWriter forwards only events at or above min. Writes without a level are dropped.
type minLevelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (m minLevelWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (m minLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < m.min || level == zerolog.NoLevel {
		return len(p), nil
	}
	return m.w.Write(p)
}

type fileClosers []*os.File

// Close closes every file, returning the first error.
func (fc fileClosers) Close() error {
	var firstErr error
	for _, f := range fc {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", f.Name(), err)
		}
	}
	return firstErr
}
