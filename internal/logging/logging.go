// Package logging builds the workflow's zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the level and destinations of the log.
type Config struct {
	Level string
	// Dir, when set, receives a daily log file next to the console output.
	Dir string
}

// FileName returns the daily log file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("workflow_agent_%s.log", t.Format("20060102"))
}

// New builds a logger writing human-readable output to console and, when
// cfg.Dir is set, JSON lines to the day's log file. The returned closer closes
// the file and must be called on shutdown.
func New(cfg Config, console io.Writer, now time.Time) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	consoleWriter := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	if cfg.Dir == "" {
		logger := zerolog.New(consoleWriter).Level(level).With().Timestamp().Logger()
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(cfg.Dir, FileName(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}

	writer := zerolog.MultiLevelWriter(consoleWriter, file)
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return logger, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
