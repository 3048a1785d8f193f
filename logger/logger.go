// Package logger configures the zerolog sink shared by all components.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to a size-rotated file at path.
func New(path string) zerolog.Logger {
	return zerolog.New(rotatingWriter(path)).
		With().
		Timestamp().
		Logger()
}

// NewMulti returns a logger writing to both stderr and a rotated file. The
// shell owns stdout, so log output stays on stderr.
func NewMulti(path string) zerolog.Logger {
	multi := io.MultiWriter(os.Stderr, rotatingWriter(path))

	return zerolog.New(multi).
		With().
		Timestamp().
		Logger()
}

func rotatingWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

// DefaultPath places the log file under the user's home directory, creating
// the directory on demand.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, "lanlink", "logs")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	return filepath.Join(logDir, "lanlink.log"), nil
}
