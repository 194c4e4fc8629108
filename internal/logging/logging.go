// Package logging builds the phuslu/log loggers used across bookctl.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

// New returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func New(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return &log.Logger{
		Level: parseLevel(level),
		Writer: &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    false,
			EndWithMessage: true,
		},
	}
}

// NewFile returns a logger writing to a size-rotated file. Used while the
// TUI owns the terminal so log lines don't tear the screen.
func NewFile(level, filename string) *log.Logger {
	return &log.Logger{
		Level: parseLevel(level),
		Writer: &log.FileWriter{
			Filename:     filename,
			MaxSize:      10 * 1024 * 1024,
			MaxBackups:   3,
			EnsureFolder: true,
		},
	}
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: log.IOWriter{Writer: io.Discard},
	}
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug", "info", "warn", "error":
		return log.ParseLevel(level)
	default:
		return log.InfoLevel
	}
}
