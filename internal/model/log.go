package model

import (
	"strings"
	"time"
)

// LogLevel is the severity of a pipeline log line.
type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelWarn    LogLevel = "WARN"
	LevelError   LogLevel = "ERROR"
	LevelDebug   LogLevel = "DEBUG"
	LevelUnknown LogLevel = "UNKNOWN"
)

// ParseLogLevel accepts the backend spellings, including WARNING.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "DEBUG":
		return LevelDebug
	default:
		return LevelUnknown
	}
}

// LogEntry is one line of the append-only pipeline log.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	RawLevel  string
	Source    string
	Message   string
}
