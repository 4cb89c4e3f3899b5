package internal

import (
	"log"
	"os"
)

// LogLevel orders verbosity from ERROR (quietest) to TRACE.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// Logger writes tagged printf-style messages at or below its level. The
// retrieval adapters narrate polling and downloads at DEBUG and TRACE; the
// services and binaries report progress at INFO.
type Logger struct {
	level LogLevel
}

// NewLogger creates a logger at the given level.
func NewLogger(level LogLevel) *Logger {
	return &Logger{level: level}
}

// NewDefaultLogger reads the level from the LOG_LEVEL environment variable,
// falling back to INFO when unset or unrecognized.
func NewDefaultLogger() *Logger {
	return &Logger{level: parseLogLevel(os.Getenv("LOG_LEVEL"))}
}

func parseLogLevel(s string) LogLevel {
	switch s {
	case "ERROR":
		return LogLevelError
	case "WARN":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

func (l *Logger) logf(at LogLevel, tag, format string, args ...any) {
	if l.level >= at {
		log.Printf(tag+" "+format, args...)
	}
}

func (l *Logger) Error(format string, args ...any) {
	l.logf(LogLevelError, "[ERROR]", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.logf(LogLevelWarn, "[WARN]", format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.logf(LogLevelInfo, "[INFO]", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.logf(LogLevelDebug, "[DEBUG]", format, args...)
}

func (l *Logger) Trace(format string, args ...any) {
	l.logf(LogLevelTrace, "[TRACE]", format, args...)
}

// GetLevel returns the configured level.
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// DefaultLogger is the process-wide fallback logger.
var DefaultLogger = NewDefaultLogger()
