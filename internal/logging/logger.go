// Package logging provides the leveled logger shared by every regfs package.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	// LevelError only logs errors
	LevelError LogLevel = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs general information, warnings and errors
	LevelInfo
	// LevelDebug logs detailed debug information and all above
	LevelDebug
	// LevelTrace logs FUSE callback traffic and all above
	LevelTrace
)

var levelNames = map[LogLevel]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

// String returns the upper-case level name.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a level name (case-insensitive) to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for level, levelName := range levelNames {
		if levelName == upper {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// levelState is shared between a logger and every logger derived from it,
// so SetLevel on the root reaches all package loggers.
type levelState struct {
	mu    sync.RWMutex
	level LogLevel
}

// Logger writes leveled, prefixed log lines.
type Logger struct {
	state  *levelState
	prefix string
	logger *log.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("REGFS")

		if name := os.Getenv("LOG_LEVEL"); name != "" {
			if level, err := ParseLevel(name); err == nil {
				defaultLogger.SetLevel(level)
			}
		}

		if os.Getenv("FUSE_DEBUG") != "" {
			defaultLogger.SetLevel(LevelTrace)
		}
	})
	return defaultLogger
}

// NewLogger creates a new logger with the given prefix writing to stderr.
// Stdout is left to the console prompt and diagnostics.
func NewLogger(prefix string) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.LUTC
	if os.Getenv("LOG_LONGFILE") != "" {
		flags |= log.Llongfile
	} else {
		flags |= log.Lshortfile
	}

	return &Logger{
		state:  &levelState{level: LevelInfo},
		prefix: prefix,
		logger: log.New(os.Stderr, prefix+": ", flags),
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	l.state.level = level
}

// Level returns the current logging level.
func (l *Logger) Level() LogLevel {
	l.state.mu.RLock()
	defer l.state.mu.RUnlock()
	return l.state.level
}

// SetOutput redirects the log stream.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level <= l.Level()
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = fmt.Sprintf("[%s] %s: %s", levelNames[level], l.prefix, msg)
	} else {
		msg = fmt.Sprintf("[%s] %s", levelNames[level], msg)
	}
	if err := l.logger.Output(3, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log message: %v\n", err)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(LevelTrace, format, args...)
}

// WithPrefix returns a logger that tags each line with prefix. It shares
// the parent's level and output.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		state:  l.state,
		prefix: prefix,
		logger: l.logger,
	}
}
