// Package logging provides the file-backed debug logger shared by fanout components.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger provides debug logging for scheduling operations.
// It wraps file-based logging with thread-safe access. A nil *Logger and
// a Logger without a file are both valid no-op loggers.
type Logger struct {
	sink   *sink
	prefix string
}

// sink is the file shared by a logger and every logger derived from it with With.
type sink struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func New(logPath string) (*Logger, error) {
	if logPath == "" {
		return &Logger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{sink: &sink{file: f}}
	l.Log("=== fanout log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// DefaultPath returns the log location inside a project: <root>/.fanout/logs/fanout.log.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".fanout", "logs", "fanout.log")
}

// ForProject creates a logger in the project's .fanout/logs directory.
// Returns a no-op logger if the directory cannot be created.
func ForProject(projectRoot string) *Logger {
	l, err := New(DefaultPath(projectRoot))
	if err != nil {
		return &Logger{}
	}
	return l
}

// Nop returns a no-op logger for testing or when logging is disabled.
func Nop() *Logger {
	return &Logger{}
}

// With returns a logger sharing the same file whose messages are tagged
// with component, e.g. "[decompose]".
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sink: l.sink, prefix: "[" + component + "] "}
}

// Log writes a timestamped message to the debug log.
func (l *Logger) Log(format string, args ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.sink.file, "[%s] %s%s\n", timestamp, l.prefix, msg)
	l.sink.file.Sync()
}

// Warn logs a message marked as a warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.Log("WARNING: "+format, args...)
}

// Error logs a message marked as an error.
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log("ERROR: "+format, args...)
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	return l.sink.file.Close()
}
