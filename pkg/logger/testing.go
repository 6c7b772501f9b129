package logger

import (
	"fmt"
	"sync"
	"testing"
)

// TestLogger forwards to t.Logf and keeps the emitted lines so tests can assert on them
type TestLogger struct {
	T *testing.T

	mu      *sync.Mutex
	entries *[]string
}

// NewTestLogger creates a new test logger
func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{T: t, mu: &sync.Mutex{}, entries: &[]string{}}
}

func (l *TestLogger) log(level, msg string) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	l.mu.Lock()
	*l.entries = append(*l.entries, line)
	l.mu.Unlock()
	if l.T != nil {
		l.T.Log(line)
	}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg) }

// WithField returns the same logger, fields are not recorded
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l
}

// Entries returns the lines logged so far, prefixed with their level
func (l *TestLogger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// NewMockLogger creates a simple logger for use in tests
// It can be called with or without a testing.T parameter
func NewMockLogger(t ...*testing.T) Logger {
	if len(t) > 0 {
		return NewTestLogger(t[0])
	}
	return NewTestLogger(nil)
}
