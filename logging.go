// logging.go - structured logging surface for the scheduler runtime.
//
// Package-level configuration for structured logging, mirroring the
// teacher event loop's design: external code can swap in its own Logger,
// or fall back to a built-in implementation backed by logiface/stumpy.
//
// Usage:
//
//	systest.SetStructuredLogger(systest.NewDefaultLogger(systest.LevelInfo))

package systest

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetStructuredLogger sets the global structured logger.
func SetStructuredLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getGlobalLogger safely retrieves the global logger.
func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug for detailed diagnostic information (individual
	// scheduling decisions, dequeue attempts).
	LevelDebug LogLevel = iota

	// LevelInfo for general informational messages (iteration start/end).
	LevelInfo

	// LevelWarn for warning conditions (deadlock-timeout near misses).
	LevelWarn

	// LevelError for error conditions (assertion and liveness failures).
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry represents a structured log entry. Category uses this
// runtime's own vocabulary: "schedule", "actor", "monitor", "strategy",
// "trace".
type LogEntry struct {
	Level       LogLevel
	Category    string
	IterationID string
	OperationID int64
	Context     map[string]interface{}
	Message     string
	Err         error
	Timestamp   time.Time
}

// Logger is the structured logging interface.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// DefaultLogger implements Logger on top of logiface, using stumpy as
// its JSON event backend.
type DefaultLogger struct {
	level  atomic.Int32
	logger *logiface.Logger[*stumpy.Event]
}

// NewDefaultLogger creates a logger with the specified minimum level,
// writing single-line JSON to os.Stderr.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewWriterLogger(level, os.Stderr)
}

// NewWriterLogger creates a logger with the specified minimum level,
// writing single-line JSON to out.
func NewWriterLogger(level LogLevel, out io.Writer) *DefaultLogger {
	l := &DefaultLogger{
		logger: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(out)),
		),
	}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// IsEnabled checks if the specified level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// Log writes a structured log entry through logiface/stumpy.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	b := l.logger.Build(toLogifaceLevel(entry.Level)).
		Str("category", entry.Category)
	if entry.IterationID != "" {
		b = b.Str("iteration", entry.IterationID)
	}
	if entry.OperationID != 0 {
		b = b.Int64("operation", entry.OperationID)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// NoOpLogger discards every entry.
type NoOpLogger struct{}

// NewNoOpLogger returns a Logger that does nothing.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Log(LogEntry) {}

func (l *NoOpLogger) IsEnabled(LogLevel) bool { return false }

// Helper functions for common logging call sites.

// LogSchedule logs a scheduling decision (§4.2/§4.3).
func LogSchedule(l Logger, iterationID string, opID int64, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelDebug,
		Category:    "schedule",
		IterationID: iterationID,
		OperationID: opID,
		Message:     message,
		Context:     fields,
		Timestamp:   time.Now(),
	})
}

// LogActor logs an actor/event-queue transition (§4.6/§4.7).
func LogActor(l Logger, iterationID string, opID int64, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelDebug,
		Category:    "actor",
		IterationID: iterationID,
		OperationID: opID,
		Message:     message,
		Context:     fields,
		Timestamp:   time.Now(),
	})
}

// LogMonitor logs a specification monitor state transition or
// temperature check (§4.5/§4.8).
func LogMonitor(l Logger, iterationID, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelDebug,
		Category:    "monitor",
		IterationID: iterationID,
		Message:     message,
		Context:     fields,
		Timestamp:   time.Now(),
	})
}

// LogStrategy logs an exploration strategy's choice (§4.4).
func LogStrategy(l Logger, iterationID, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelDebug,
		Category:    "strategy",
		IterationID: iterationID,
		Message:     message,
		Context:     fields,
		Timestamp:   time.Now(),
	})
}

// LogTrace logs a trace-capture event (§4.9).
func LogTrace(l Logger, iterationID, message string, fields map[string]interface{}) {
	if !l.IsEnabled(LevelInfo) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelInfo,
		Category:    "trace",
		IterationID: iterationID,
		Message:     message,
		Context:     fields,
		Timestamp:   time.Now(),
	})
}

// LogFailure logs an assertion or liveness failure at LevelError.
func LogFailure(l Logger, category, iterationID, message string, err error) {
	if !l.IsEnabled(LevelError) {
		return
	}
	l.Log(LogEntry{
		Level:       LevelError,
		Category:    category,
		IterationID: iterationID,
		Message:     message,
		Err:         err,
		Timestamp:   time.Now(),
	})
}
