// Package logging provides structured JSON logging shared by the portal
// client, its CLI and its HTTP server.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config value such as "warn" to a Level. Unknown values
// fall back to INFO.
func ParseLevel(raw string) Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Entry represents a single log entry with structured fields.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Duration  *int64         `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Logger writes JSON lines to every configured writer and forwards entries
// to subscribers.
type Logger struct {
	mu          sync.RWMutex
	minLevel    Level
	writers     []io.Writer
	subscribers []chan<- Entry
	now         func() time.Time
}

// New creates a Logger that drops entries below minLevel.
func New(minLevel Level, writers ...io.Writer) *Logger {
	return &Logger{
		minLevel: minLevel,
		writers:  writers,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Discard returns a logger that writes nowhere. Useful as a default when a
// caller does not supply one.
func Discard() *Logger {
	return New(ERROR + 1)
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.minLevel
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// AddWriter attaches another output, e.g. a rotating FileWriter.
func (l *Logger) AddWriter(w io.Writer) {
	if w == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writers = append(l.writers, w)
}

// Subscribe adds a channel to receive log entries in real-time. Delivery is
// non-blocking; a full channel misses entries.
func (l *Logger) Subscribe(ch chan<- Entry) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, ch)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, sub := range l.subscribers {
			if sub == ch {
				l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Log records message at level unless the level is filtered out.
func (l *Logger) Log(level Level, category, message string, fields map[string]any) {
	l.emit(level, category, message, nil, fields)
}

func (l *Logger) Debug(category, message string, fields map[string]any) {
	l.emit(DEBUG, category, message, nil, fields)
}

func (l *Logger) Info(category, message string, fields map[string]any) {
	l.emit(INFO, category, message, nil, fields)
}

func (l *Logger) Warn(category, message string, fields map[string]any) {
	l.emit(WARN, category, message, nil, fields)
}

// Error records err's text alongside message.
func (l *Logger) Error(category, message string, err error, fields map[string]any) {
	l.emit(ERROR, category, message, err, fields)
}

func (l *Logger) emit(level Level, category, message string, err error, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}
	e := Entry{
		Timestamp: l.now(),
		Level:     level.String(),
		Category:  category,
		Message:   message,
		Fields:    fields,
	}
	if err != nil {
		e.Error = err.Error()
	}
	l.write(e)
}

func (l *Logger) write(entry Entry) {
	if l == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	l.mu.RLock()
	writers := make([]io.Writer, len(l.writers))
	copy(writers, l.writers)
	subscribers := make([]chan<- Entry, len(l.subscribers))
	copy(subscribers, l.subscribers)
	l.mu.RUnlock()

	for _, w := range writers {
		_, _ = w.Write(data)
	}
	for _, ch := range subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// LogContext stamps a request ID, category and fixed fields on every entry
// it records.
type LogContext struct {
	logger    *Logger
	requestID string
	category  string
	fields    map[string]any
}

// WithRequestID starts a LogContext bound to requestID.
func (l *Logger) WithRequestID(requestID string) *LogContext {
	return &LogContext{logger: l, requestID: requestID}
}

func (c *LogContext) WithCategory(category string) *LogContext {
	c.category = category
	return c
}

func (c *LogContext) WithField(key string, value any) *LogContext {
	if c.fields == nil {
		c.fields = make(map[string]any)
	}
	c.fields[key] = value
	return c
}

func (c *LogContext) record(level Level, message string, err error) {
	if !c.logger.Enabled(level) {
		return
	}
	e := Entry{
		Timestamp: c.logger.now(),
		Level:     level.String(),
		Category:  c.category,
		Message:   message,
		Fields:    c.fields,
		RequestID: c.requestID,
	}
	if err != nil {
		e.Error = err.Error()
	}
	c.logger.write(e)
}

func (c *LogContext) Debug(message string)            { c.record(DEBUG, message, nil) }
func (c *LogContext) Info(message string)             { c.record(INFO, message, nil) }
func (c *LogContext) Warn(message string)             { c.record(WARN, message, nil) }
func (c *LogContext) Error(message string, err error) { c.record(ERROR, message, err) }
