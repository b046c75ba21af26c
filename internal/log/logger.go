// Package log provides structured event logging.
// This file appends JSON events to log.jsonl and doubles as the error sink
// every component reports failures to.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventMessageReceived   = "message_received"
	EventSessionReady      = "session_ready"
	EventMessageDispatched = "message_dispatched"
	EventProviderCall      = "provider_call"
	EventProviderRetry     = "provider_retry"
	EventProviderFailed    = "provider_failed"
	EventReviewApproved    = "review_approved"
	EventReviewRevised     = "review_revised"
	EventMessageReplied    = "message_replied"
	EventMessageFailed     = "message_failed"
	EventOutputSaved       = "output_saved"
	EventError             = "error"
	EventWarning           = "warning"
)

// maxRecentErrors bounds the in-memory error history.
const maxRecentErrors = 100

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time              `json:"time"`
	Event      string                 `json:"event"`
	UserID     string                 `json:"user,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Provider   string                 `json:"provider,omitempty"`
	Stage      string                 `json:"stage,omitempty"`
	State      string                 `json:"state,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Attempt    int                    `json:"attempt,omitempty"`
	Iteration  int                    `json:"iteration,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// ErrorRecord is one entry received by an ErrorSink.
type ErrorRecord struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// ErrorSink receives error records from any component.
// Implementations must never fail or panic.
type ErrorSink interface {
	LogError(source, message string)
}

// Logger writes append-only JSONL events to a log file.
// A nil *Logger discards everything.
type Logger struct {
	path string
	mu   sync.Mutex

	recent []ErrorRecord
}

// NewLogger creates a Logger that writes to .aiorch/log.jsonl inside dir.
// Creates the .aiorch/ directory if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(dir string) (*Logger, error) {
	stateDir := filepath.Join(dir, ".aiorch")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create .aiorch directory: %w", err)
	}

	return &Logger{
		path: filepath.Join(stateDir, "log.jsonl"),
	}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single LogEvent as one JSON line to the log file.
// If event.Time is the zero value, it is automatically set to time.Now().UTC().
// The file is opened in append mode, written to, and then closed.
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if l == nil {
		return nil
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}

	return nil
}

// LogError implements ErrorSink. The record is kept in the recent-error
// history and appended to the log file; write failures go to stderr.
func (l *Logger) LogError(source, message string) {
	if l == nil {
		return
	}
	now := time.Now().UTC()

	l.mu.Lock()
	l.recent = append(l.recent, ErrorRecord{Time: now, Source: source, Message: message})
	if len(l.recent) > maxRecentErrors {
		l.recent = l.recent[len(l.recent)-maxRecentErrors:]
	}
	l.mu.Unlock()

	err := l.Append(LogEvent{Time: now, Event: EventError, Source: source, Error: message})
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: error sink write failed: %v (%s: %s)\n", err, source, message)
	}
}

// Warn appends a warning event, ignoring write failures.
func (l *Logger) Warn(source, message string) {
	_ = l.Append(LogEvent{Event: EventWarning, Source: source, Message: message})
}

// RecentErrors returns a copy of the most recent error records, oldest first.
func (l *Logger) RecentErrors() []ErrorRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ErrorRecord, len(l.recent))
	copy(out, l.recent)
	return out
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}

// Recorder is an in-memory ErrorSink. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []ErrorRecord
}

// LogError implements ErrorSink.
func (r *Recorder) LogError(source, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, ErrorRecord{Time: time.Now().UTC(), Source: source, Message: message})
}

// Records returns a copy of everything received so far.
func (r *Recorder) Records() []ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Count returns how many records came from source.
func (r *Recorder) Count(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Source == source {
			n++
		}
	}
	return n
}
