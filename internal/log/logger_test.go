package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	if err := logger.Append(LogEvent{Event: EventMessageReceived, UserID: "u1"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventMessageReplied, UserID: "u1", DurationMs: 12}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Event != EventMessageReceived || events[1].Event != EventMessageReplied {
		t.Errorf("unexpected event order: %q, %q", events[0].Event, events[1].Event)
	}
	if events[0].Time.IsZero() {
		t.Error("Time should be set automatically")
	}
}

func TestReadAllMissingFile(t *testing.T) {
	logger := &Logger{path: filepath.Join(t.TempDir(), "missing.jsonl")}
	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	if err := logger.Append(LogEvent{Event: EventError}); err != nil {
		t.Errorf("nil Append returned %v", err)
	}
	logger.LogError("x", "y")
	logger.Warn("x", "y")
	if got := logger.RecentErrors(); got != nil {
		t.Errorf("RecentErrors on nil = %v, want nil", got)
	}
}

func TestLogErrorKeepsBoundedHistory(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	for i := 0; i < maxRecentErrors+20; i++ {
		logger.LogError("openai", fmt.Sprintf("failure %d", i))
	}

	recent := logger.RecentErrors()
	if len(recent) != maxRecentErrors {
		t.Fatalf("got %d recent errors, want %d", len(recent), maxRecentErrors)
	}
	if recent[0].Message != "failure 20" {
		t.Errorf("oldest kept = %q, want %q", recent[0].Message, "failure 20")
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != maxRecentErrors+20 {
		t.Errorf("got %d events on disk, want %d", len(events), maxRecentErrors+20)
	}
}

func TestLogErrorNeverFails(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	// Replace the log file with a directory so writes fail.
	if err := os.MkdirAll(logger.Path(), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	logger.LogError("gemini", "boom")

	if got := len(logger.RecentErrors()); got != 1 {
		t.Errorf("RecentErrors length = %d, want 1", got)
	}
}

func TestRecorderConcurrent(t *testing.T) {
	var rec Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := "a"
			if i%2 == 0 {
				source = "b"
			}
			rec.LogError(source, "msg")
		}(i)
	}
	wg.Wait()

	if len(rec.Records()) != 50 {
		t.Errorf("got %d records, want 50", len(rec.Records()))
	}
	if rec.Count("b") != 25 {
		t.Errorf("Count(b) = %d, want 25", rec.Count("b"))
	}
}
