package log

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".clipforge")
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	if err := logger.Append(LogEvent{Event: EventRunStarted, Project: "temple", Total: 6}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventSegmentFailed, Segment: Index(0), Error: "expired"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Time.IsZero() {
		t.Error("events[0].Time is zero, want it stamped")
	}
	if events[1].Segment == nil || *events[1].Segment != 0 {
		t.Errorf("events[1].Segment = %v, want 0", events[1].Segment)
	}
	if got := Filter(events, EventSegmentFailed); len(got) != 1 {
		t.Errorf("Filter(segment_failed) = %d events, want 1", len(got))
	}
}

func TestReadAllMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func TestReadAllRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := os.WriteFile(logger.Path(), []byte("{not json}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := logger.ReadAll(); err == nil {
		t.Error("ReadAll on garbage: want error, got nil")
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	if err := logger.Append(LogEvent{Event: EventRunComplete}); err != nil {
		t.Errorf("nil Append = %v, want nil", err)
	}
	logger.Emit(LogEvent{Event: EventRunComplete})
}
