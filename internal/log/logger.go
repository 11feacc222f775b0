// Package log provides structured event logging.
// This file appends JSON events to log.jsonl.
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
	EventRunStarted       = "run_started"
	EventPhaseStarted     = "phase_started"
	EventPhaseCompleted   = "phase_completed"
	EventSegmentSubmitted = "segment_submitted"
	EventPollError        = "poll_error"
	EventSegmentCompleted = "segment_completed"
	EventSegmentFailed    = "segment_failed"
	EventSegmentFallback  = "segment_fallback"
	EventSegmentsReset    = "segments_reset"
	EventSessionSkipped   = "session_skipped"
	EventSessionSwept     = "session_swept"
	EventAutosaveFailed   = "autosave_failed"
	EventRunComplete      = "run_complete"
)

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time      `json:"time"`
	Event      string         `json:"event"`
	SessionID  string         `json:"session,omitempty"`
	Project    string         `json:"project,omitempty"`
	Phase      string         `json:"phase,omitempty"`
	Segment    *int           `json:"segment,omitempty"`
	Platform   string         `json:"platform,omitempty"`
	RemoteID   string         `json:"remote_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempt    int            `json:"attempt,omitempty"`
	Completed  int            `json:"completed,omitempty"`
	Failed     int            `json:"failed,omitempty"`
	Total      int            `json:"total,omitempty"`
	Indices    []int          `json:"indices,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Cost       float64        `json:"cost,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Index returns a pointer for LogEvent.Segment so index 0 is not dropped.
func Index(i int) *int { return &i }

// Logger writes append-only JSONL events to a log file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to log.jsonl inside stateDir.
// Creates stateDir if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(stateDir string) (*Logger, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &Logger{
		path: filepath.Join(stateDir, "log.jsonl"),
	}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// Append writes a single LogEvent as one JSON line to the log file.
// If event.Time is the zero value, it is automatically set to time.Now().UTC().
// Safe to call on a nil Logger.
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

// Emit appends and reports failures on stderr instead of returning them.
// Event logging never interrupts a run.
func (l *Logger) Emit(event LogEvent) {
	if err := l.Append(event); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
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

// Filter returns the events of one type, in log order.
func Filter(events []LogEvent, kind string) []LogEvent {
	var out []LogEvent
	for _, e := range events {
		if e.Event == kind {
			out = append(out, e)
		}
	}
	return out
}
