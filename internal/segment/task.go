// Package segment defines the unit of work: one clip of the final video and
// its lifecycle state.
package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/berth-dev/clipforge/internal/platform"
)

// State is the local lifecycle state of a segment.
type State string

const (
	StatePending    State = "pending"
	StateSubmitted  State = "submitted"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// InFlight reports whether the segment is owned by a remote job.
func (s State) InFlight() bool {
	return s == StateSubmitted || s == StateProcessing
}

// ErrInvalidTransition is returned for transitions the state machine forbids.
var ErrInvalidTransition = errors.New("invalid segment transition")

// Task is one independently generated segment.
type Task struct {
	ID           string           `json:"id"`
	Index        int              `json:"index"`
	Request      platform.Request `json:"request"`
	State        State            `json:"state"`
	Platform     string           `json:"platform"`
	RemoteTaskID string           `json:"remote_task_id,omitempty"`
	RemoteRef    string           `json:"remote_ref,omitempty"`
	ResultRef    string           `json:"result_ref,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	RetryCount   int              `json:"retry_count"`
	FallbackUsed bool             `json:"fallback_used,omitempty"`
	Cost         float64          `json:"cost,omitempty"`
	SubmittedAt  *time.Time       `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// NewTasks builds Pending tasks for reqs in order, all owned by platformName.
func NewTasks(reqs []platform.Request, platformName string) []Task {
	tasks := make([]Task, len(reqs))
	for i, req := range reqs {
		tasks[i] = Task{
			ID:       uuid.New().String(),
			Index:    i,
			Request:  req,
			State:    StatePending,
			Platform: platformName,
		}
	}
	return tasks
}

// Patch carries the fields a transition may set. Zero values are ignored.
type Patch struct {
	RemoteTaskID string
	RemoteRef    string
	ResultRef    string
	Error        string
	Platform     string
	Cost         float64
	// Request replaces the stored request, e.g. with the adapted fallback request.
	Request *platform.Request
}

// Apply moves t to next, validating the transition and maintaining the
// result/error invariant. now stamps SubmittedAt and CompletedAt.
func (t *Task) Apply(next State, p Patch, now time.Time) error {
	if !canTransition(t, next, p) {
		return fmt.Errorf("%w: segment %d %s -> %s", ErrInvalidTransition, t.Index, t.State, next)
	}

	switch next {
	case StateSubmitted:
		if t.State == StateFailed {
			// Fallback hand-off: a new remote job on a different platform.
			t.FallbackUsed = true
			t.LastError = ""
		}
		if p.RemoteTaskID != "" {
			t.RemoteTaskID = p.RemoteTaskID
			t.SubmittedAt = stamp(now)
		}
	case StateProcessing:
		// Intermediate remote status; nothing to record.
	case StateCompleted:
		t.ResultRef = p.ResultRef
		t.RemoteRef = p.RemoteRef
		t.Cost = p.Cost
		t.LastError = ""
		t.CompletedAt = stamp(now)
	case StateFailed:
		t.LastError = p.Error
		if t.LastError == "" {
			t.LastError = "unknown error"
		}
		t.ResultRef = ""
	}

	if p.Platform != "" {
		t.Platform = p.Platform
	}
	if p.Request != nil {
		t.Request = *p.Request
	}
	t.State = next
	return nil
}

// Reset applies the explicit Failed -> Pending transition.
func (t *Task) Reset() error {
	if t.State != StateFailed {
		return fmt.Errorf("%w: segment %d %s -> %s", ErrInvalidTransition, t.Index, t.State, StatePending)
	}
	t.State = StatePending
	t.RemoteTaskID = ""
	t.RemoteRef = ""
	t.LastError = ""
	t.FallbackUsed = false
	t.SubmittedAt = nil
	t.RetryCount++
	return nil
}

func canTransition(t *Task, next State, p Patch) bool {
	switch t.State {
	case StatePending:
		return next == StateSubmitted && p.RemoteTaskID != "" || next == StateFailed
	case StateSubmitted, StateProcessing:
		switch next {
		case StateSubmitted, StateProcessing, StateFailed:
			return true
		case StateCompleted:
			return p.ResultRef != ""
		}
	case StateFailed:
		// Only the one-shot fallback hand-off may leave Failed without a reset.
		return next == StateSubmitted && !t.FallbackUsed &&
			p.RemoteTaskID != "" && p.Platform != "" && p.Platform != t.Platform
	}
	return false
}

func stamp(now time.Time) *time.Time {
	ts := now
	return &ts
}
