// Package schedule decides which segments of a session run next.
// Everything here is a pure function of a session snapshot.
package schedule

import (
	"math"

	"github.com/berth-dev/clipforge/internal/segment"
	"github.com/berth-dev/clipforge/internal/session"
)

// NextBatch returns up to min(maxBatchSize, maxConcurrency - inFlight)
// Pending segments, lowest index first. It returns nil when no slot is free.
func NextBatch(s *session.Session, maxConcurrency, maxBatchSize int) []segment.Task {
	available := maxConcurrency - Count(s).InFlight
	if available <= 0 || maxBatchSize <= 0 {
		return nil
	}
	limit := min(maxBatchSize, available)

	var batch []segment.Task
	// Segments are stored in index order.
	for _, t := range s.Segments {
		if t.State != segment.StatePending {
			continue
		}
		batch = append(batch, t)
		if len(batch) == limit {
			break
		}
	}
	return batch
}

// IsComplete reports whether every segment is Completed.
func IsComplete(s *session.Session) bool {
	if len(s.Segments) == 0 {
		return false
	}
	for _, t := range s.Segments {
		if t.State != segment.StateCompleted {
			return false
		}
	}
	return true
}

// HasFailures reports whether any segment is Failed.
func HasFailures(s *session.Session) bool {
	return Count(s).Failed > 0
}

// FailedSegments returns the Failed segments in index order.
func FailedSegments(s *session.Session) []segment.Task {
	var out []segment.Task
	for _, t := range s.Segments {
		if t.State == segment.StateFailed {
			out = append(out, t)
		}
	}
	return out
}

// ResetFailed returns the indices of every Failed segment. The store applies
// the reset.
func ResetFailed(s *session.Session) []int {
	var out []int
	for _, t := range s.Segments {
		if t.State == segment.StateFailed {
			out = append(out, t.Index)
		}
	}
	return out
}

// Retryable returns the indices of Failed segments that have been reset
// fewer than maxRetries times.
func Retryable(s *session.Session, maxRetries int) []int {
	var out []int
	for _, t := range s.Segments {
		if t.State == segment.StateFailed && t.RetryCount < maxRetries {
			out = append(out, t.Index)
		}
	}
	return out
}

// PercentComplete is the rounded share of Completed segments. Failed
// segments do not count, so it can stop short of 100 with nothing left to run.
func PercentComplete(s *session.Session) int {
	if len(s.Segments) == 0 {
		return 0
	}
	done := Count(s).Completed
	return int(math.Round(100 * float64(done) / float64(len(s.Segments))))
}

// Counts is a per-state tally of a session's segments.
type Counts struct {
	Pending   int
	InFlight  int
	Completed int
	Failed    int
	Total     int
}

// Count tallies segment states.
func Count(s *session.Session) Counts {
	c := Counts{Total: len(s.Segments)}
	for _, t := range s.Segments {
		switch {
		case t.State == segment.StatePending:
			c.Pending++
		case t.State.InFlight():
			c.InFlight++
		case t.State == segment.StateCompleted:
			c.Completed++
		case t.State == segment.StateFailed:
			c.Failed++
		}
	}
	return c
}
