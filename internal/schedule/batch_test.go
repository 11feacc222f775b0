package schedule

import (
	"testing"
	"time"

	"github.com/berth-dev/clipforge/internal/platform"
	"github.com/berth-dev/clipforge/internal/segment"
	"github.com/berth-dev/clipforge/internal/session"
)

func newSession(n int) *session.Session {
	reqs := make([]platform.Request, n)
	for i := range reqs {
		reqs[i] = platform.Request{Prompt: "shot", Duration: 10}
	}
	return &session.Session{ID: "s", Segments: segment.NewTasks(reqs, "jimeng")}
}

func move(t *testing.T, s *session.Session, i int, states ...segment.State) {
	t.Helper()
	for _, st := range states {
		p := segment.Patch{RemoteTaskID: "r"}
		switch st {
		case segment.StateCompleted:
			p = segment.Patch{ResultRef: "out.mp4"}
		case segment.StateFailed:
			p = segment.Patch{Error: "boom"}
		}
		if err := s.Segments[i].Apply(st, p, time.Now()); err != nil {
			t.Fatalf("segment %d -> %s: %v", i, st, err)
		}
	}
}

func indices(tasks []segment.Task) []int {
	out := make([]int, len(tasks))
	for i, t := range tasks {
		out[i] = t.Index
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNextBatchSixSegments(t *testing.T) {
	s := newSession(6)

	batch := NextBatch(s, 3, 3)
	if got := indices(batch); !equalInts(got, []int{0, 1, 2}) {
		t.Fatalf("first batch = %v, want [0 1 2]", got)
	}
	for _, task := range batch {
		move(t, s, task.Index, segment.StateSubmitted)
	}

	if got := NextBatch(s, 3, 3); len(got) != 0 {
		t.Errorf("batch with 3 in flight = %v, want empty", indices(got))
	}

	move(t, s, 1, segment.StateCompleted)
	if got := indices(NextBatch(s, 3, 3)); !equalInts(got, []int{3}) {
		t.Errorf("batch after one completes = %v, want [3]", got)
	}
}

func TestNextBatchRespectsBatchSize(t *testing.T) {
	s := newSession(10)
	if got := indices(NextBatch(s, 8, 2)); !equalInts(got, []int{0, 1}) {
		t.Errorf("NextBatch(8, 2) = %v, want [0 1]", got)
	}
	if got := NextBatch(s, 0, 3); got != nil {
		t.Errorf("NextBatch(0, 3) = %v, want nil", indices(got))
	}
}

func TestNextBatchAdmissionNeverExceedsLimit(t *testing.T) {
	s := newSession(12)
	const maxConc = 4
	for round := 0; round < 20; round++ {
		batch := NextBatch(s, maxConc, 3)
		for _, task := range batch {
			move(t, s, task.Index, segment.StateSubmitted)
		}
		if c := Count(s); c.InFlight > maxConc {
			t.Fatalf("round %d: in flight = %d, want <= %d", round, c.InFlight, maxConc)
		}
		// Finish the lowest in-flight segment each round.
		for i := range s.Segments {
			if s.Segments[i].State.InFlight() {
				move(t, s, i, segment.StateCompleted)
				break
			}
		}
	}
	if !IsComplete(s) {
		t.Errorf("session not complete after draining: %+v", Count(s))
	}
}

func TestNextBatchIndexOrderAfterReset(t *testing.T) {
	s := newSession(5)
	for i := 0; i < 5; i++ {
		move(t, s, i, segment.StateSubmitted)
	}
	move(t, s, 0, segment.StateCompleted)
	move(t, s, 3, segment.StateFailed)
	move(t, s, 1, segment.StateFailed)
	move(t, s, 2, segment.StateCompleted)
	move(t, s, 4, segment.StateCompleted)

	reset := ResetFailed(s)
	if !equalInts(reset, []int{1, 3}) {
		t.Fatalf("ResetFailed = %v, want [1 3]", reset)
	}
	for _, i := range reset {
		if err := s.Segments[i].Reset(); err != nil {
			t.Fatalf("Reset %d: %v", i, err)
		}
	}
	if got := indices(NextBatch(s, 3, 3)); !equalInts(got, []int{1, 3}) {
		t.Errorf("batch after reset = %v, want [1 3]", got)
	}
}

func TestPercentCompleteIgnoresFailures(t *testing.T) {
	s := newSession(3)
	if got := PercentComplete(s); got != 0 {
		t.Errorf("PercentComplete = %d, want 0", got)
	}
	move(t, s, 0, segment.StateSubmitted, segment.StateCompleted)
	if got := PercentComplete(s); got != 33 {
		t.Errorf("PercentComplete = %d, want 33", got)
	}
	move(t, s, 1, segment.StateSubmitted, segment.StateCompleted)
	move(t, s, 2, segment.StateSubmitted, segment.StateFailed)
	if got := PercentComplete(s); got != 67 {
		t.Errorf("PercentComplete = %d, want 67", got)
	}
	if IsComplete(s) {
		t.Error("IsComplete = true with a failed segment")
	}
	if !HasFailures(s) {
		t.Error("HasFailures = false, want true")
	}
	if got := FailedSegments(s); len(got) != 1 || got[0].Index != 2 {
		t.Errorf("FailedSegments = %v, want [2]", indices(got))
	}
}

func TestPercentCompleteIsMonotonic(t *testing.T) {
	s := newSession(7)
	last := 0
	for i := range s.Segments {
		move(t, s, i, segment.StateSubmitted, segment.StateProcessing)
		if p := PercentComplete(s); p < last {
			t.Fatalf("progress went from %d to %d", last, p)
		}
		move(t, s, i, segment.StateCompleted)
		p := PercentComplete(s)
		if p < last {
			t.Fatalf("progress went from %d to %d", last, p)
		}
		last = p
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestRetryableStopsAtMaxRetries(t *testing.T) {
	s := newSession(2)
	move(t, s, 0, segment.StateFailed)
	move(t, s, 1, segment.StateFailed)
	s.Segments[1].RetryCount = 3

	if got := Retryable(s, 3); !equalInts(got, []int{0}) {
		t.Errorf("Retryable(3) = %v, want [0]", got)
	}
	if got := Retryable(s, 0); len(got) != 0 {
		t.Errorf("Retryable(0) = %v, want empty", got)
	}
}
