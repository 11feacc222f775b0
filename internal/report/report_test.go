package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/segment"
	"github.com/berth-dev/clipforge/internal/session"
)

func ts(base time.Time, d time.Duration) *time.Time {
	t := base.Add(d)
	return &t
}

func sampleSession() *session.Session {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &session.Session{
		ID:          "demo_1_abcd1234",
		ProjectName: "demo",
		PlatformConfig: session.PlatformConfig{
			Primary:     "jimeng",
			Fallback:    "sora2",
			AspectRatio: "16:9",
		},
		OutputPath: "output/demo_1_abcd1234",
		Segments: []segment.Task{
			{Index: 0, State: segment.StateCompleted, Platform: "jimeng", Cost: 170, SubmittedAt: ts(base, 0), CompletedAt: ts(base, 60*time.Second)},
			{Index: 1, State: segment.StateCompleted, Platform: "sora2", Cost: 300, FallbackUsed: true, SubmittedAt: ts(base, 0), CompletedAt: ts(base, 120*time.Second)},
			{Index: 2, State: segment.StateFailed, Platform: "jimeng", RetryCount: 2, LastError: "boom"},
			{Index: 3, State: segment.StateSubmitted, Platform: "jimeng"},
		},
	}
}

func TestGenerateCountsAndTimes(t *testing.T) {
	r := Generate(sampleSession(), nil)

	if r.Total != 4 || r.Completed != 2 || r.Failed != 1 || r.InFlight != 1 || r.Pending != 0 {
		t.Errorf("counts = %d/%d/%d/%d/%d", r.Total, r.Completed, r.Failed, r.InFlight, r.Pending)
	}
	if r.PercentComplete() != 50 {
		t.Errorf("PercentComplete() = %v, want 50", r.PercentComplete())
	}
	if r.AvgSegmentTime != 90*time.Second {
		t.Errorf("AvgSegmentTime = %v, want 1m30s", r.AvgSegmentTime)
	}
	if r.ProjectedTotal != 6*time.Minute {
		t.Errorf("ProjectedTotal = %v, want 6m", r.ProjectedTotal)
	}
	if r.Cost != 470 {
		t.Errorf("Cost = %v, want 470", r.Cost)
	}
	if r.Fallbacks != 1 || r.Retries != 2 {
		t.Errorf("Fallbacks = %d, Retries = %d", r.Fallbacks, r.Retries)
	}
	if r.ByPlatform["sora2"] != 1 || r.ByPlatform["jimeng"] != 1 {
		t.Errorf("ByPlatform = %v", r.ByPlatform)
	}
}

func TestGenerateEmptySession(t *testing.T) {
	r := Generate(&session.Session{ID: "empty"}, nil)
	if r.PercentComplete() != 0 || r.AvgSegmentTime != 0 {
		t.Errorf("empty report = %+v", r)
	}
}

func TestRunTimeFromEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := "demo_1_abcd1234"
	events := []log.LogEvent{
		{Time: base, Event: log.EventRunStarted, SessionID: id},
		{Time: base.Add(time.Minute), Event: log.EventSegmentCompleted, SessionID: "other"},
		{Time: base.Add(2 * time.Minute), Event: log.EventRunComplete, SessionID: id},
		{Time: base.Add(time.Hour), Event: log.EventRunStarted, SessionID: id},
		{Time: base.Add(time.Hour + 30*time.Second), Event: log.EventSegmentFailed, SessionID: id},
	}

	r := Generate(sampleSession(), events)
	if want := 2*time.Minute + 30*time.Second; r.RunTime != want {
		t.Errorf("RunTime = %v, want %v", r.RunTime, want)
	}
}

func TestFormatAndWriteReport(t *testing.T) {
	r := Generate(sampleSession(), nil)
	out := FormatReport(r)
	for _, want := range []string{
		"Session:      demo_1_abcd1234",
		"Platform:     jimeng (fallback sora2)",
		"Completed:  2 (50.0%)",
		"Avg segment:     90.0s",
		"Projected total: 6.0 min",
		"On sora2:   1",
		"Output:       output/demo_1_abcd1234",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatReport missing %q:\n%s", want, out)
		}
	}

	dir := filepath.Join(t.TempDir(), "nested")
	if err := WriteReport(dir, r); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "report.md"))
	if err != nil {
		t.Fatalf("reading report.md: %v", err)
	}
	if string(data) != out {
		t.Error("report.md does not match FormatReport output")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{5*time.Minute + 32*time.Second, "5m 32s"},
		{time.Hour + 12*time.Minute + 5*time.Second, "1h 12m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
