// Package report builds the per-session summary shown by `clipforge report`
// and written next to the downloaded segments.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/segment"
	"github.com/berth-dev/clipforge/internal/session"
)

// Report holds the aggregated statistics for one session.
type Report struct {
	SessionID   string
	Project     string
	Primary     string
	Fallback    string
	AspectRatio string
	OutputPath  string

	Total      int
	Completed  int
	InFlight   int
	Pending    int
	Failed     int
	Fallbacks  int
	Retries    int
	ByPlatform map[string]int // completed segments per platform

	// AvgSegmentTime is the mean submit-to-complete time of completed segments.
	AvgSegmentTime time.Duration
	// ProjectedTotal is AvgSegmentTime times the segment count, as if run one at a time.
	ProjectedTotal time.Duration
	// RunTime is wall-clock time spent in runs, from the event log.
	RunTime time.Duration
	Cost    float64
}

// PercentComplete is the completed share as a percentage.
func (r *Report) PercentComplete() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Completed) / float64(r.Total) * 100
}

// Generate builds a Report from a session snapshot and, when events is
// non-empty, the event log.
func Generate(s *session.Session, events []log.LogEvent) *Report {
	r := &Report{
		SessionID:   s.ID,
		Project:     s.ProjectName,
		Primary:     s.PlatformConfig.Primary,
		Fallback:    s.PlatformConfig.Fallback,
		AspectRatio: s.PlatformConfig.AspectRatio,
		OutputPath:  s.OutputPath,
		Total:       len(s.Segments),
		ByPlatform:  make(map[string]int),
	}

	var busy time.Duration
	var timed int
	for _, t := range s.Segments {
		switch {
		case t.State == segment.StateCompleted:
			r.Completed++
			r.Cost += t.Cost
			r.ByPlatform[t.Platform]++
			if t.SubmittedAt != nil && t.CompletedAt != nil {
				busy += t.CompletedAt.Sub(*t.SubmittedAt)
				timed++
			}
		case t.State == segment.StateFailed:
			r.Failed++
		case t.State.InFlight():
			r.InFlight++
		default:
			r.Pending++
		}
		if t.FallbackUsed {
			r.Fallbacks++
		}
		r.Retries += t.RetryCount
	}
	if timed > 0 {
		r.AvgSegmentTime = busy / time.Duration(timed)
		r.ProjectedTotal = r.AvgSegmentTime * time.Duration(r.Total)
	}
	r.RunTime = computeRunTime(events, s.ID)
	return r
}

// computeRunTime sums run_started..run_complete spans for one session. A run
// without a closing event ends at the session's last logged event.
func computeRunTime(events []log.LogEvent, sessionID string) time.Duration {
	var total time.Duration
	var start, last time.Time
	for _, e := range events {
		if e.SessionID != sessionID || e.Time.IsZero() {
			continue
		}
		switch e.Event {
		case log.EventRunStarted:
			if !start.IsZero() && last.After(start) {
				total += last.Sub(start)
			}
			start = e.Time
		case log.EventRunComplete:
			if !start.IsZero() && e.Time.After(start) {
				total += e.Time.Sub(start)
			}
			start = time.Time{}
		}
		last = e.Time
	}
	if !start.IsZero() && last.After(start) {
		total += last.Sub(start)
	}
	return total
}

// FormatReport produces a terminal-friendly, human-readable summary string.
func FormatReport(r *Report) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50) + "\n"

	b.WriteString(rule)
	b.WriteString("  Session Report\n")
	b.WriteString(rule)
	fmt.Fprintf(&b, "Session:      %s\n", r.SessionID)
	fmt.Fprintf(&b, "Project:      %s\n", r.Project)
	platforms := r.Primary
	if r.Fallback != "" {
		platforms += " (fallback " + r.Fallback + ")"
	}
	fmt.Fprintf(&b, "Platform:     %s\n", platforms)
	fmt.Fprintf(&b, "Aspect ratio: %s\n", r.AspectRatio)
	b.WriteString("\n")

	b.WriteString("Segments:\n")
	fmt.Fprintf(&b, "  Total:      %d\n", r.Total)
	fmt.Fprintf(&b, "  Completed:  %d (%.1f%%)\n", r.Completed, r.PercentComplete())
	fmt.Fprintf(&b, "  In flight:  %d\n", r.InFlight)
	fmt.Fprintf(&b, "  Pending:    %d\n", r.Pending)
	fmt.Fprintf(&b, "  Failed:     %d\n", r.Failed)
	if r.Fallbacks > 0 {
		fmt.Fprintf(&b, "  Fallbacks:  %d\n", r.Fallbacks)
	}
	if r.Retries > 0 {
		fmt.Fprintf(&b, "  Retries:    %d\n", r.Retries)
	}
	if len(r.ByPlatform) > 1 {
		names := make([]string, 0, len(r.ByPlatform))
		for n := range r.ByPlatform {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(&b, "  On %-8s %d\n", n+":", r.ByPlatform[n])
		}
	}
	b.WriteString("\n")

	b.WriteString("Time:\n")
	fmt.Fprintf(&b, "  Avg segment:     %.1fs\n", r.AvgSegmentTime.Seconds())
	fmt.Fprintf(&b, "  Projected total: %.1f min\n", r.ProjectedTotal.Minutes())
	if r.RunTime > 0 {
		fmt.Fprintf(&b, "  Run time:        %s\n", formatDuration(r.RunTime))
	}
	if r.Cost > 0 {
		fmt.Fprintf(&b, "\nCost:         %.2f\n", r.Cost)
	}
	if r.OutputPath != "" {
		fmt.Fprintf(&b, "\nOutput:       %s\n", r.OutputPath)
	}
	b.WriteString(rule)

	return b.String()
}

// WriteReport writes the formatted report to {dir}/report.md.
// Creates dir if it does not exist.
func WriteReport(dir string, report *Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	content := FormatReport(report)
	path := filepath.Join(dir, "report.md")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}

	return nil
}

// formatDuration produces a human-readable duration string such as "5m 32s"
// or "1h 12m 5s". Sub-second durations are shown as "< 1s".
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
