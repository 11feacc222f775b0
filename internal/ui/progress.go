// Package ui provides terminal output for clipforge.
// This file implements the live progress display shown during a run.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"

	"github.com/berth-dev/clipforge/internal/workflow"
)

// SegmentStatus is the display status of one segment.
type SegmentStatus int

const (
	StatusPending SegmentStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

// SegmentState holds what the display knows about one segment.
type SegmentState struct {
	Index    int
	Platform string
	Status   SegmentStatus
	Progress int // platform-reported, -1 when unknown
	ETA      time.Duration
	Elapsed  time.Duration
	Error    string
}

// ProgressDisplay renders workflow events. It implements workflow.Sink.
type ProgressDisplay struct {
	mu          sync.Mutex
	out         io.Writer
	title       string
	isTTY       bool
	bar         progress.Model
	phase       string
	percent     int
	cost        float64
	segments    map[int]*SegmentState
	startTimes  map[int]time.Time
	linesDrawn  int
	lastPrinted map[int]SegmentStatus // non-TTY: last printed status per segment
}

// NewProgressDisplay creates a display writing to out. In-place redraws are
// used only when out is a terminal.
func NewProgressDisplay(title string, out io.Writer) *ProgressDisplay {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return &ProgressDisplay{
		out:         out,
		title:       title,
		isTTY:       isTTY,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		segments:    make(map[int]*SegmentState),
		startTimes:  make(map[int]time.Time),
		lastPrinted: make(map[int]SegmentStatus),
	}
}

// Emit records one event and redraws.
func (p *ProgressDisplay) Emit(e workflow.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case workflow.EventPhaseStarted:
		p.phase = e.Phase.String()
		if !p.isTTY {
			fmt.Fprintf(p.out, "== %s\n", p.phase)
		}
		return
	case workflow.EventPhaseCompleted:
		p.cost += e.Cost
		if !p.isTTY {
			fmt.Fprintf(p.out, "== %s done (cost %.2f)\n", e.Phase, e.Cost)
		}
		return
	}

	seg := p.segment(e.Segment)
	seg.Platform = e.Platform
	seg.Progress = e.SegmentProgress
	seg.ETA = e.ETA
	p.percent = e.Percent

	switch e.Type {
	case workflow.EventTaskStarted:
		seg.Status = StatusRunning
		seg.Error = ""
		p.startTimes[e.Segment] = e.Time
	case workflow.EventTaskProgress:
		seg.Status = StatusRunning
	case workflow.EventTaskCompleted:
		seg.Status = StatusCompleted
		if start, ok := p.startTimes[e.Segment]; ok {
			seg.Elapsed = e.Time.Sub(start)
		}
	case workflow.EventTaskError:
		seg.Status = StatusFailed
		seg.Error = e.Error
	}
	p.render()
}

func (p *ProgressDisplay) segment(i int) *SegmentState {
	seg, ok := p.segments[i]
	if !ok {
		seg = &SegmentState{Index: i, Progress: -1}
		p.segments[i] = seg
	}
	return seg
}

// Segments returns the current per-segment state in index order.
func (p *ProgressDisplay) Segments() []SegmentState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SegmentState, 0, len(p.segments))
	for _, i := range p.order() {
		out = append(out, *p.segments[i])
	}
	return out
}

func (p *ProgressDisplay) order() []int {
	idx := make([]int, 0, len(p.segments))
	for i := range p.segments {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Finish prints the summary line for a run.
func (p *ProgressDisplay) Finish(res *workflow.Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isTTY && p.linesDrawn > 0 {
		fmt.Fprint(p.out, "\n")
	}
	if res == nil {
		if err != nil {
			fmt.Fprintln(p.out, ErrorStyle.Render("Failed: "+err.Error()))
		}
		return
	}

	s := res.Summary
	line := fmt.Sprintf("Done: %d/%d segments completed", s.Completed, s.Total)
	if s.Failed > 0 {
		line += fmt.Sprintf(", %d failed", s.Failed)
	}
	line += fmt.Sprintf(" in %s, cost %.2f", formatDuration(res.TotalTime), res.TotalCost)
	fmt.Fprintln(p.out, line)
	for _, w := range res.Warnings {
		fmt.Fprintln(p.out, WarningStyle.Render("Warning: "+w))
	}
	if err != nil {
		fmt.Fprintln(p.out, ErrorStyle.Render(err.Error()))
	}
}

func (p *ProgressDisplay) render() {
	if !p.isTTY {
		p.renderPlain()
		return
	}
	p.renderTTY()
}

// renderTTY redraws in place using ANSI cursor movement.
func (p *ProgressDisplay) renderTTY() {
	if p.linesDrawn > 0 {
		fmt.Fprintf(p.out, "\033[%dA", p.linesDrawn)
	}

	var buf strings.Builder
	buf.WriteString("\033[2K" + TitleStyle.Render(fmt.Sprintf("clipforge - %s [%s]", p.title, p.phase)) + "\n")
	buf.WriteString("\033[2K" + p.bar.ViewAs(float64(p.percent)/100) + "\n")

	order := p.order()
	for _, i := range order {
		buf.WriteString("\033[2K")
		buf.WriteString(formatSegmentLine(p.segments[i]))
		buf.WriteString("\n")
	}

	fmt.Fprint(p.out, buf.String())
	p.linesDrawn = len(order) + 2
}

// renderPlain writes one line per status transition, for CI and pipes.
func (p *ProgressDisplay) renderPlain() {
	for _, i := range p.order() {
		seg := p.segments[i]
		if seg.Status == StatusPending {
			continue
		}
		if prev, seen := p.lastPrinted[i]; seen && prev == seg.Status {
			continue
		}
		fmt.Fprintf(p.out, "[%3d%%] %s\n", p.percent, formatSegmentLinePlain(seg))
		p.lastPrinted[i] = seg.Status
	}
}

func formatSegmentLine(seg *SegmentState) string {
	return fmt.Sprintf("  %s segment %-3d %-8s %s", statusIcon(seg.Status), seg.Index, seg.Platform, statusDetail(seg))
}

func formatSegmentLinePlain(seg *SegmentState) string {
	var status string
	switch seg.Status {
	case StatusRunning:
		status = "RUNNING"
	case StatusCompleted:
		status = fmt.Sprintf("DONE [%s]", formatDuration(seg.Elapsed))
	case StatusFailed:
		status = "FAILED: " + seg.Error
	default:
		status = "PENDING"
	}
	return fmt.Sprintf("segment %d (%s): %s", seg.Index, seg.Platform, status)
}

func statusIcon(status SegmentStatus) string {
	switch status {
	case StatusCompleted:
		return SuccessStyle.Render("✔")
	case StatusRunning:
		return WarningStyle.Render("…")
	case StatusFailed:
		return ErrorStyle.Render("✘")
	default:
		return DimStyle.Render("○")
	}
}

func statusDetail(seg *SegmentState) string {
	switch seg.Status {
	case StatusCompleted:
		return DimStyle.Render("[" + formatDuration(seg.Elapsed) + "]")
	case StatusRunning:
		detail := "running"
		if seg.Progress >= 0 {
			detail = fmt.Sprintf("%d%%", seg.Progress)
		}
		if seg.ETA > 0 {
			detail += ", eta " + formatDuration(seg.ETA)
		}
		return WarningStyle.Render("[" + detail + "]")
	case StatusFailed:
		msg := seg.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		return ErrorStyle.Render("[" + msg + "]")
	default:
		return DimStyle.Render("[pending]")
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}
