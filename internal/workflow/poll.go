package workflow

import (
	"context"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/platform"
	"github.com/berth-dev/clipforge/internal/schedule"
	"github.com/berth-dev/clipforge/internal/segment"
)

// await polls t's remote job on a fixed interval until it reaches a terminal
// status or the poll timeout passes. A completed job is downloaded and the
// segment marked Completed. A non-empty reason means the attempt failed and
// the segment has not been marked yet. Poll call errors are retried on the
// next tick.
func (g *generation) await(ctx context.Context, t segment.Task, gw platform.Gateway, since time.Time) (reason string, err error) {
	exec := g.o.cfg.Execution
	deadline := since.Add(exec.PollTimeout())
	ticker := time.NewTicker(exec.PollInterval())
	defer ticker.Stop()

	state := t.State
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			// Best effort; the remote job is abandoned either way.
			_ = gw.Cancel(ctx, t.RemoteTaskID)
			return fmt.Sprintf("timed out after %s waiting for %s", exec.PollTimeout(), gw.Name()), nil
		}

		res, pollErr := gw.Poll(ctx, t.RemoteTaskID)
		if pollErr != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			g.o.logger.Emit(log.LogEvent{
				Event:     log.EventPollError,
				SessionID: g.id,
				Segment:   log.Index(t.Index),
				Platform:  gw.Name(),
				RemoteID:  t.RemoteTaskID,
				Error:     pollErr.Error(),
			})
			continue
		}

		switch res.Status {
		case platform.StatusQueued, platform.StatusProcessing:
			next := segment.StateSubmitted
			if res.Status == platform.StatusProcessing {
				next = segment.StateProcessing
			}
			if next != state {
				if _, err := g.o.store.UpdateSegment(ctx, g.id, t.Index, next, segment.Patch{}); err != nil {
					return "", err
				}
				state = next
			}
			g.progress(ctx, t, gw, res, since)

		case platform.StatusDone:
			return g.complete(ctx, t, gw, res, since)

		case platform.StatusFailed:
			msg := res.Error
			if msg == "" {
				msg = "generation failed"
			}
			return fmt.Sprintf("%s: %s", gw.Name(), msg), nil

		case platform.StatusExpired, platform.StatusNotFound:
			return fmt.Sprintf("%s: remote task %s", gw.Name(), res.Status), nil

		default:
			return fmt.Sprintf("%s: unexpected status %q", gw.Name(), res.Status), nil
		}
	}
}

// progress emits a task-progress event. ETA comes from the platform's
// generation time estimate minus time already spent.
func (g *generation) progress(ctx context.Context, t segment.Task, gw platform.Gateway, res platform.PollResult, since time.Time) {
	snap, err := g.o.store.Snapshot(ctx, g.id)
	if err != nil {
		return
	}
	eta := gw.EstimateTime(t.Request) - time.Since(since)
	if eta < 0 {
		eta = 0
	}
	c := schedule.Count(snap)
	g.events.Emit(Event{
		Type:            EventTaskProgress,
		SessionID:       g.id,
		Phase:           PhaseGeneration,
		Segment:         t.Index,
		Platform:        gw.Name(),
		Percent:         schedule.PercentComplete(snap),
		SegmentProgress: res.Progress,
		Current:         c.Completed,
		Total:           c.Total,
		ETA:             eta,
	})
}

// complete downloads the artifact, retrying transient failures, and marks
// the segment Completed.
func (g *generation) complete(ctx context.Context, t segment.Task, gw platform.Gateway, res platform.PollResult, since time.Time) (string, error) {
	var path string
	download := func() error {
		p, err := gw.Download(ctx, t.RemoteTaskID, res.ResultRef, g.outDir)
		if err != nil {
			return err
		}
		path = p
		return nil
	}
	if err := backoff.Retry(download, backoff.WithContext(g.o.downloadBackoff(), ctx)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("downloading from %s: %v", gw.Name(), err), nil
	}

	cost := gw.EstimateCost(t.Request)
	snap, err := g.o.store.UpdateSegment(ctx, g.id, t.Index, segment.StateCompleted, segment.Patch{
		ResultRef: path,
		RemoteRef: res.ResultRef,
		Cost:      cost,
	})
	if err != nil {
		return "", err
	}

	elapsed := time.Since(since)
	g.o.metrics.SegmentCompleted(ctx, gw.Name(), cost, elapsed)
	g.o.logger.Emit(log.LogEvent{
		Event:      log.EventSegmentCompleted,
		SessionID:  g.id,
		Segment:    log.Index(t.Index),
		Platform:   gw.Name(),
		RemoteID:   t.RemoteTaskID,
		Cost:       cost,
		DurationMs: elapsed.Milliseconds(),
	})
	c := schedule.Count(snap)
	g.events.Emit(Event{
		Type:            EventTaskCompleted,
		SessionID:       g.id,
		Phase:           PhaseGeneration,
		Segment:         t.Index,
		Platform:        gw.Name(),
		Percent:         schedule.PercentComplete(snap),
		SegmentProgress: 100,
		Current:         c.Completed,
		Total:           c.Total,
		Cost:            cost,
	})
	return "", nil
}
