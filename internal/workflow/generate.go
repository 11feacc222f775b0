package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/platform"
	"github.com/berth-dev/clipforge/internal/schedule"
	"github.com/berth-dev/clipforge/internal/segment"
	"github.com/berth-dev/clipforge/internal/session"
)

// generation is the state of one run of the generation phase.
type generation struct {
	o        *Orchestrator
	id       string
	cfg      session.PlatformConfig
	outDir   string
	events   *dispatcher
	breakers *breakers

	// running counts live worker goroutines.
	running atomic.Int32
	wake    chan struct{}

	// mu pairs each change of handoff with the state write it belongs to,
	// and admit reads the snapshot and handoff together under it.
	mu sync.Mutex
	// handoff counts segments held Failed while a worker moves them to the
	// fallback. Those slots are not free.
	handoff int
}

func (g *generation) notify() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// run repeats passes until nothing is left to retry. A segment is reset
// for another pass only while its RetryCount is below max_retries.
func (g *generation) run(ctx context.Context) (PhaseResult, error) {
	maxRetries := g.o.cfg.Execution.MaxRetries
	for round := 0; ; round++ {
		g.breakers.reset()
		if err := g.pass(ctx); err != nil {
			return PhaseResult{Phase: PhaseGeneration}, err
		}

		snap, err := g.o.store.Snapshot(ctx, g.id)
		if err != nil {
			return PhaseResult{Phase: PhaseGeneration}, err
		}
		retry := schedule.Retryable(snap, maxRetries)
		if len(retry) == 0 {
			break
		}
		if _, err := g.o.store.ResetFailed(ctx, g.id, retry); err != nil {
			return PhaseResult{Phase: PhaseGeneration}, err
		}
		g.o.logger.Emit(log.LogEvent{
			Event:     log.EventSegmentsReset,
			SessionID: g.id,
			Indices:   retry,
			Attempt:   round + 1,
		})
	}

	snap, err := g.o.store.Snapshot(ctx, g.id)
	if err != nil {
		return PhaseResult{Phase: PhaseGeneration}, err
	}
	pr := PhaseResult{Phase: PhaseGeneration, Artifacts: resultsOf(snap)}
	for _, t := range snap.Segments {
		if t.State == segment.StateCompleted {
			pr.Cost += t.Cost
		}
	}
	if !schedule.IsComplete(snap) {
		return pr, &IncompleteError{
			SessionID: g.id,
			Summary:   snap.Summarize(),
			Failed:    schedule.FailedSegments(snap),
		}
	}
	return pr, nil
}

// pass drains every Pending segment once. Submissions happen here, in index
// order; each submitted segment is then followed by its own goroutine.
func (g *generation) pass(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	snap, err := g.o.store.Snapshot(ctx, g.id)
	if err != nil {
		return err
	}
	// Segments left in flight by an interrupted run are polled, not resubmitted.
	for _, t := range snap.Segments {
		if !t.State.InFlight() {
			continue
		}
		gw, err := g.o.registry.Get(t.Platform)
		if err != nil {
			return err
		}
		t := t
		g.spawn(eg, func() error { return g.follow(ctx, t, gw, time.Now()) })
	}

	loopErr := g.admit(ctx, eg)
	if loopErr != nil {
		cancel()
	}
	waitErr := eg.Wait()
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	if waitErr != nil {
		return waitErr
	}
	if loopErr != nil {
		return loopErr
	}
	return parent.Err()
}

// admit submits batches until no Pending segment remains and every worker
// has finished.
func (g *generation) admit(ctx context.Context, eg *errgroup.Group) error {
	exec := g.o.cfg.Execution
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		snap, err := g.o.store.Snapshot(ctx, g.id)
		capacity := exec.MaxConcurrency - g.handoff
		g.mu.Unlock()
		if err != nil {
			return err
		}

		batch := schedule.NextBatch(snap, capacity, exec.MaxBatchSize)
		if len(batch) > 0 {
			primary, err := g.o.registry.Get(g.cfg.Primary)
			if err != nil {
				return err
			}
			for _, t := range batch {
				if err := g.start(ctx, eg, t, primary); err != nil {
					return err
				}
			}
			continue
		}

		if g.running.Load() == 0 {
			return nil
		}
		select {
		case <-g.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *generation) spawn(eg *errgroup.Group, fn func() error) {
	g.running.Add(1)
	eg.Go(func() error {
		defer func() {
			g.running.Add(-1)
			g.notify()
		}()
		return fn()
	})
}

// start submits one Pending segment to the primary platform. A submission
// failure marks only that segment Failed and hands it to the fallback.
func (g *generation) start(ctx context.Context, eg *errgroup.Group, t segment.Task, gw platform.Gateway) error {
	remoteID, reason, err := g.submit(ctx, t, gw, t.Request, nil)
	if err != nil {
		return err
	}
	if reason != "" {
		failed, fb, err := g.fail(ctx, t, gw.Name(), reason)
		if err != nil {
			return err
		}
		if fb != nil {
			g.spawn(eg, func() error { return g.fallback(ctx, failed, fb) })
		}
		return nil
	}

	t.State = segment.StateSubmitted
	t.RemoteTaskID = remoteID
	t.Platform = gw.Name()
	g.spawn(eg, func() error { return g.follow(ctx, t, gw, time.Now()) })
	return nil
}

// submit validates, converts and submits one request. A non-empty reason
// means the platform refused it; err is reserved for local failures and
// cancellation. A non-nil release marks a fallback hand-off: the Submitted
// write then also stores req and frees the reserved slot under g.mu.
func (g *generation) submit(ctx context.Context, t segment.Task, gw platform.Gateway, req platform.Request, release func()) (remoteID, reason string, err error) {
	handoff := release != nil
	name := gw.Name()
	caps := gw.Capabilities()

	v := platform.Validate(req, caps)
	native, convErr := gw.Convert(req)
	if convErr != nil {
		return "", fmt.Sprintf("converting request for %s: %v", name, convErr), nil
	}
	cost := gw.EstimateCost(req)
	eta := gw.EstimateTime(req)

	b := g.breakers.get(name)
	if b != nil && b.open() {
		return "", fmt.Sprintf("%s paused after %d consecutive submission failures", name, b.threshold), nil
	}

	if err := g.o.registry.Wait(ctx, name); err != nil {
		return "", "", err
	}
	remoteID, subErr := gw.Submit(ctx, native)
	if subErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		if b != nil {
			b.recordFailure()
		}
		return "", fmt.Sprintf("submitting to %s: %v", name, subErr), nil
	}
	if b != nil {
		b.recordSuccess()
	}

	patch := segment.Patch{RemoteTaskID: remoteID, Platform: name}
	var snap *session.Session
	if handoff {
		patch.Request = &req
		g.mu.Lock()
		snap, err = g.o.store.UpdateSegment(ctx, g.id, t.Index, segment.StateSubmitted, patch)
		release()
		g.mu.Unlock()
		g.notify()
	} else {
		snap, err = g.o.store.UpdateSegment(ctx, g.id, t.Index, segment.StateSubmitted, patch)
	}
	if err != nil {
		return "", "", err
	}

	g.o.metrics.SegmentSubmitted(ctx, name)
	g.o.logger.Emit(log.LogEvent{
		Event:     log.EventSegmentSubmitted,
		SessionID: g.id,
		Segment:   log.Index(t.Index),
		Platform:  name,
		RemoteID:  remoteID,
		Cost:      cost,
		Data:      validationData(v, handoff),
	})
	c := schedule.Count(snap)
	g.events.Emit(Event{
		Type:            EventTaskStarted,
		SessionID:       g.id,
		Phase:           PhaseGeneration,
		Segment:         t.Index,
		Platform:        name,
		Percent:         schedule.PercentComplete(snap),
		SegmentProgress: -1,
		Current:         c.Completed,
		Total:           c.Total,
		ETA:             eta,
		Cost:            cost,
	})
	return remoteID, "", nil
}

func validationData(v platform.Validation, handoff bool) map[string]any {
	if v.OK() && len(v.Suggestions) == 0 && !handoff {
		return nil
	}
	data := map[string]any{}
	if len(v.Warnings) > 0 {
		data["warnings"] = v.Warnings
	}
	if len(v.Suggestions) > 0 {
		data["suggestions"] = v.Suggestions
	}
	if handoff {
		data["fallback"] = true
	}
	return data
}

// fallbackFor returns the fallback gateway t may still be handed to, or nil.
func (g *generation) fallbackFor(t segment.Task, from string) platform.Gateway {
	fb := g.cfg.Fallback
	if fb == "" || t.FallbackUsed || strings.EqualFold(fb, from) {
		return nil
	}
	gw, err := g.o.registry.Get(fb)
	if err != nil || strings.EqualFold(gw.Name(), from) {
		return nil
	}
	return gw
}

// fail marks t Failed. When a fallback will follow, the segment's slot is
// reserved before the state change so admission never over-commits; the
// caller must then run fallback, which releases it.
func (g *generation) fail(ctx context.Context, t segment.Task, platformName, reason string) (segment.Task, platform.Gateway, error) {
	fb := g.fallbackFor(t, platformName)
	g.mu.Lock()
	if fb != nil {
		g.handoff++
	}
	snap, err := g.o.store.UpdateSegment(ctx, g.id, t.Index, segment.StateFailed, segment.Patch{Error: reason, Platform: platformName})
	if err != nil && fb != nil {
		g.handoff--
	}
	g.mu.Unlock()
	if err != nil {
		if fb != nil {
			g.notify()
		}
		return t, nil, err
	}

	g.o.metrics.SegmentFailed(ctx, platformName)
	g.o.logger.Emit(log.LogEvent{
		Event:     log.EventSegmentFailed,
		SessionID: g.id,
		Segment:   log.Index(t.Index),
		Platform:  platformName,
		Error:     reason,
		Attempt:   t.RetryCount + 1,
	})
	c := schedule.Count(snap)
	g.events.Emit(Event{
		Type:            EventTaskError,
		SessionID:       g.id,
		Phase:           PhaseGeneration,
		Segment:         t.Index,
		Platform:        platformName,
		Percent:         schedule.PercentComplete(snap),
		SegmentProgress: -1,
		Current:         c.Completed,
		Total:           c.Total,
		Error:           reason,
	})
	return snap.Segments[t.Index], fb, nil
}

// fallback adapts the request and submits it once to gw, then follows the
// new remote job. It releases the slot reserved by fail.
func (g *generation) fallback(ctx context.Context, t segment.Task, gw platform.Gateway) error {
	// release runs with g.mu held.
	released := false
	release := func() {
		if !released {
			released = true
			g.handoff--
		}
	}
	defer func() {
		g.mu.Lock()
		release()
		g.mu.Unlock()
		g.notify()
	}()

	from := t.Platform
	adapt := g.o.registry.Adaptation(from, gw.Name())
	req, changes := adapt(t.Request, gw.Capabilities())
	g.o.metrics.Fallback(ctx, from, gw.Name())
	g.o.logger.Emit(log.LogEvent{
		Event:     log.EventSegmentFallback,
		SessionID: g.id,
		Segment:   log.Index(t.Index),
		Platform:  gw.Name(),
		Reason:    t.LastError,
		Data:      map[string]any{"from": from, "changes": changes},
	})

	remoteID, reason, err := g.submit(ctx, t, gw, req, release)
	if err != nil {
		return err
	}
	if reason != "" {
		// The segment stays Failed with the primary's error; there is no
		// second fallback.
		g.o.logger.Emit(log.LogEvent{
			Event:     log.EventSegmentFailed,
			SessionID: g.id,
			Segment:   log.Index(t.Index),
			Platform:  gw.Name(),
			Error:     reason,
		})
		g.o.metrics.SegmentFailed(ctx, gw.Name())
		return nil
	}

	t.State = segment.StateSubmitted
	t.RemoteTaskID = remoteID
	t.Platform = gw.Name()
	t.FallbackUsed = true
	t.LastError = ""
	t.Request = req
	return g.follow(ctx, t, gw, time.Now())
}

// follow polls t to a terminal state. On failure it marks the segment Failed
// and, if still allowed, moves it to the fallback.
func (g *generation) follow(ctx context.Context, t segment.Task, gw platform.Gateway, since time.Time) error {
	reason, err := g.await(ctx, t, gw, since)
	if err != nil || reason == "" {
		return err
	}
	failed, fb, err := g.fail(ctx, t, gw.Name(), reason)
	if err != nil || fb == nil {
		return err
	}
	return g.fallback(ctx, failed, fb)
}
