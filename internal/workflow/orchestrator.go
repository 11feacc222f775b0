// Package workflow drives a job through the phase pipeline: optional design
// phases, segment generation on remote platforms, and optional upscaling.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/job"
	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/metrics"
	"github.com/berth-dev/clipforge/internal/platform"
	"github.com/berth-dev/clipforge/internal/schedule"
	"github.com/berth-dev/clipforge/internal/segment"
	"github.com/berth-dev/clipforge/internal/session"
)

// SessionStore is the persistence the orchestrator needs. *session.Store
// implements it.
type SessionStore interface {
	Create(ctx context.Context, projectName string, reqs []platform.Request, cfg session.PlatformConfig) (*session.Session, error)
	Resume(ctx context.Context, idOrProject string) (*session.Session, error)
	List(ctx context.Context) ([]*session.Session, error)
	UpdateSegment(ctx context.Context, id string, index int, next segment.State, p segment.Patch) (*session.Session, error)
	ResetFailed(ctx context.Context, id string, indices []int) (*session.Session, error)
	SetOutputPath(ctx context.Context, id, path string) (*session.Session, error)
	Snapshot(ctx context.Context, id string) (*session.Session, error)
	Release(ctx context.Context, id string) error
	SweepExpired(ctx context.Context, retention time.Duration) (int, error)
}

// IncompleteError is returned when generation ends with Failed segments.
// Phases after generation do not run.
type IncompleteError struct {
	SessionID string
	Summary   session.Summary
	Failed    []segment.Task
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("generation incomplete: %d of %d segments failed (resume with session %s)",
		e.Summary.Failed, e.Summary.Total, e.SessionID)
}

// Result describes a finished run. TotalCost and TotalTime cover the phases
// that executed.
type Result struct {
	Project    string
	SessionID  string
	OutputPath string
	Phases     []PhaseResult
	TotalCost  float64
	TotalTime  time.Duration
	Summary    session.Summary
	Warnings   []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner registers the runner for an optional phase.
func WithRunner(p Phase, r PhaseRunner) Option {
	return func(o *Orchestrator) { o.runners[p] = r }
}

// WithSink sets the progress sink. It is wrapped so it can never block a run.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithLogger sets the event log.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metric recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithOutputDir sets where each session's artifacts are downloaded.
func WithOutputDir(dir string) Option {
	return func(o *Orchestrator) { o.outputDir = dir }
}

// WithDownloadBackoff replaces the download retry policy.
func WithDownloadBackoff(factory func() backoff.BackOff) Option {
	return func(o *Orchestrator) { o.downloadBackoff = factory }
}

// Orchestrator runs jobs. It holds no per-run state and may run several
// sessions one after another.
type Orchestrator struct {
	cfg      *config.Config
	store    SessionStore
	registry *platform.Registry

	runners         map[Phase]PhaseRunner
	sink            Sink
	logger          *log.Logger
	metrics         *metrics.Recorder
	outputDir       string
	downloadBackoff func() backoff.BackOff
}

// New creates an Orchestrator.
func New(cfg *config.Config, store SessionStore, registry *platform.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		runners:   make(map[Phase]PhaseRunner),
		outputDir: "output",
		downloadBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, 4)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// checkPlatforms fails when a configured platform is not registered.
func (o *Orchestrator) checkPlatforms(names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := o.registry.Get(name); err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
	}
	return nil
}

func (o *Orchestrator) preflight() error {
	if err := o.cfg.Validate(); err != nil {
		return err
	}
	return checkRunners(o.cfg.Phases, o.runners)
}

// StartJob creates a session for j and runs the pipeline. Configuration
// problems are reported before any session is written or remote call made.
func (o *Orchestrator) StartJob(ctx context.Context, j *job.Job) (*Result, error) {
	if err := o.preflight(); err != nil {
		return nil, err
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	primary, fallback := o.cfg.Platforms.Primary, o.cfg.Platforms.Fallback
	if err := o.checkPlatforms(primary, fallback); err != nil {
		return nil, err
	}

	reqs := j.Requests()
	warnings := o.budgetWarnings(j, primary, reqs)

	sess, err := o.store.Create(ctx, j.Project, reqs, session.PlatformConfig{
		Primary:         primary,
		Fallback:        fallback,
		AspectRatio:     j.AspectRatio,
		Quality:         j.Quality,
		SegmentDuration: j.SegmentDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	out := filepath.Join(o.outputDir, sess.ID)
	if sess, err = o.store.SetOutputPath(ctx, sess.ID, out); err != nil {
		return nil, fmt.Errorf("recording output path: %w", err)
	}

	res, err := o.run(ctx, sess, false)
	if res != nil {
		res.Warnings = append(warnings, res.Warnings...)
	}
	return res, err
}

// ResumeJob continues a session by id or project name. Completed segments
// are never resubmitted; in-flight ones are polled again. Failed segments
// are reset once up front, so resuming is the operator's retry of the
// failed subset; max_retries bounds only the automatic rounds after that.
// Design phases are skipped once generation has started.
func (o *Orchestrator) ResumeJob(ctx context.Context, idOrProject string) (*Result, error) {
	if err := o.preflight(); err != nil {
		return nil, err
	}
	sess, err := o.store.Resume(ctx, idOrProject)
	if err != nil {
		return nil, fmt.Errorf("resuming %s: %w", idOrProject, err)
	}
	abort := func(err error) (*Result, error) {
		_ = o.store.Release(context.WithoutCancel(ctx), sess.ID)
		return nil, err
	}

	names := []string{sess.PlatformConfig.Primary, sess.PlatformConfig.Fallback}
	for _, t := range sess.Segments {
		if t.State.InFlight() {
			names = append(names, t.Platform)
		}
	}
	if err := o.checkPlatforms(names...); err != nil {
		return abort(err)
	}

	if sess.OutputPath == "" {
		if sess, err = o.store.SetOutputPath(ctx, sess.ID, filepath.Join(o.outputDir, sess.ID)); err != nil {
			return abort(fmt.Errorf("recording output path: %w", err))
		}
	}

	started := false
	for _, t := range sess.Segments {
		if t.State != segment.StatePending || t.RetryCount > 0 {
			started = true
			break
		}
	}

	if failed := schedule.ResetFailed(sess); len(failed) > 0 {
		if sess, err = o.store.ResetFailed(ctx, sess.ID, failed); err != nil {
			return abort(fmt.Errorf("resetting failed segments: %w", err))
		}
		o.logger.Emit(log.LogEvent{
			Event:     log.EventSegmentsReset,
			SessionID: sess.ID,
			Indices:   failed,
			Reason:    "resume",
		})
	}
	return o.run(ctx, sess, started)
}

// ListSessions summarizes persisted sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]session.Summary, error) {
	all, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]session.Summary, len(all))
	for i, s := range all {
		out[i] = s.Summarize()
	}
	return out, nil
}

// SweepExpired removes completed sessions older than days.
func (o *Orchestrator) SweepExpired(ctx context.Context, days int) (int, error) {
	return o.store.SweepExpired(ctx, time.Duration(days)*24*time.Hour)
}

func (o *Orchestrator) budgetWarnings(j *job.Job, primary string, reqs []platform.Request) []string {
	gw, err := o.registry.Get(primary)
	if err != nil {
		return nil
	}
	costs := make([]float64, len(reqs))
	for i, r := range reqs {
		costs[i] = gw.EstimateCost(r)
	}
	return j.BudgetWarnings(costs)
}

// run executes the pipeline for an open session and releases it on return.
func (o *Orchestrator) run(ctx context.Context, sess *session.Session, generationStarted bool) (res *Result, err error) {
	events := newDispatcher(o.sink)
	defer events.Close()
	defer func() {
		if relErr := o.store.Release(context.WithoutCancel(ctx), sess.ID); relErr != nil && err == nil {
			err = relErr
		}
		outcome := "completed"
		var inc *IncompleteError
		switch {
		case errors.As(err, &inc):
			outcome = "incomplete"
		case err != nil:
			outcome = "error"
		}
		o.metrics.SessionFinished(context.WithoutCancel(ctx), outcome)
	}()

	start := time.Now()
	res = &Result{
		Project:    sess.ProjectName,
		SessionID:  sess.ID,
		OutputPath: sess.OutputPath,
	}
	o.logger.Emit(log.LogEvent{
		Event:     log.EventRunStarted,
		SessionID: sess.ID,
		Project:   sess.ProjectName,
		Total:     len(sess.Segments),
	})

	var artifacts []string
	for _, p := range Phases {
		if !enabled(p, o.cfg.Phases) {
			continue
		}
		if p < PhaseGeneration && generationStarted {
			continue
		}

		events.Emit(Event{Type: EventPhaseStarted, SessionID: sess.ID, Phase: p})
		o.logger.Emit(log.LogEvent{Event: log.EventPhaseStarted, SessionID: sess.ID, Phase: p.String()})
		phaseStart := time.Now()

		var pr PhaseResult
		if p == PhaseGeneration {
			g := &generation{
				o:        o,
				id:       sess.ID,
				cfg:      sess.PlatformConfig,
				outDir:   sess.OutputPath,
				events:   events,
				breakers: newBreakers(o.cfg.Execution.CircuitBreakerThreshold),
				wake:     make(chan struct{}, 1),
			}
			pr, err = g.run(ctx)
		} else {
			var out PhaseOutput
			out, err = o.runners[p].Run(ctx, PhaseInput{
				SessionID: sess.ID,
				Project:   sess.ProjectName,
				Requests:  requestsOf(sess),
				Artifacts: artifacts,
			})
			pr = PhaseResult{Phase: p, Cost: out.Cost, Artifacts: out.Artifacts}
			if err != nil {
				err = fmt.Errorf("phase %s: %w", p, err)
			}
		}
		pr.Duration = time.Since(phaseStart)

		if snap, snapErr := o.store.Snapshot(context.WithoutCancel(ctx), sess.ID); snapErr == nil {
			res.Summary = snap.Summarize()
		}
		if err != nil {
			res.TotalTime = time.Since(start)
			return res, err
		}

		res.Phases = append(res.Phases, pr)
		res.TotalCost += pr.Cost
		artifacts = pr.Artifacts
		o.metrics.PhaseFinished(ctx, p.String(), pr.Duration)
		events.Emit(Event{Type: EventPhaseCompleted, SessionID: sess.ID, Phase: p, Cost: pr.Cost})
		o.logger.Emit(log.LogEvent{
			Event:      log.EventPhaseCompleted,
			SessionID:  sess.ID,
			Phase:      p.String(),
			Cost:       pr.Cost,
			DurationMs: pr.Duration.Milliseconds(),
		})
	}

	res.TotalTime = time.Since(start)
	o.logger.Emit(log.LogEvent{
		Event:      log.EventRunComplete,
		SessionID:  sess.ID,
		Project:    sess.ProjectName,
		Completed:  res.Summary.Completed,
		Total:      res.Summary.Total,
		Cost:       res.TotalCost,
		DurationMs: res.TotalTime.Milliseconds(),
	})
	return res, nil
}

func requestsOf(s *session.Session) []platform.Request {
	out := make([]platform.Request, len(s.Segments))
	for i, t := range s.Segments {
		out[i] = t.Request
	}
	return out
}

// resultsOf returns the artifact paths of a completed session in index order.
func resultsOf(s *session.Session) []string {
	out := make([]string, 0, len(s.Segments))
	for _, t := range s.Segments {
		if t.State == segment.StateCompleted {
			out = append(out, t.ResultRef)
		}
	}
	return out
}
