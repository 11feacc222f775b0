package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/berth-dev/clipforge/internal/log"
	"github.com/berth-dev/clipforge/internal/platform"
	"github.com/berth-dev/clipforge/internal/segment"
)

// DefaultAutosaveInterval is the autosave period when none is configured.
const DefaultAutosaveInterval = 10 * time.Second

// ErrClosed is returned by every Store method after Close.
var ErrClosed = errors.New("session store closed")

// Option configures a Store.
type Option func(*Store)

// WithAutosaveInterval sets the autosave period. Zero or negative disables it.
func WithAutosaveInterval(d time.Duration) Option {
	return func(s *Store) { s.autosave = d }
}

// WithLogger routes skipped documents and autosave failures to the event log.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type op struct {
	fn    func()
	reply chan struct{}
}

// Store owns every open session. A single goroutine applies all mutations,
// including autosave ticks, so writes to one document never interleave.
// Methods are safe for concurrent use and return deep copies.
type Store struct {
	backend  Backend
	logger   *log.Logger
	now      func() time.Time
	autosave time.Duration

	open map[string]*Session

	ops       chan op
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewStore starts the store goroutine over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		now:      time.Now,
		autosave: DefaultAutosaveInterval,
		open:     make(map[string]*Session),
		ops:      make(chan op),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.stopped)

	var tick <-chan time.Time
	if s.autosave > 0 {
		ticker := time.NewTicker(s.autosave)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case o := <-s.ops:
			o.fn()
			close(o.reply)
		case <-tick:
			s.flush(true)
		case <-s.quit:
			s.flush(false)
			s.closeErr = s.backend.Close()
			return
		}
	}
}

// do runs fn on the store goroutine and waits for it to finish.
func (s *Store) do(ctx context.Context, fn func()) error {
	o := op{fn: fn, reply: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-o.reply
	return nil
}

// flush writes every open session. Autosave stamps UpdatedAt first.
// Failures are logged, never returned.
func (s *Store) flush(stamp bool) {
	now := s.now()
	for id, sess := range s.open {
		if stamp {
			sess.UpdatedAt = now
		}
		if err := s.backend.Save(sess); err != nil {
			s.logger.Emit(log.LogEvent{
				Event:     log.EventAutosaveFailed,
				SessionID: id,
				Error:     err.Error(),
			})
		}
	}
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, action, err)
}

// Create allocates a session for reqs and writes it before returning.
// The session stays open, and covered by autosave, until Release or Close.
func (s *Store) Create(ctx context.Context, projectName string, reqs []platform.Request, cfg PlatformConfig) (*Session, error) {
	var out *Session
	var opErr error
	err := s.do(ctx, func() {
		now := s.now()
		id := NewID(projectName, now)
		for s.idTaken(id) {
			now = now.Add(time.Millisecond)
			id = NewID(projectName, now)
		}
		sess := &Session{
			Version:        DocumentVersion,
			ID:             id,
			ProjectName:    projectName,
			Segments:       segment.NewTasks(reqs, cfg.Primary),
			CreatedAt:      now,
			UpdatedAt:      now,
			PlatformConfig: cfg,
		}
		if err := s.backend.Save(sess); err != nil {
			opErr = unavailable("writing new session", err)
			return
		}
		s.open[id] = sess
		out = sess.Clone()
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

// idTaken reports whether id belongs to an open or persisted session.
// Storage errors other than a missing or corrupt document count as free so
// an unreadable backend surfaces on Save instead of looping here.
func (s *Store) idTaken(id string) bool {
	if _, ok := s.open[id]; ok {
		return true
	}
	_, err := s.backend.Load(id)
	return err == nil || errors.Is(err, ErrCorrupt)
}

// Resume opens a session by exact id, or else the most recently updated
// session with that project name. Equal UpdatedAt falls back to the greater
// id. Returns ErrNotFound when nothing matches.
func (s *Store) Resume(ctx context.Context, idOrProject string) (*Session, error) {
	var out *Session
	var opErr error
	err := s.do(ctx, func() {
		if sess, ok := s.open[idOrProject]; ok {
			out = sess.Clone()
			return
		}

		sess, err := s.backend.Load(idOrProject)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			sess, err = s.latestForProject(idOrProject)
			if err != nil {
				opErr = err
				return
			}
		default:
			opErr = unavailable("loading session", err)
			return
		}

		if open, ok := s.open[sess.ID]; ok {
			out = open.Clone()
			return
		}
		sess.refreshCompleted()
		s.open[sess.ID] = sess
		out = sess.Clone()
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

func (s *Store) latestForProject(project string) (*Session, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	var best *Session
	for _, sess := range all {
		if sess.ProjectName != project {
			continue
		}
		if best == nil || newer(sess, best) {
			best = sess
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func newer(a, b *Session) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

// loadAll merges persisted documents with the open in-memory ones, which
// are always at least as new.
func (s *Store) loadAll() ([]*Session, error) {
	persisted, err := s.backend.LoadAll(func(ref string, err error) {
		s.logger.Emit(log.LogEvent{
			Event:  log.EventSessionSkipped,
			Reason: ref,
			Error:  err.Error(),
		})
	})
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}

	seen := make(map[string]bool, len(persisted))
	out := make([]*Session, 0, len(persisted)+len(s.open))
	for _, sess := range persisted {
		if open, ok := s.open[sess.ID]; ok {
			out = append(out, open)
		} else {
			out = append(out, sess)
		}
		seen[sess.ID] = true
	}
	for id, sess := range s.open {
		if !seen[id] {
			out = append(out, sess)
		}
	}
	return out, nil
}

// List returns every readable session, newest-updated first. Corrupt
// documents are skipped and logged.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	var out []*Session
	var opErr error
	err := s.do(ctx, func() {
		all, err := s.loadAll()
		if err != nil {
			opErr = err
			return
		}
		sort.Slice(all, func(i, j int) bool { return newer(all[i], all[j]) })
		out = make([]*Session, len(all))
		for i, sess := range all {
			out[i] = sess.Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

// UpdateSegment applies a state transition to one segment and writes the
// session through. An illegal transition returns segment.ErrInvalidTransition
// and changes nothing. A write failure is returned wrapped in ErrUnavailable;
// the in-memory change is kept and retried by the next autosave.
func (s *Store) UpdateSegment(ctx context.Context, id string, index int, next segment.State, p segment.Patch) (*Session, error) {
	return s.mutate(ctx, id, "writing segment update", func(sess *Session, now time.Time) error {
		if index < 0 || index >= len(sess.Segments) {
			return fmt.Errorf("segment %d out of range (session has %d)", index, len(sess.Segments))
		}
		return sess.Segments[index].Apply(next, p, now)
	})
}

// ResetFailed moves the listed Failed segments back to Pending and counts
// the retry.
func (s *Store) ResetFailed(ctx context.Context, id string, indices []int) (*Session, error) {
	return s.mutate(ctx, id, "writing segment reset", func(sess *Session, _ time.Time) error {
		for _, i := range indices {
			if i < 0 || i >= len(sess.Segments) {
				return fmt.Errorf("segment %d out of range (session has %d)", i, len(sess.Segments))
			}
			if sess.Segments[i].State != segment.StateFailed {
				return fmt.Errorf("segment %d is %s: %w", i, sess.Segments[i].State, segment.ErrInvalidTransition)
			}
		}
		for _, i := range indices {
			if err := sess.Segments[i].Reset(); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetOutputPath records where artifacts for the session are written.
func (s *Store) SetOutputPath(ctx context.Context, id, path string) (*Session, error) {
	return s.mutate(ctx, id, "writing output path", func(sess *Session, _ time.Time) error {
		sess.OutputPath = path
		return nil
	})
}

func (s *Store) mutate(ctx context.Context, id, action string, fn func(*Session, time.Time) error) (*Session, error) {
	var out *Session
	var opErr error
	err := s.do(ctx, func() {
		sess, ok := s.open[id]
		if !ok {
			opErr = fmt.Errorf("session %s is not open: %w", id, ErrNotFound)
			return
		}
		work := sess.Clone()
		now := s.now()
		if err := fn(work, now); err != nil {
			opErr = err
			return
		}
		work.UpdatedAt = now
		work.refreshCompleted()
		s.open[id] = work
		out = work.Clone()
		if err := s.backend.Save(work); err != nil {
			opErr = unavailable(action, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

// Snapshot returns a copy of an open session.
func (s *Store) Snapshot(ctx context.Context, id string) (*Session, error) {
	var out *Session
	err := s.do(ctx, func() {
		if sess, ok := s.open[id]; ok {
			out = sess.Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("session %s is not open: %w", id, ErrNotFound)
	}
	return out, nil
}

// Release flushes an open session and stops autosaving it.
func (s *Store) Release(ctx context.Context, id string) error {
	var opErr error
	err := s.do(ctx, func() {
		sess, ok := s.open[id]
		if !ok {
			return
		}
		delete(s.open, id)
		if err := s.backend.Save(sess); err != nil {
			opErr = unavailable("releasing session", err)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// SweepExpired deletes persisted sessions that are completed and were last
// updated more than retention ago. Incomplete sessions are never deleted,
// and neither are open ones.
func (s *Store) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	var count int
	var opErr error
	err := s.do(ctx, func() {
		all, err := s.loadAll()
		if err != nil {
			opErr = err
			return
		}
		cutoff := s.now().Add(-retention)
		for _, sess := range all {
			if _, ok := s.open[sess.ID]; ok {
				continue
			}
			if !sess.Completed || !sess.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := s.backend.Delete(sess.ID); err != nil {
				opErr = unavailable("sweeping sessions", err)
				return
			}
			count++
			s.logger.Emit(log.LogEvent{
				Event:     log.EventSessionSwept,
				SessionID: sess.ID,
				Project:   sess.ProjectName,
			})
		}
	})
	if err != nil {
		return 0, err
	}
	return count, opErr
}

// Close stops autosave, flushes open sessions once and closes the backend.
// Calling it again returns the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.stopped
	})
	return s.closeErr
}
