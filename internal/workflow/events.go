package workflow

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a progress notification.
type EventType string

const (
	EventTaskStarted    EventType = "task-started"
	EventTaskProgress   EventType = "task-progress"
	EventTaskCompleted  EventType = "task-completed"
	EventTaskError      EventType = "task-error"
	EventPhaseStarted   EventType = "phase-started"
	EventPhaseCompleted EventType = "phase-completed"
)

// Event is one progress notification. Segment fields are zero for phase
// events; phase fields are set on every event.
type Event struct {
	Type      EventType
	Time      time.Time
	SessionID string
	Phase     Phase

	Segment  int
	Platform string
	// Percent is the share of Completed segments in the session.
	Percent int
	// SegmentProgress is platform-reported progress of one remote job,
	// or -1 when the platform does not report it.
	SegmentProgress int
	Current         int
	Total           int
	ETA             time.Duration
	Cost            float64
	Error           string
}

// Sink receives events. Emit must not retain the event past return.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

const eventBuffer = 256

// flushTimeout bounds how long closing a dispatcher waits for a slow sink.
var flushTimeout = time.Second

// dispatcher hands events to a sink on its own goroutine. Emit never blocks;
// events are dropped when the buffer is full.
type dispatcher struct {
	ch      chan Event
	sink    Sink
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func newDispatcher(sink Sink) *dispatcher {
	if sink == nil {
		sink = nopSink{}
	}
	d := &dispatcher{
		ch:   make(chan Event, eventBuffer),
		sink: sink,
		done: make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		for e := range d.ch {
			d.sink.Emit(e)
		}
	}()
	return d
}

func (d *dispatcher) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- e:
	default:
		d.dropped.Add(1)
	}
}

// Dropped counts events lost to a full buffer.
func (d *dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops accepting events and waits up to flushTimeout for the sink
// to drain the buffer.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(flushTimeout):
	}
}
