package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/clipforge/internal/config"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	bs := newBreakers(2)
	b := bs.get("Jimeng")
	require.NotNil(t, b)
	assert.Same(t, b, bs.get("jimeng"))

	b.recordFailure()
	assert.False(t, b.open())
	b.recordFailure()
	assert.True(t, b.open())

	bs.reset()
	assert.False(t, b.open())
}

func TestBreakerSuccessClearsFailures(t *testing.T) {
	b := newBreakers(2).get("sora2")
	b.recordFailure()
	b.recordSuccess()
	b.recordFailure()
	assert.False(t, b.open())
}

func TestBreakersDisabled(t *testing.T) {
	assert.Nil(t, newBreakers(0).get("jimeng"))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	old := flushTimeout
	flushTimeout = 5 * time.Millisecond
	block := make(chan struct{})
	t.Cleanup(func() {
		flushTimeout = old
		close(block)
	})

	d := newDispatcher(SinkFunc(func(Event) { <-block }))
	start := time.Now()
	for i := 0; i < eventBuffer+10; i++ {
		d.Emit(Event{Type: EventTaskProgress, Segment: i})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, d.Dropped())

	d.Close()
	d.Close()
	d.Emit(Event{Type: EventTaskProgress})
}

func TestPhaseNames(t *testing.T) {
	assert.Equal(t, "set-design", PhaseSetDesign.String())
	assert.Equal(t, "generation", PhaseGeneration.String())
	assert.Equal(t, "phase-9", Phase(9).String())
}

func TestCheckRunners(t *testing.T) {
	cfg := config.PhasesConfig{SetDesign: true}
	require.ErrorIs(t, checkRunners(cfg, nil), config.ErrInvalid)

	runners := map[Phase]PhaseRunner{PhaseSetDesign: PhaseRunnerFunc(nil)}
	require.NoError(t, checkRunners(cfg, runners))
	require.NoError(t, checkRunners(config.PhasesConfig{}, nil))
}
