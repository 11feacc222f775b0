package workflow

import (
	"strings"
	"sync"
)

// breaker pauses submissions to a platform after consecutive submit
// failures. While paused, segments skip the remote call and fail over.
type breaker struct {
	mu        sync.Mutex
	threshold int
	failures  int
	paused    bool
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.paused = true
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.paused = false
}

func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// breakers keeps one breaker per platform. A zero threshold disables them.
type breakers struct {
	mu        sync.Mutex
	threshold int
	byName    map[string]*breaker
}

func newBreakers(threshold int) *breakers {
	return &breakers{threshold: threshold, byName: make(map[string]*breaker)}
}

// get returns nil when breakers are disabled.
func (bs *breakers) get(platform string) *breaker {
	if bs.threshold <= 0 {
		return nil
	}
	key := strings.ToLower(platform)
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.byName[key]
	if !ok {
		b = &breaker{threshold: bs.threshold}
		bs.byName[key] = b
	}
	return b
}

// reset closes every breaker. Called at the start of each retry round.
func (bs *breakers) reset() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for _, b := range bs.byName {
		b.recordSuccess()
	}
}
