package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// ErrUnknownPlatform is returned when a name has no registered gateway.
var ErrUnknownPlatform = errors.New("unknown platform")

type entry struct {
	gateway Gateway
	limiter *rate.Limiter
}

// Registry holds the gateways available to one process. It is built once at
// start-up and passed to the orchestrator; there is no package-level state.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	aliases     map[string]string
	adaptations map[[2]string]AdaptFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:     make(map[string]*entry),
		aliases:     make(map[string]string),
		adaptations: make(map[[2]string]AdaptFunc),
	}
}

// RegisterOption tunes a registration.
type RegisterOption func(*entry)

// WithRateLimit caps submissions to perMinute with the given burst.
// A non-positive perMinute leaves the platform unlimited.
func WithRateLimit(perMinute float64, burst int) RegisterOption {
	return func(e *entry) {
		if perMinute <= 0 {
			e.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perMinute/60), burst)
	}
}

// Register adds gw under its own name plus any aliases. Names are case-insensitive.
func (r *Registry) Register(gw Gateway, aliases []string, opts ...RegisterOption) {
	e := &entry{gateway: gw}
	for _, opt := range opts {
		opt(e)
	}

	name := normalize(gw.Name())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = e
	for _, a := range aliases {
		r.aliases[normalize(a)] = name
	}
}

// RegisterAdaptation installs a pair-specific adaptation used when a segment
// moves from platform from to platform to. Pairs without one use Adapt.
func (r *Registry) RegisterAdaptation(from, to string, fn AdaptFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adaptations[[2]string{r.resolveLocked(from), r.resolveLocked(to)}] = fn
}

// Get returns the gateway registered under name or an alias.
func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[r.resolveLocked(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownPlatform, name, strings.Join(r.namesLocked(), ", "))
	}
	return e.gateway, nil
}

// Has reports whether name resolves to a registered gateway.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names returns the registered platform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Adaptation returns the adaptation for the from -> to pair.
func (r *Registry) Adaptation(from, to string) AdaptFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.adaptations[[2]string{r.resolveLocked(from), r.resolveLocked(to)}]; ok {
		return fn
	}
	return Adapt
}

// Wait blocks until the named platform's limiter admits one submission.
func (r *Registry) Wait(ctx context.Context, name string) error {
	r.mu.RLock()
	e, ok := r.entries[r.resolveLocked(name)]
	r.mu.RUnlock()
	if !ok || e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

func (r *Registry) resolveLocked(name string) string {
	n := normalize(name)
	if target, ok := r.aliases[n]; ok {
		return target
	}
	return n
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
