package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/platform"
)

// Phase numbers are fixed. A skipped phase keeps its number.
type Phase int

const (
	PhasePreviz Phase = iota
	PhaseSetDesign
	PhaseLighting
	PhaseGeneration
	PhaseUpscale
)

var phaseNames = [...]string{"previz", "set-design", "lighting", "generation", "upscale"}

// Phases lists every phase in execution order.
var Phases = []Phase{PhasePreviz, PhaseSetDesign, PhaseLighting, PhaseGeneration, PhaseUpscale}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase-%d", int(p))
	}
	return phaseNames[p]
}

// PhaseInput is what an optional phase sees.
type PhaseInput struct {
	SessionID string
	Project   string
	Requests  []platform.Request
	// Artifacts are the outputs of the phase that ran before this one.
	// For upscale they are the generated segment files in index order.
	Artifacts []string
}

// PhaseOutput is what an optional phase reports back.
type PhaseOutput struct {
	Cost      float64
	Artifacts []string
}

// PhaseRunner executes one optional phase through an external service.
type PhaseRunner interface {
	Run(ctx context.Context, in PhaseInput) (PhaseOutput, error)
}

// PhaseRunnerFunc adapts a function to PhaseRunner.
type PhaseRunnerFunc func(ctx context.Context, in PhaseInput) (PhaseOutput, error)

func (f PhaseRunnerFunc) Run(ctx context.Context, in PhaseInput) (PhaseOutput, error) {
	return f(ctx, in)
}

// PhaseResult records one executed phase.
type PhaseResult struct {
	Phase     Phase
	Cost      float64
	Duration  time.Duration
	Artifacts []string
}

func enabled(p Phase, cfg config.PhasesConfig) bool {
	switch p {
	case PhasePreviz:
		return cfg.Previz
	case PhaseSetDesign:
		return cfg.SetDesign
	case PhaseLighting:
		return cfg.Lighting
	case PhaseUpscale:
		return cfg.Upscale
	}
	return p == PhaseGeneration
}

// checkRunners fails when an optional phase is enabled with nothing to run it.
func checkRunners(cfg config.PhasesConfig, runners map[Phase]PhaseRunner) error {
	for _, p := range Phases {
		if p == PhaseGeneration || !enabled(p, cfg) {
			continue
		}
		if runners[p] == nil {
			return fmt.Errorf("%w: phase %s is enabled but has no runner", config.ErrInvalid, p)
		}
	}
	return nil
}
