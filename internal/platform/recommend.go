package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoCandidate is returned when no registered platform meets the requirements.
var ErrNoCandidate = errors.New("no platform meets the requirements")

// Requirements narrows platform selection.
type Requirements struct {
	NeedsLipSync        bool
	NeedsCameraControl  bool
	NeedsFirstLastFrame bool
	MaxBudget           float64 // 0 means no budget
	Duration            int     // total seconds, used with MaxBudget
	PrioritizeCost      bool
	PrioritizeQuality   bool
}

// Recommendation is the outcome of Recommend.
type Recommendation struct {
	Recommended  string
	Alternatives []string
	Rationale    string
}

// Recommend ranks registered platforms against req.
func (r *Registry) Recommend(req Requirements) (Recommendation, error) {
	type candidate struct {
		name string
		caps Capabilities
	}

	r.mu.RLock()
	var candidates []candidate
	for _, name := range r.namesLocked() {
		caps := r.entries[name].gateway.Capabilities()
		if req.NeedsLipSync && !caps.HasLipSync {
			continue
		}
		if req.NeedsCameraControl && !caps.HasCameraControl {
			continue
		}
		if req.NeedsFirstLastFrame && !caps.HasFirstLastFrame {
			continue
		}
		if req.MaxBudget > 0 && req.Duration > 0 && float64(req.Duration)*caps.CostPerSecond > req.MaxBudget {
			continue
		}
		candidates = append(candidates, candidate{name: name, caps: caps})
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return Recommendation{}, ErrNoCandidate
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].caps, candidates[j].caps
		switch {
		case req.PrioritizeCost:
			return a.CostPerSecond < b.CostPerSecond
		case req.PrioritizeQuality:
			return qualityScore(a) > qualityScore(b)
		default:
			return balanceScore(a) > balanceScore(b)
		}
	})

	rec := Recommendation{Recommended: candidates[0].name}
	for i := 1; i < len(candidates) && i < 3; i++ {
		rec.Alternatives = append(rec.Alternatives, candidates[i].name)
	}
	rec.Rationale = rationale(candidates[0].caps, req)
	return rec, nil
}

func qualityScore(c Capabilities) float64 {
	score := 0.0
	if c.HasLipSync {
		score += 3
	}
	if c.HasCameraControl {
		score += 2
	}
	if c.HasFirstLastFrame {
		score += 2
	}
	if c.HasAudio {
		score++
	}
	return score + float64(c.MaxDuration)/10
}

// balanceScore is quality per unit cost; free platforms rank by quality alone.
func balanceScore(c Capabilities) float64 {
	if c.CostPerSecond <= 0 {
		return qualityScore(c)
	}
	return qualityScore(c) / c.CostPerSecond
}

func rationale(c Capabilities, req Requirements) string {
	var reasons []string
	if req.PrioritizeCost {
		reasons = append(reasons, fmt.Sprintf("lowest cost at %.2f/sec", c.CostPerSecond))
	}
	if req.PrioritizeQuality {
		reasons = append(reasons, "highest capability score")
	}
	if req.NeedsLipSync {
		reasons = append(reasons, "supports lip sync")
	}
	if req.NeedsCameraControl {
		reasons = append(reasons, "supports camera control")
	}
	if req.NeedsFirstLastFrame {
		reasons = append(reasons, "supports first/last frame control")
	}
	if !req.PrioritizeCost && !req.PrioritizeQuality {
		reasons = append(reasons, fmt.Sprintf("best quality/cost balance (score %.1f, %.2f/sec)", qualityScore(c), c.CostPerSecond))
	}
	return strings.Join(reasons, "; ")
}
