// Package simulated provides an in-memory platform gateway. It renders nothing;
// it walks each submitted job through queued/processing to a scripted terminal
// status so the pipeline can be exercised without a real service.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/berth-dev/clipforge/internal/platform"
)

// Family selects which native parameter shape Convert produces.
type Family int

const (
	FamilyClip Family = iota
	FamilyScene
)

// Profile describes a simulated platform.
type Profile struct {
	Name         string
	Aliases      []string
	Family       Family
	Capabilities platform.Capabilities
}

// JimengProfile is a short-clip platform: 10s max, first/last frame hints, no lip sync.
func JimengProfile() Profile {
	return Profile{
		Name:    "jimeng",
		Aliases: []string{"jimeng-v30"},
		Family:  FamilyClip,
		Capabilities: platform.Capabilities{
			Name:              "Jimeng v3.0 Pro",
			MaxDuration:       10,
			AspectRatios:      []string{"16:9", "9:16", "1:1", "4:3", "3:4", "21:9"},
			HasFirstLastFrame: true,
			CostPerSecond:     17,
			AvgGenerationTime: 3 * time.Minute,
			QualityLevels:     []string{"v30", "v30_1080p", "v30_pro"},
		},
	}
}

// SoraProfile is a long-form platform: 60s max, lip sync and camera control.
func SoraProfile() Profile {
	return Profile{
		Name:    "sora2",
		Aliases: []string{"sora"},
		Family:  FamilyScene,
		Capabilities: platform.Capabilities{
			Name:              "Sora2",
			MaxDuration:       60,
			AspectRatios:      []string{"16:9", "9:16", "1:1"},
			HasLipSync:        true,
			HasCameraControl:  true,
			HasAudio:          true,
			CostPerSecond:     30,
			AvgGenerationTime: 50 * time.Second,
			QualityLevels:     []string{"standard", "high", "ultra"},
		},
	}
}

// Outcome scripts how a submitted job behaves.
type Outcome struct {
	SubmitErr error
	// Polls is how many non-terminal observations precede Final.
	Polls int
	Final platform.Status
	Error string
	// Hang keeps the job processing forever, to exercise local timeouts.
	Hang bool
}

// Decider picks the outcome for one submission. attempt counts prior
// submissions of the same prompt to this gateway, starting at 0.
type Decider func(req platform.Native, attempt int) Outcome

// Succeed is the default decider: one processing observation, then done.
func Succeed(platform.Native, int) Outcome {
	return Outcome{Polls: 1, Final: platform.StatusDone}
}

type job struct {
	req     platform.Native
	outcome Outcome
	polls   int
}

// Gateway is the in-memory platform.
type Gateway struct {
	profile Profile
	decide  Decider
	// DownloadFailures makes the next N downloads fail with a transient error.
	downloadFailures int

	mu        sync.Mutex
	jobs      map[string]*job
	attempts  map[string]int
	submitted []platform.Native
	cancelled []string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDecider scripts job outcomes.
func WithDecider(d Decider) Option {
	return func(g *Gateway) { g.decide = d }
}

// WithDownloadFailures makes the first n downloads fail.
func WithDownloadFailures(n int) Option {
	return func(g *Gateway) { g.downloadFailures = n }
}

// New creates a simulated gateway for profile.
func New(profile Profile, opts ...Option) *Gateway {
	g := &Gateway{
		profile:  profile,
		decide:   Succeed,
		jobs:     make(map[string]*job),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Aliases returns the alternate names the profile answers to.
func (g *Gateway) Aliases() []string { return g.profile.Aliases }

func (g *Gateway) Name() string { return g.profile.Name }

func (g *Gateway) Capabilities() platform.Capabilities { return g.profile.Capabilities }

// Convert maps the neutral request onto the profile's native family.
func (g *Gateway) Convert(req platform.Request) (platform.Native, error) {
	if req.Prompt == "" {
		return platform.Native{}, errors.New("empty prompt")
	}
	native := platform.Native{Platform: g.profile.Name, Prompt: req.Prompt}

	switch g.profile.Family {
	case FamilyScene:
		native.Params = platform.SceneParams{
			Seconds:     req.Duration,
			AspectRatio: req.AspectRatio,
			Quality:     req.Quality,
			LipSync:     req.WantsLipSync(),
			Dialogue:    req.Dialogue,
			Camera:      req.Camera,
		}
	default:
		params := platform.ClipParams{
			Frames:      framesFor(req.Duration),
			AspectRatio: req.AspectRatio,
			Quality:     req.Quality,
		}
		if req.FirstLastFrame != nil {
			params.FirstFrame = req.FirstLastFrame.First
			params.LastFrame = req.FirstLastFrame.Last
		}
		native.Params = params
	}
	return native, nil
}

// framesFor follows the 24fps+1 convention: 5s is 121 frames, 10s is 241.
func framesFor(seconds int) int {
	if seconds <= 0 {
		seconds = 10
	}
	return seconds*24 + 1
}

func (g *Gateway) Submit(ctx context.Context, req platform.Native) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := req.Prompt
	attempt := g.attempts[key]
	g.attempts[key] = attempt + 1
	g.submitted = append(g.submitted, req)

	outcome := g.decide(req, attempt)
	if outcome.SubmitErr != nil {
		return "", outcome.SubmitErr
	}
	if outcome.Final == "" {
		outcome.Final = platform.StatusDone
	}

	id := ksuid.New().String()
	g.jobs[id] = &job{req: req, outcome: outcome}
	return id, nil
}

func (g *Gateway) Poll(ctx context.Context, remoteTaskID string) (platform.PollResult, error) {
	if err := ctx.Err(); err != nil {
		return platform.PollResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	j, ok := g.jobs[remoteTaskID]
	if !ok {
		return platform.PollResult{Status: platform.StatusNotFound, Progress: -1}, nil
	}

	j.polls++
	if j.outcome.Hang || j.polls <= j.outcome.Polls {
		status := platform.StatusProcessing
		if j.polls == 1 {
			status = platform.StatusQueued
		}
		return platform.PollResult{Status: status, Progress: -1}, nil
	}

	res := platform.PollResult{Status: j.outcome.Final, Error: j.outcome.Error, Progress: -1}
	if j.outcome.Final == platform.StatusDone {
		res.ResultRef = "sim://" + g.profile.Name + "/" + remoteTaskID
		res.Progress = 100
	}
	return res, nil
}

func (g *Gateway) Download(ctx context.Context, remoteTaskID, resultRef, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	if g.downloadFailures > 0 {
		g.downloadFailures--
		g.mu.Unlock()
		return "", errors.New("simulated download failure")
	}
	_, ok := g.jobs[remoteTaskID]
	g.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no job %s", remoteTaskID)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	path := filepath.Join(destDir, remoteTaskID+".mp4")
	if err := os.WriteFile(path, []byte(resultRef), 0644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return path, nil
}

func (g *Gateway) Cancel(ctx context.Context, remoteTaskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, remoteTaskID)
	delete(g.jobs, remoteTaskID)
	return nil
}

func (g *Gateway) EstimateCost(req platform.Request) float64 {
	return platform.EstimateCost(g.profile.Capabilities, req)
}

func (g *Gateway) EstimateTime(req platform.Request) time.Duration {
	return platform.EstimateTime(g.profile.Capabilities, req)
}

// Submitted returns a copy of every native request received, in order.
func (g *Gateway) Submitted() []platform.Native {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]platform.Native, len(g.submitted))
	copy(out, g.submitted)
	return out
}

// Cancelled returns the remote ids passed to Cancel.
func (g *Gateway) Cancelled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.cancelled))
	copy(out, g.cancelled)
	return out
}
