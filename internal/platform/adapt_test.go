package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortCaps() Capabilities {
	return Capabilities{
		Name:          "Short",
		MaxDuration:   10,
		AspectRatios:  []string{"16:9", "9:16"},
		CostPerSecond: 2,
		QualityLevels: []string{"std"},
	}
}

func richRequest() Request {
	return Request{
		SceneID:     "scene-01",
		Prompt:      "a lighthouse at dusk",
		Duration:    15,
		AspectRatio: "21:9",
		Quality:     "ultra",
		Dialogue:    []Dialogue{{Text: "ahoy", End: 1.5, LipSync: true}},
		Camera:      &Camera{ShotSize: "wide", Params: &CameraParams{Pan: 2}},
		FirstLastFrame: &FrameHints{
			First: "first.png",
		},
	}
}

func TestAdaptStripsUnsupportedFeatures(t *testing.T) {
	req := richRequest()
	out, changes := Adapt(req, shortCaps())

	assert.Equal(t, 10, out.Duration)
	assert.False(t, out.WantsLipSync())
	assert.Nil(t, out.FirstLastFrame)
	assert.False(t, out.WantsCameraControl())
	assert.Equal(t, "wide", out.Camera.ShotSize)
	assert.Equal(t, "16:9", out.AspectRatio)
	assert.Empty(t, out.Quality)
	assert.Len(t, changes, 6)

	// The stored request is untouched.
	assert.Equal(t, 15, req.Duration)
	assert.True(t, req.WantsLipSync())
	assert.NotNil(t, req.FirstLastFrame)
	assert.True(t, req.WantsCameraControl())
}

func TestAdaptNoChangesWhenCapable(t *testing.T) {
	caps := Capabilities{
		MaxDuration:       60,
		AspectRatios:      []string{"21:9"},
		HasLipSync:        true,
		HasCameraControl:  true,
		HasFirstLastFrame: true,
		QualityLevels:     []string{"ultra"},
	}
	out, changes := Adapt(richRequest(), caps)
	assert.Empty(t, changes)
	assert.Equal(t, richRequest(), out)
}

func TestValidateWarnsButNeverBlocks(t *testing.T) {
	v := Validate(richRequest(), shortCaps())
	assert.False(t, v.OK())
	assert.Len(t, v.Warnings, 4)
	assert.Len(t, v.Suggestions, 1)

	ok := Validate(Request{Prompt: "x", Duration: 5, AspectRatio: "16:9"}, shortCaps())
	assert.True(t, ok.OK())
}

func TestEstimates(t *testing.T) {
	caps := Capabilities{CostPerSecond: 3, AvgGenerationTime: time.Minute}
	req := Request{Duration: 5}
	assert.InDelta(t, 15.0, EstimateCost(caps, req), 0.0001)
	assert.Equal(t, 30*time.Second, EstimateTime(caps, req))
}

type stubGateway struct {
	name string
	caps Capabilities
}

func (s stubGateway) Name() string               { return s.name }
func (s stubGateway) Capabilities() Capabilities { return s.caps }
func (s stubGateway) Convert(r Request) (Native, error) {
	return Native{Platform: s.name, Prompt: r.Prompt}, nil
}
func (s stubGateway) Submit(context.Context, Native) (string, error) { return "id", nil }
func (s stubGateway) Poll(context.Context, string) (PollResult, error) {
	return PollResult{Status: StatusDone}, nil
}
func (s stubGateway) Download(context.Context, string, string, string) (string, error) {
	return "", nil
}
func (s stubGateway) Cancel(context.Context, string) error { return nil }
func (s stubGateway) EstimateCost(r Request) float64       { return EstimateCost(s.caps, r) }
func (s stubGateway) EstimateTime(r Request) time.Duration { return EstimateTime(s.caps, r) }

func TestRegistryResolvesAliases(t *testing.T) {
	r := NewRegistry()
	r.Register(stubGateway{name: "jimeng"}, []string{"Jimeng-V30"})

	gw, err := r.Get(" JIMENG-v30 ")
	require.NoError(t, err)
	assert.Equal(t, "jimeng", gw.Name())
	assert.True(t, r.Has("jimeng"))

	_, err = r.Get("pika")
	require.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Contains(t, err.Error(), "jimeng")
}

func TestRegistryAdaptationOverride(t *testing.T) {
	r := NewRegistry()
	r.Register(stubGateway{name: "sora2"}, []string{"sora"})
	r.Register(stubGateway{name: "jimeng"}, nil)

	custom := func(req Request, _ Capabilities) (Request, []string) {
		req.Prompt = "rewritten"
		return req, []string{"prompt rewritten"}
	}
	r.RegisterAdaptation("sora", "jimeng", custom)

	out, changes := r.Adaptation("sora2", "JIMENG")(Request{Prompt: "p"}, Capabilities{})
	assert.Equal(t, "rewritten", out.Prompt)
	assert.Equal(t, []string{"prompt rewritten"}, changes)

	out, _ = r.Adaptation("jimeng", "sora2")(Request{Prompt: "p"}, Capabilities{})
	assert.Equal(t, "p", out.Prompt)
}

func TestRegistryWaitHonoursRateLimit(t *testing.T) {
	r := NewRegistry()
	r.Register(stubGateway{name: "slow"}, nil, WithRateLimit(60, 1))
	r.Register(stubGateway{name: "free"}, nil, WithRateLimit(0, 0))

	ctx := context.Background()
	require.NoError(t, r.Wait(ctx, "slow"))
	require.NoError(t, r.Wait(ctx, "free"))
	require.NoError(t, r.Wait(ctx, "free"))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := r.Wait(short, "slow")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownPlatform))
}

func TestRecommend(t *testing.T) {
	r := NewRegistry()
	r.Register(stubGateway{name: "cheap", caps: Capabilities{MaxDuration: 10, CostPerSecond: 1}}, nil)
	r.Register(stubGateway{name: "talky", caps: Capabilities{MaxDuration: 60, HasLipSync: true, HasCameraControl: true, CostPerSecond: 30}}, nil)
	r.Register(stubGateway{name: "framer", caps: Capabilities{MaxDuration: 10, HasFirstLastFrame: true, CostPerSecond: 17}}, nil)

	rec, err := r.Recommend(Requirements{NeedsLipSync: true})
	require.NoError(t, err)
	assert.Equal(t, "talky", rec.Recommended)
	assert.Empty(t, rec.Alternatives)
	assert.Contains(t, rec.Rationale, "lip sync")

	rec, err = r.Recommend(Requirements{PrioritizeCost: true})
	require.NoError(t, err)
	assert.Equal(t, "cheap", rec.Recommended)
	assert.Len(t, rec.Alternatives, 2)

	rec, err = r.Recommend(Requirements{PrioritizeQuality: true})
	require.NoError(t, err)
	assert.Equal(t, "talky", rec.Recommended)

	_, err = r.Recommend(Requirements{NeedsLipSync: true, MaxBudget: 100, Duration: 60})
	require.ErrorIs(t, err, ErrNoCandidate)
}
