package simulated

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/clipforge/internal/platform"
)

func TestConvertFamilies(t *testing.T) {
	req := platform.Request{
		Prompt:         "harbour at night",
		Duration:       5,
		AspectRatio:    "16:9",
		Dialogue:       []platform.Dialogue{{Text: "hi", LipSync: true}},
		FirstLastFrame: &platform.FrameHints{First: "a.png", Last: "b.png"},
	}

	clip, err := New(JimengProfile()).Convert(req)
	require.NoError(t, err)
	cp, ok := clip.Params.(platform.ClipParams)
	require.True(t, ok)
	assert.Equal(t, 121, cp.Frames)
	assert.Equal(t, "a.png", cp.FirstFrame)
	assert.Equal(t, "b.png", cp.LastFrame)
	assert.Equal(t, "clip", clip.Family())

	scene, err := New(SoraProfile()).Convert(req)
	require.NoError(t, err)
	sp, ok := scene.Params.(platform.SceneParams)
	require.True(t, ok)
	assert.Equal(t, 5, sp.Seconds)
	assert.True(t, sp.LipSync)
	assert.Equal(t, "scene", scene.Family())

	_, err = New(JimengProfile()).Convert(platform.Request{})
	require.Error(t, err)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	gw := New(JimengProfile(), WithDecider(func(platform.Native, int) Outcome {
		return Outcome{Polls: 2, Final: platform.StatusDone}
	}))

	native, err := gw.Convert(platform.Request{Prompt: "p", Duration: 10})
	require.NoError(t, err)
	id, err := gw.Submit(ctx, native)
	require.NoError(t, err)

	var statuses []platform.Status
	var last platform.PollResult
	for i := 0; i < 3; i++ {
		last, err = gw.Poll(ctx, id)
		require.NoError(t, err)
		statuses = append(statuses, last.Status)
	}
	assert.Equal(t, []platform.Status{platform.StatusQueued, platform.StatusProcessing, platform.StatusDone}, statuses)
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, "sim://jimeng/"+id, last.ResultRef)

	dir := t.TempDir()
	path, err := gw.Download(ctx, id, last.ResultRef, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, last.ResultRef, string(data))

	missing, err := gw.Poll(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, platform.StatusNotFound, missing.Status)
}

func TestDeciderSeesAttempts(t *testing.T) {
	ctx := context.Background()
	var attempts []int
	gw := New(SoraProfile(), WithDecider(func(req platform.Native, attempt int) Outcome {
		attempts = append(attempts, attempt)
		if attempt == 0 {
			return Outcome{SubmitErr: errors.New("busy")}
		}
		return Outcome{}
	}))
	native := platform.Native{Platform: "sora2", Prompt: "same"}

	_, err := gw.Submit(ctx, native)
	require.Error(t, err)
	_, err = gw.Submit(ctx, native)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, attempts)
	assert.Len(t, gw.Submitted(), 2)
}

func TestCancelAndDownloadFailures(t *testing.T) {
	ctx := context.Background()
	gw := New(JimengProfile(), WithDownloadFailures(1), WithDecider(func(platform.Native, int) Outcome {
		return Outcome{Hang: true}
	}))
	id, err := gw.Submit(ctx, platform.Native{Prompt: "p"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := gw.Poll(ctx, id)
		require.NoError(t, err)
		assert.False(t, res.Status.IsTerminal())
	}

	_, err = gw.Download(ctx, id, "ref", t.TempDir())
	require.Error(t, err)
	_, err = gw.Download(ctx, id, "ref", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, gw.Cancel(ctx, id))
	assert.Equal(t, []string{id}, gw.Cancelled())
	res, err := gw.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, platform.StatusNotFound, res.Status)
}

func TestEstimatesUseProfile(t *testing.T) {
	gw := New(SoraProfile())
	req := platform.Request{Duration: 10}
	assert.InDelta(t, 300.0, gw.EstimateCost(req), 0.001)
	assert.Equal(t, SoraProfile().Capabilities.AvgGenerationTime, gw.EstimateTime(req))
}
