package job

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/berth-dev/clipforge/internal/config"
)

const sampleJob = `
project: garden-memory
aspect_ratio: "9:16"
segment_duration: 10
min_segments: 2
budget:
  total: 300
  per_scene: 170
scenes:
  - id: scene-01
    name: opening
    visual:
      foreground: falling petals
      midground: a woman in a qipao stands in a garden
      background: pavilions at sunset
    lighting:
      style: soft dusk
      mood: nostalgic
    first_last_frame:
      first: facing camera
      last: turning away
  - prompt: a stone bridge over still water
    duration: 6
    aspect_ratio: "16:9"
    dialogue:
      - speaker: narrator
        text: she remembers
        lip_sync: true
`

func TestLoadJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := os.WriteFile(path, []byte(sampleJob), 0644); err != nil {
		t.Fatal(err)
	}

	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	reqs := j.Requests()
	if len(reqs) != 2 {
		t.Fatalf("len(Requests) = %d, want 2", len(reqs))
	}

	first := reqs[0]
	want := "Foreground: falling petals. Main subject: a woman in a qipao stands in a garden. Background: pavilions at sunset. Lighting: soft dusk, nostalgic"
	if first.Prompt != want {
		t.Errorf("composed prompt = %q, want %q", first.Prompt, want)
	}
	if first.Duration != 10 || first.AspectRatio != "9:16" {
		t.Errorf("first = %+v, want job defaults applied", first)
	}
	if first.FirstLastFrame == nil || first.FirstLastFrame.Last != "turning away" {
		t.Errorf("FirstLastFrame = %+v", first.FirstLastFrame)
	}

	second := reqs[1]
	if second.SceneID != "scene-02" {
		t.Errorf("SceneID = %q, want scene-02", second.SceneID)
	}
	if second.Duration != 6 || second.AspectRatio != "16:9" {
		t.Errorf("second = %+v, want scene overrides", second)
	}
	if !second.WantsLipSync() {
		t.Error("WantsLipSync = false, want true")
	}
}

func TestValidateMinSegments(t *testing.T) {
	_, err := Parse([]byte("project: x\nmin_segments: 3\nscenes:\n  - prompt: a\n"))
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Parse = %v, want ErrInvalid", err)
	}
}

func TestValidateRequiresPrompt(t *testing.T) {
	_, err := Parse([]byte("project: x\nscenes:\n  - name: empty\n"))
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Parse = %v, want ErrInvalid", err)
	}
}

func TestValidateRequiresProject(t *testing.T) {
	_, err := Parse([]byte("scenes:\n  - prompt: a\n"))
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("Parse = %v, want ErrInvalid", err)
	}
}

func TestBudgetWarnings(t *testing.T) {
	j := &Job{Budget: Budget{Total: 300, PerScene: 170}}
	got := j.BudgetWarnings([]float64{170, 180})
	if len(got) != 2 {
		t.Fatalf("BudgetWarnings = %v, want per-scene and total warnings", got)
	}
	if got := j.BudgetWarnings([]float64{100, 100}); len(got) != 0 {
		t.Errorf("BudgetWarnings under budget = %v, want none", got)
	}
}
