package platform

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Capabilities is the declared feature set and pricing of one platform.
type Capabilities struct {
	Name              string
	MaxDuration       int // seconds per submission
	AspectRatios      []string
	HasLipSync        bool
	HasCameraControl  bool
	HasFirstLastFrame bool
	HasAudio          bool
	CostPerSecond     float64
	// AvgGenerationTime is the typical wall-clock time to render ten seconds of video.
	AvgGenerationTime time.Duration
	QualityLevels     []string
}

// SupportsAspectRatio reports whether ratio is in the declared list.
func (c Capabilities) SupportsAspectRatio(ratio string) bool {
	for _, r := range c.AspectRatios {
		if r == ratio {
			return true
		}
	}
	return false
}

// Summary renders a short multi-line description used by the platforms command.
func (c Capabilities) Summary() string {
	mark := func(ok bool) string {
		if ok {
			return "yes"
		}
		return "no"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Max duration:     %ds\n", c.MaxDuration)
	fmt.Fprintf(&b, "Aspect ratios:    %s\n", strings.Join(c.AspectRatios, ", "))
	fmt.Fprintf(&b, "Cost:             %.2f/sec\n", c.CostPerSecond)
	fmt.Fprintf(&b, "Avg generation:   %s per 10s\n", c.AvgGenerationTime)
	fmt.Fprintf(&b, "Lip sync:         %s\n", mark(c.HasLipSync))
	fmt.Fprintf(&b, "Camera control:   %s\n", mark(c.HasCameraControl))
	fmt.Fprintf(&b, "First/last frame: %s\n", mark(c.HasFirstLastFrame))
	fmt.Fprintf(&b, "Audio:            %s\n", mark(c.HasAudio))
	return b.String()
}

// Status is the remote status reported by Poll.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
	StatusExpired    Status = "expired"
)

// IsTerminal returns true if the status ends the remote job.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusNotFound, StatusExpired:
		return true
	default:
		return false
	}
}

// PollResult is one observation of a remote job.
type PollResult struct {
	Status    Status
	ResultRef string // remote locator, set when Status is done
	Error     string
	// Progress is the platform-reported percentage, or -1 when the platform
	// does not expose one.
	Progress int
}

// Native is a request converted to one platform family's shape.
type Native struct {
	Platform string
	Prompt   string
	Params   NativeParams
}

// NativeParams is the closed set of per-family parameter shapes.
type NativeParams interface {
	family() string
}

// ClipParams is the shape used by short text-to-video platforms that render a
// fixed frame count per submission.
type ClipParams struct {
	Frames      int
	AspectRatio string
	Quality     string
	FirstFrame  string
	LastFrame   string
}

func (ClipParams) family() string { return "clip" }

// SceneParams is the shape used by long-form platforms with dialogue support.
type SceneParams struct {
	Seconds     int
	AspectRatio string
	Quality     string
	LipSync     bool
	Dialogue    []Dialogue
	Camera      *Camera
}

func (SceneParams) family() string { return "scene" }

// Family returns the parameter family name of n, for logging.
func (n Native) Family() string {
	if n.Params == nil {
		return ""
	}
	return n.Params.family()
}

// Gateway is one external generation platform. Implementations live outside
// the orchestration core; the simulated package provides an in-memory one.
type Gateway interface {
	Name() string
	Capabilities() Capabilities
	Convert(req Request) (Native, error)
	Submit(ctx context.Context, req Native) (string, error)
	Poll(ctx context.Context, remoteTaskID string) (PollResult, error)
	// Download fetches the finished artifact into destDir and returns its local path.
	Download(ctx context.Context, remoteTaskID, resultRef, destDir string) (string, error)
	// Cancel is best-effort; many platforms cannot cancel and return nil.
	Cancel(ctx context.Context, remoteTaskID string) error
	EstimateCost(req Request) float64
	EstimateTime(req Request) time.Duration
}

// EstimateCost is the default linear cost model: duration times per-second price.
func EstimateCost(caps Capabilities, req Request) float64 {
	return float64(req.Duration) * caps.CostPerSecond
}

// EstimateTime scales the ten-second average generation time to req.Duration.
func EstimateTime(caps Capabilities, req Request) time.Duration {
	return time.Duration(req.Duration) * caps.AvgGenerationTime / 10
}
