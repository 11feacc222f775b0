package platform

import "fmt"

// Validation is the outcome of checking a request against a platform.
// Warnings describe degraded output; suggestions are advisory only.
type Validation struct {
	Warnings    []string
	Suggestions []string
}

// OK reports whether the request fits the platform without degradation.
func (v Validation) OK() bool { return len(v.Warnings) == 0 }

// Validate checks req against caps. Mismatches never block submission.
func Validate(req Request, caps Capabilities) Validation {
	var v Validation

	if caps.MaxDuration > 0 && req.Duration > caps.MaxDuration {
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("duration %ds exceeds platform max %ds", req.Duration, caps.MaxDuration))
	}
	if req.AspectRatio != "" && len(caps.AspectRatios) > 0 && !caps.SupportsAspectRatio(req.AspectRatio) {
		v.Warnings = append(v.Warnings,
			fmt.Sprintf("aspect ratio %s not supported (supported: %v)", req.AspectRatio, caps.AspectRatios))
	}
	if req.WantsLipSync() && !caps.HasLipSync {
		v.Warnings = append(v.Warnings, "lip sync requested but not supported; output will be unsynced")
	}
	if req.WantsCameraControl() && !caps.HasCameraControl {
		v.Warnings = append(v.Warnings, "camera control parameters provided but not supported")
	}
	if req.FirstLastFrame != nil && !caps.HasFirstLastFrame {
		v.Suggestions = append(v.Suggestions, "first/last frame hints not supported and will be ignored")
	}

	return v
}

// AdaptFunc rewrites a request so it fits a fallback platform. It returns the
// adapted copy and a human-readable list of what changed.
type AdaptFunc func(req Request, fallback Capabilities) (Request, []string)

// Adapt is the default adaptation: strip capabilities the fallback lacks and
// clamp the duration to its maximum. req is never modified.
func Adapt(req Request, fallback Capabilities) (Request, []string) {
	out := req.Clone()
	var changes []string

	if !fallback.HasLipSync && out.WantsLipSync() {
		for i := range out.Dialogue {
			out.Dialogue[i].LipSync = false
		}
		changes = append(changes, "lip sync disabled")
	}
	if !fallback.HasFirstLastFrame && out.FirstLastFrame != nil {
		out.FirstLastFrame = nil
		changes = append(changes, "first/last frame hints dropped")
	}
	if !fallback.HasCameraControl && out.WantsCameraControl() {
		out.Camera.Params = nil
		changes = append(changes, "camera parameters dropped")
	}
	if fallback.MaxDuration > 0 && out.Duration > fallback.MaxDuration {
		changes = append(changes, fmt.Sprintf("duration clamped %ds -> %ds", out.Duration, fallback.MaxDuration))
		out.Duration = fallback.MaxDuration
	}
	if out.AspectRatio != "" && len(fallback.AspectRatios) > 0 && !fallback.SupportsAspectRatio(out.AspectRatio) {
		changes = append(changes, fmt.Sprintf("aspect ratio %s -> %s", out.AspectRatio, fallback.AspectRatios[0]))
		out.AspectRatio = fallback.AspectRatios[0]
	}
	if out.Quality != "" && len(fallback.QualityLevels) > 0 && !contains(fallback.QualityLevels, out.Quality) {
		out.Quality = ""
		changes = append(changes, "quality reset to platform default")
	}

	return out, changes
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
