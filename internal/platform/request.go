// Package platform defines the contract between the orchestrator and the
// external video generation services, plus the request adaptation used when a
// segment is handed to a fallback platform.
package platform

// Request is the platform-neutral description of one segment. Every gateway
// converts it into its own native shape; nothing platform specific lives here.
type Request struct {
	SceneID     string `json:"scene_id" yaml:"scene_id"`
	SceneName   string `json:"scene_name,omitempty" yaml:"scene_name,omitempty"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	Duration    int    `json:"duration" yaml:"duration"` // seconds
	AspectRatio string `json:"aspect_ratio" yaml:"aspect_ratio"`
	Quality     string `json:"quality,omitempty" yaml:"quality,omitempty"`

	Dialogue       []Dialogue  `json:"dialogue,omitempty" yaml:"dialogue,omitempty"`
	Camera         *Camera     `json:"camera,omitempty" yaml:"camera,omitempty"`
	FirstLastFrame *FrameHints `json:"first_last_frame,omitempty" yaml:"first_last_frame,omitempty"`
}

// Dialogue is a spoken line inside a segment.
type Dialogue struct {
	Speaker string  `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Text    string  `json:"text" yaml:"text"`
	Start   float64 `json:"start" yaml:"start"`
	End     float64 `json:"end" yaml:"end"`
	LipSync bool    `json:"lip_sync" yaml:"lip_sync"`
	Emotion string  `json:"emotion,omitempty" yaml:"emotion,omitempty"`
}

// Camera describes shot framing and movement.
type Camera struct {
	ShotSize string        `json:"shot_size,omitempty" yaml:"shot_size,omitempty"`
	Movement string        `json:"movement,omitempty" yaml:"movement,omitempty"`
	Params   *CameraParams `json:"params,omitempty" yaml:"params,omitempty"`
}

// CameraParams are numeric movement controls in the range -10..10.
type CameraParams struct {
	Horizontal float64 `json:"horizontal,omitempty" yaml:"horizontal,omitempty"`
	Vertical   float64 `json:"vertical,omitempty" yaml:"vertical,omitempty"`
	Pan        float64 `json:"pan,omitempty" yaml:"pan,omitempty"`
	Tilt       float64 `json:"tilt,omitempty" yaml:"tilt,omitempty"`
	Roll       float64 `json:"roll,omitempty" yaml:"roll,omitempty"`
	Zoom       float64 `json:"zoom,omitempty" yaml:"zoom,omitempty"`
}

// FrameHints pins the first and/or last frame of a segment to reference images.
type FrameHints struct {
	First string `json:"first,omitempty" yaml:"first,omitempty"`
	Last  string `json:"last,omitempty" yaml:"last,omitempty"`
}

// WantsLipSync reports whether any dialogue line asks for lip sync.
func (r Request) WantsLipSync() bool {
	for _, d := range r.Dialogue {
		if d.LipSync {
			return true
		}
	}
	return false
}

// WantsCameraControl reports whether numeric camera parameters are set.
func (r Request) WantsCameraControl() bool {
	return r.Camera != nil && r.Camera.Params != nil
}

// Clone returns a deep copy so adaptation never mutates the stored request.
func (r Request) Clone() Request {
	out := r
	if r.Dialogue != nil {
		out.Dialogue = make([]Dialogue, len(r.Dialogue))
		copy(out.Dialogue, r.Dialogue)
	}
	if r.Camera != nil {
		cam := *r.Camera
		if r.Camera.Params != nil {
			params := *r.Camera.Params
			cam.Params = &params
		}
		out.Camera = &cam
	}
	if r.FirstLastFrame != nil {
		hints := *r.FirstLastFrame
		out.FirstLastFrame = &hints
	}
	return out
}
