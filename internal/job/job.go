// Package job reads the job description file (job.yaml) and turns its
// scenes into platform-neutral generation requests.
package job

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/berth-dev/clipforge/internal/config"
	"github.com/berth-dev/clipforge/internal/platform"
)

// DefaultFile is the job file name looked up in the project root.
const DefaultFile = "job.yaml"

// Job describes one video to generate.
type Job struct {
	Project         string  `yaml:"project"`
	AspectRatio     string  `yaml:"aspect_ratio"`
	Quality         string  `yaml:"quality"`
	SegmentDuration int     `yaml:"segment_duration"`
	MinSegments     int     `yaml:"min_segments"`
	Budget          Budget  `yaml:"budget"`
	Scenes          []Scene `yaml:"scenes"`
}

// Budget is an advisory cost ceiling. Exceeding it produces a warning.
type Budget struct {
	Total    float64 `yaml:"total"`
	PerScene float64 `yaml:"per_scene"`
}

// Scene is one segment of the video. Either Prompt or Visual must be set.
type Scene struct {
	ID             string               `yaml:"id"`
	Name           string               `yaml:"name"`
	Prompt         string               `yaml:"prompt"`
	Visual         *Visual              `yaml:"visual"`
	Lighting       *Lighting            `yaml:"lighting"`
	Duration       int                  `yaml:"duration"`
	AspectRatio    string               `yaml:"aspect_ratio"`
	Dialogue       []platform.Dialogue  `yaml:"dialogue"`
	Camera         *platform.Camera     `yaml:"camera"`
	FirstLastFrame *platform.FrameHints `yaml:"first_last_frame"`
}

// Visual is a layered description of the frame.
type Visual struct {
	Foreground string `yaml:"foreground"`
	Midground  string `yaml:"midground"`
	Background string `yaml:"background"`
}

// Lighting is appended to the layered prompt.
type Lighting struct {
	Style     string `yaml:"style"`
	TimeOfDay string `yaml:"time_of_day"`
	Mood      string `yaml:"mood"`
}

// Load reads and validates a job file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates job YAML.
func Parse(data []byte) (*Job, error) {
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	j.applyDefaults()
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

func (j *Job) applyDefaults() {
	if j.AspectRatio == "" {
		j.AspectRatio = "16:9"
	}
	if j.SegmentDuration == 0 {
		j.SegmentDuration = 10
	}
	if j.MinSegments == 0 {
		j.MinSegments = 1
	}
}

// Validate checks the job can produce at least MinSegments requests.
// Failures wrap config.ErrInvalid.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Project) == "" {
		return fmt.Errorf("%w: job project is required", config.ErrInvalid)
	}
	if j.SegmentDuration < 1 {
		return fmt.Errorf("%w: segment_duration must be positive, got %d", config.ErrInvalid, j.SegmentDuration)
	}
	if len(j.Scenes) < j.MinSegments {
		return fmt.Errorf("%w: job has %d scenes, at least %d required", config.ErrInvalid, len(j.Scenes), j.MinSegments)
	}
	for i, s := range j.Scenes {
		if s.Prompt == "" && (s.Visual == nil || s.Visual.Midground == "") {
			return fmt.Errorf("%w: scene %d needs a prompt or visual.midground", config.ErrInvalid, i)
		}
		if s.Duration < 0 {
			return fmt.Errorf("%w: scene %d duration must not be negative", config.ErrInvalid, i)
		}
	}
	return nil
}

// Requests converts scenes to requests in scene order. Scene index becomes
// segment index.
func (j *Job) Requests() []platform.Request {
	reqs := make([]platform.Request, len(j.Scenes))
	for i, s := range j.Scenes {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("scene-%02d", i+1)
		}
		duration := s.Duration
		if duration == 0 {
			duration = j.SegmentDuration
		}
		aspect := s.AspectRatio
		if aspect == "" {
			aspect = j.AspectRatio
		}
		reqs[i] = platform.Request{
			SceneID:        id,
			SceneName:      s.Name,
			Prompt:         s.prompt(),
			Duration:       duration,
			AspectRatio:    aspect,
			Quality:        j.Quality,
			Dialogue:       s.Dialogue,
			Camera:         s.Camera,
			FirstLastFrame: s.FirstLastFrame,
		}
	}
	return reqs
}

// prompt is the explicit prompt, or one composed from the visual layers.
func (s Scene) prompt() string {
	if s.Prompt != "" {
		return s.Prompt
	}
	var parts []string
	if s.Visual.Foreground != "" {
		parts = append(parts, "Foreground: "+s.Visual.Foreground)
	}
	parts = append(parts, "Main subject: "+s.Visual.Midground)
	if s.Visual.Background != "" {
		parts = append(parts, "Background: "+s.Visual.Background)
	}
	if l := s.Lighting; l != nil {
		var light []string
		for _, v := range []string{l.Style, l.TimeOfDay, l.Mood} {
			if v != "" {
				light = append(light, v)
			}
		}
		if len(light) > 0 {
			parts = append(parts, "Lighting: "+strings.Join(light, ", "))
		}
	}
	return strings.Join(parts, ". ")
}

// BudgetWarnings compares estimated per-scene costs with the budget.
func (j *Job) BudgetWarnings(perScene []float64) []string {
	var warnings []string
	var total float64
	for i, c := range perScene {
		total += c
		if j.Budget.PerScene > 0 && c > j.Budget.PerScene {
			warnings = append(warnings, fmt.Sprintf("scene %d estimated cost %.2f exceeds per-scene budget %.2f", i, c, j.Budget.PerScene))
		}
	}
	if j.Budget.Total > 0 && total > j.Budget.Total {
		warnings = append(warnings, fmt.Sprintf("estimated total cost %.2f exceeds budget %.2f", total, j.Budget.Total))
	}
	return warnings
}
