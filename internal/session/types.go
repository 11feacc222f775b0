// Package session provides durable, resumable persistence for generation jobs.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/berth-dev/clipforge/internal/segment"
)

// DocumentVersion is written into every document. It is reserved for future
// migrations and not checked on read.
const DocumentVersion = 1

var (
	// ErrNotFound means no persisted session matched. It is an expected outcome.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps local storage failures so callers never confuse
	// them with segment failures.
	ErrUnavailable = errors.New("session unavailable")
	// ErrCorrupt marks a persisted document that could not be decoded.
	ErrCorrupt = errors.New("corrupt session document")
)

// PlatformConfig is the generation setup chosen when the session was created.
// It is never changed afterwards so a resumed run reproduces the original one.
type PlatformConfig struct {
	Primary         string `json:"primary"`
	Fallback        string `json:"fallback,omitempty"`
	AspectRatio     string `json:"aspect_ratio"`
	Quality         string `json:"quality,omitempty"`
	SegmentDuration int    `json:"segment_duration"`
}

// Session is the persisted record of one generation job.
type Session struct {
	Version        int            `json:"version"`
	ID             string         `json:"id"`
	ProjectName    string         `json:"project_name"`
	Segments       []segment.Task `json:"segments"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Completed      bool           `json:"completed"`
	PlatformConfig PlatformConfig `json:"platform_config"`
	OutputPath     string         `json:"output_path,omitempty"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID          string
	ProjectName string
	Total       int
	Completed   int
	Failed      int
	InFlight    int
	Pending     int
	Done        bool
	UpdatedAt   time.Time
}

// Summarize counts segment states.
func (s *Session) Summarize() Summary {
	sum := Summary{
		ID:          s.ID,
		ProjectName: s.ProjectName,
		Total:       len(s.Segments),
		Done:        s.Completed,
		UpdatedAt:   s.UpdatedAt,
	}
	for _, t := range s.Segments {
		switch {
		case t.State == segment.StateCompleted:
			sum.Completed++
		case t.State == segment.StateFailed:
			sum.Failed++
		case t.State.InFlight():
			sum.InFlight++
		default:
			sum.Pending++
		}
	}
	return sum
}

// refreshCompleted recomputes the cached Completed flag.
func (s *Session) refreshCompleted() {
	if len(s.Segments) == 0 {
		s.Completed = false
		return
	}
	for _, t := range s.Segments {
		if t.State != segment.StateCompleted {
			s.Completed = false
			return
		}
	}
	s.Completed = true
}

// Clone returns a deep copy via the document encoding, which is also what
// a resume would read back.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("session: cloning %s: %v", s.ID, err))
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("session: cloning %s: %v", s.ID, err))
	}
	return &out
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewID derives a session id from the project name and creation time:
// <project>_<unix millis>_<first 8 hex of md5(project_millis)>.
func NewID(projectName string, created time.Time) string {
	millis := created.UnixMilli()
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", projectName, millis)))
	safe := unsafeIDChars.ReplaceAllString(projectName, "-")
	if safe == "" {
		safe = "session"
	}
	return fmt.Sprintf("%s_%d_%s", safe, millis, hex.EncodeToString(sum[:])[:8])
}
