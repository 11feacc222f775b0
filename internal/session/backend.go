package session

import (
	"encoding/json"
	"fmt"
)

// Backend is the durable document storage behind a Store. Each session is
// one self-contained document keyed by its id. Implementations need not be
// safe for concurrent use; the Store serializes every call.
type Backend interface {
	// Save writes the full document, replacing any previous version.
	Save(s *Session) error
	// Load returns the document for id, ErrNotFound if absent, or an error
	// wrapping ErrCorrupt if it cannot be decoded.
	Load(id string) (*Session, error)
	// LoadAll returns every readable document. Undecodable documents are
	// reported through skip and left out of the result.
	LoadAll(skip func(ref string, err error)) ([]*Session, error)
	Delete(id string) error
	Close() error
}

func encode(s *Session) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling session %s: %w", s.ID, err)
	}
	return data, nil
}

func decode(ref string, data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, ref, err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("%w: %s: missing id", ErrCorrupt, ref)
	}
	return &s, nil
}
