package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const docCacheSize = 128

type cachedDoc struct {
	modTime time.Time
	size    int64
	session *Session
}

// FileBackend stores one <id>.json document per session in a directory.
// Decoded documents are cached by path and reused while the file's mod time
// and size are unchanged, so repeated listings do not re-parse every file.
type FileBackend struct {
	dir   string
	cache *lru.Cache[string, cachedDoc]
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	cache, err := lru.New[string, cachedDoc](docCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating document cache: %w", err)
	}
	return &FileBackend{dir: dir, cache: cache}, nil
}

// Dir returns the state directory.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+".json")
}

// Save writes to a temp file and renames it over the document, so a crash
// mid-write leaves the previous version intact.
func (b *FileBackend) Save(s *Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}

	path := b.path(s.ID)
	tmp, err := os.CreateTemp(b.dir, "."+s.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing session %s: %w", s.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing session %s: %w", s.ID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing session %s: %w", s.ID, err)
	}
	b.cache.Remove(path)
	return nil
}

func (b *FileBackend) Load(id string) (*Session, error) {
	return b.read(b.path(id))
}

func (b *FileBackend) read(path string) (*Session, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if doc, ok := b.cache.Get(path); ok && doc.modTime.Equal(info.ModTime()) && doc.size == info.Size() {
		return doc.session.Clone(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	s, err := decode(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	b.cache.Add(path, cachedDoc{modTime: info.ModTime(), size: info.Size(), session: s})
	return s.Clone(), nil
}

func (b *FileBackend) LoadAll(skip func(ref string, err error)) ([]*Session, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		s, err := b.read(filepath.Join(b.dir, name))
		if err != nil {
			if skip != nil {
				skip(name, err)
			}
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (b *FileBackend) Delete(id string) error {
	path := b.path(id)
	b.cache.Remove(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session %s: %w", id, err)
	}
	return nil
}

func (b *FileBackend) Close() error {
	b.cache.Purge()
	return nil
}
