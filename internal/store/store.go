// File: internal/store/store.go
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when no value exists under the given key.
var ErrNotFound = errors.New("store: key not found")

// Blob is the opaque key-value contract the conversation layer persists
// through. Implementations own durability; callers treat values as raw bytes.
type Blob interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// FileStore is a Blob backed by one file per key inside a base directory.
// Writes go through a temp file and an atomic rename so a crash mid-write
// leaves either the old value or the new one, never a torn blob.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the base directory if needed and returns a FileStore
// rooted at it.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return &FileStore{
		dir: dir,
		log: logger.Named("store"),
	}, nil
}

// Get reads the value stored under key. Returns ErrNotFound when the key has
// never been written or has been deleted.
func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Set writes value under key, replacing any previous value atomically.
func (s *FileStore) Set(key string, value []byte) error {
	target := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for key %q: %w", key, err)
	}

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	// The rename only guarantees old-or-new if the new bytes are on disk
	// before the directory entry flips.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync key %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to flush key %q: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace key %q: %w", key, err)
	}

	s.log.Debug("Blob written.", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

// Delete removes the value under key. Deleting an absent key is a no-op.
func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// path maps a key to its backing file. Keys are sanitized into plain file
// names so a hostile key cannot escape the base directory.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitize(key)+".json")
}

func sanitize(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// MemStore is an in-memory Blob used by tests and by callers that opt out of
// durability.
type MemStore struct {
	values map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

// Get implements Blob.
func (m *MemStore) Get(key string) ([]byte, error) {
	value, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

// Set implements Blob.
func (m *MemStore) Set(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	return nil
}

// Delete implements Blob.
func (m *MemStore) Delete(key string) error {
	delete(m.values, key)
	return nil
}
