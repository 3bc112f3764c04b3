package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStateNotFound is returned by StateStore.Load when nothing has been saved yet.
var ErrStateNotFound = errors.New("no persisted stream state")

// StateStore is the persistence abstraction for the single stream record.
// It holds one opaque blob; Save overwrites whatever was there.
type StateStore interface {
	Load() ([]byte, error)
	Save(blob []byte) error
}

// FileStore keeps the blob in a single file on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements StateStore.Load.
func (s *FileStore) Load() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return b, nil
}

// Save implements StateStore.Save. The blob is written to a temporary file
// and renamed over the target so readers never see a partial record.
func (s *FileStore) Save(blob []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// InMemoryStore is an in-memory implementation of StateStore.
type InMemoryStore struct {
	mu    sync.Mutex
	blob  []byte
	saves int
}

// NewInMemoryStore returns an empty store; Load reports ErrStateNotFound
// until the first Save.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Load implements StateStore.Load.
func (s *InMemoryStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blob == nil {
		return nil, ErrStateNotFound
	}
	return append([]byte(nil), s.blob...), nil
}

// Save implements StateStore.Save.
func (s *InMemoryStore) Save(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blob = append([]byte(nil), blob...)
	s.saves++
	return nil
}

// SaveCount returns how many times Save has been called.
func (s *InMemoryStore) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
