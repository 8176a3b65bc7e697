package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edgefleet/otaupdater/internal/model"
)

// JSONStore implements InstalledVersionsStore using a single JSON file,
// matching the persistence shape (load-all/mutate/save-all under a mutex)
// of the teacher's internal/state.JSONStore.
type JSONStore struct {
	path    string
	mu      sync.Mutex
	entries []InstalledVersion
}

// NewJSONStore opens (or creates) a JSON-backed store at path.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	store := &JSONStore{path: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		s.entries = nil
		return nil
	}
	return json.Unmarshal(data, &s.entries)
}

func (s *JSONStore) saveLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONStore) Record(ctx context.Context, v InstalledVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, v)
	return s.saveLocked()
}

func (s *JSONStore) MarkFinalized(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Target.Hash == hash {
			s.entries[i].Finalized = true
		}
	}
	return s.saveLocked()
}

func (s *JSONStore) List(ctx context.Context) ([]InstalledVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InstalledVersion, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *JSONStore) RollbackCandidate(ctx context.Context, olderThanVersion int64) (model.Target, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := RollbackCandidateFrom(s.entries, olderThanVersion)
	return target, ok, nil
}

func (s *JSONStore) Close() error { return nil }
