package store

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ServiceControlFile is the document holding service identifier -> enabled flags.
const ServiceControlFile = "service_control.json"

// ServiceStore persists per-service enable flags. Identifiers without an
// entry are treated as disabled. Writes hold an advisory lock on
// <file>.lock so a CLI toggle and a running controller do not lose updates.
type ServiceStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewServiceStore returns a store backed by <dataDir>/service_control.json.
func NewServiceStore(dataDir string) *ServiceStore {
	path := filepath.Join(dataDir, ServiceControlFile)
	return &ServiceStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (s *ServiceStore) Path() string {
	return s.path
}

// Snapshot reads the persisted state. The returned map is owned by the caller.
func (s *ServiceStore) Snapshot() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Enabled reports the flag for id and whether an entry exists.
func (s *ServiceStore) Enabled(id string) (enabled bool, known bool, err error) {
	state, err := s.Snapshot()
	if err != nil {
		return false, false, err
	}
	enabled, known = state[id]
	return enabled, known, nil
}

// SetEnabled sets the flag for a single identifier.
func (s *ServiceStore) SetEnabled(id string, enabled bool) error {
	if id == "" {
		return ErrEmptyIdentifier
	}
	return s.update(func(state map[string]bool) bool {
		if cur, ok := state[id]; ok && cur == enabled {
			return false
		}
		state[id] = enabled
		return true
	})
}

// SetMany applies several flags in one write.
func (s *ServiceStore) SetMany(flags map[string]bool) error {
	for id := range flags {
		if id == "" {
			return ErrEmptyIdentifier
		}
	}
	return s.update(func(state map[string]bool) bool {
		maps.Copy(state, flags)
		return len(flags) > 0
	})
}

// RegisterDisabled adds unseen identifiers as disabled and returns the ones
// that were new. Existing entries are never overwritten.
func (s *ServiceStore) RegisterDisabled(ids ...string) ([]string, error) {
	var added []string
	err := s.update(func(state map[string]bool) bool {
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, ok := state[id]; ok {
				continue
			}
			state[id] = false
			added = append(added, id)
		}
		return len(added) > 0
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// update performs a read-modify-write of the persisted document. mutate
// reports whether anything changed; unchanged state is not rewritten.
func (s *ServiceStore) update(mutate func(map[string]bool) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(s.path), err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock service control state: %w", err)
	}
	defer s.lock.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	if !mutate(state) {
		return nil
	}

	if err := writeJSON(s.path, state); err != nil {
		return fmt.Errorf("save service control state: %w", err)
	}
	return nil
}

func (s *ServiceStore) load() (map[string]bool, error) {
	state := make(map[string]bool)
	if _, err := readJSON(s.path, &state); err != nil {
		return nil, fmt.Errorf("load service control state: %w", err)
	}
	if state == nil {
		state = make(map[string]bool)
	}
	return state, nil
}
