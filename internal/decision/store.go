package decision

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by a Store that holds nothing under an id.
var ErrNotFound = errors.New("decision: snapshot not found")

// Snapshot is the persisted state of a learning policy.
type Snapshot struct {
	Values      map[string][]float64 `json:"values"`
	Actions     []string             `json:"actions"`
	Baseline    float64              `json:"baseline"`
	HasBaseline bool                 `json:"has_baseline"`
}

// Store loads and saves policy snapshots by an external identifier.
type Store interface {
	LoadSnapshot(id string) (Snapshot, error)
	SaveSnapshot(id string, snap Snapshot) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) LoadSnapshot(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) SaveSnapshot(id string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[id] = snap
	return nil
}
