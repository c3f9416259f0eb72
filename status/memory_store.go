package status

import (
	"context"
	"sync"

	"github.com/serisow/craftvid/script_type"
)

type recordKey struct {
	sceneID   string
	component script_type.Component
}

// MemoryStore keeps status records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

func (m *MemoryStore) Get(ctx context.Context, sceneID string, component script_type.Component) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{sceneID, component}]
	if !ok {
		return Record{SceneID: sceneID, Component: component, State: StatePending}, nil
	}
	return rec, nil
}

func (m *MemoryStore) List(ctx context.Context, sceneIDs []string) ([]Record, error) {
	wanted := make(map[string]bool, len(sceneIDs))
	for _, id := range sceneIDs {
		wanted[id] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, rec := range m.records {
		if wanted[k.sceneID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, rec Record, expected int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{rec.SceneID, rec.Component}
	if m.records[key].Version != expected {
		return false, nil
	}
	rec.Version = expected + 1
	m.records[key] = rec
	return true, nil
}
