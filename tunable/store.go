package tunable

import "sync"

// Store is the key-value persistence collaborator behind a Parameter.
// Values are persisted in display units.
type Store interface {
	Load(key string) (value float64, ok bool, err error)
	Save(key string, value float64) error
}

// MemoryStore is a Store that keeps values in memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]float64)}
}

// Load implements Store.
func (m *MemoryStore) Load(key string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Save implements Store.
func (m *MemoryStore) Save(key string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
