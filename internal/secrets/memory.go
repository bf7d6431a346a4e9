package secrets

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	writes map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}, writes: map[string]int{}}
}

func (m *MemoryStore) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[name]
	if !ok {
		return nil, notFound(name)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(ctx context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[name] = append([]byte(nil), value...)
	m.writes[name]++
	return nil
}

// Writes returns how many times name has been written.
func (m *MemoryStore) Writes(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[name]
}

func (m *MemoryStore) Close() error { return nil }
