package storage

import (
	"context"
	"sync"

	"github.com/alejandrodnm/predictbot/internal/ports"
)

// MemoryStorage is an in-process KVStore. Useful for tests and dry runs.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailBatch, when set, makes WriteBatch return it without applying
	// anything.
	FailBatch error
}

var (
	_ ports.KVStore     = (*MemoryStorage)(nil)
	_ ports.BatchWriter = (*MemoryStorage)(nil)
)

// NewMemoryStorage returns an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStorage) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

// WriteBatch applies muts under one lock.
func (m *MemoryStorage) WriteBatch(_ context.Context, muts []ports.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBatch != nil {
		return m.FailBatch
	}
	for _, mut := range muts {
		if mut.Delete {
			delete(m.data, mut.Key)
			continue
		}
		v := make([]byte, len(mut.Value))
		copy(v, mut.Value)
		m.data[mut.Key] = v
	}
	return nil
}
