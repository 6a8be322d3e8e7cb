package cache

import (
	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/common"
)

// memoryStore keeps blobs in a plain map. It relies on the owning Cache
// for locking.
type memoryStore struct {
	entries map[uuid.UUID][]byte
	limit   uint64
	used    uint64
}

func newMemoryStore(limit uint64) *memoryStore {
	return &memoryStore{
		entries: make(map[uuid.UUID][]byte),
		limit:   limit,
	}
}

func (m *memoryStore) put(id uuid.UUID, data []byte) error {
	if m.limit > 0 && m.used+uint64(len(data)) > m.limit {
		return common.ErrorCacheLimitExceeded
	}
	if prev, ok := m.entries[id]; ok {
		m.used -= uint64(len(prev))
	}
	m.entries[id] = data
	m.used += uint64(len(data))
	return nil
}

func (m *memoryStore) get(id uuid.UUID) ([]byte, error) {
	data, ok := m.entries[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

func (m *memoryStore) delete(id uuid.UUID) {
	if prev, ok := m.entries[id]; ok {
		m.used -= uint64(len(prev))
		delete(m.entries, id)
	}
}

func (m *memoryStore) exists(id uuid.UUID) bool {
	_, ok := m.entries[id]
	return ok
}
