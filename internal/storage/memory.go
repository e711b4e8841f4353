package storage

import (
	"context"
	"sync"

	"budget/internal/core"
)

// MemoryStore keeps the encoded snapshot in memory. Useful for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (core.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeSnapshot(m.data)
}

func (m *MemoryStore) Save(ctx context.Context, s core.Snapshot) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

// Raw returns the last saved encoding.
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

func (m *MemoryStore) Close() error { return nil }

var _ SnapshotStore = (*MemoryStore)(nil)
