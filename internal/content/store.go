package content

import (
	"context"
	"errors"
	"sync"

	id "claimgate/pkg/domain"
)

// ErrNotFound is returned when a memory record does not exist.
var ErrNotFound = errors.New("memory not found")

// Store persists memory records. Delete exists solely so the exchange service
// can roll back a record whose claim CAS was lost.
type Store interface {
	Create(ctx context.Context, memory *Memory) error
	FindByID(ctx context.Context, memoryID id.MemoryID) (*Memory, error)
	Delete(ctx context.Context, memoryID id.MemoryID) error
}

// InMemoryStore backs tests and single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[id.MemoryID]Memory
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memories: make(map[id.MemoryID]Memory)}
}

func (s *InMemoryStore) Create(_ context.Context, memory *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[memory.ID] = *memory
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, memoryID id.MemoryID) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	memory, ok := s.memories[memoryID]
	if !ok {
		return nil, ErrNotFound
	}
	return &memory, nil
}

func (s *InMemoryStore) Delete(_ context.Context, memoryID id.MemoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, memoryID)
	return nil
}

// Count reports the number of stored records. Test helper.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}
