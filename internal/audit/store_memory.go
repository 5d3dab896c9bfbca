package audit

import (
	"context"
	"sync"

	id "claimgate/pkg/domain"
)

// InMemoryStore keeps entries keyed by day bucket. Used by unit tests and
// single-process deployments without Postgres.
type InMemoryStore struct {
	mu      sync.RWMutex
	byDay   map[string][]Entry
	byReqID map[id.RequestID][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byDay:   make(map[string][]Entry),
		byReqID: make(map[id.RequestID][]Entry),
	}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDay[entry.Day] = append(s.byDay[entry.Day], entry)
	s.byReqID[entry.RequestID] = append(s.byReqID[entry.RequestID], entry)
	return nil
}

func (s *InMemoryStore) ListByRequest(_ context.Context, requestID id.RequestID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.byReqID[requestID]...), nil
}

func (s *InMemoryStore) ListByDay(_ context.Context, day string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.byDay[day]...), nil
}
