package store

import (
	"context"
	"sync"
	"time"

	"claimgate/internal/claim/models"
	id "claimgate/pkg/domain"
	emailpkg "claimgate/pkg/email"
)

// InMemoryStore implements Store with a mutex-guarded map. The lock is held
// across the whole UpdateIfStatus callback, giving the same
// check-then-mutate atomicity the Postgres store gets from FOR UPDATE.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]models.ClaimRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]models.ClaimRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, req *models.ClaimRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = *req
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.ClaimRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (s *InMemoryStore) UpdateIfStatus(_ context.Context, requestID id.RequestID, expect models.Status, mutate func(*models.ClaimRequest)) (*models.ClaimRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Status != expect {
		return nil, ErrStatusConflict
	}

	mutate(&req)
	s.requests[requestID] = req
	updated := req
	return &updated, nil
}

func (s *InMemoryStore) HasActiveByEmailSince(_ context.Context, email string, cutoff time.Time) (bool, error) {
	email = emailpkg.Normalize(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.Email == email && req.IsActive() && req.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
