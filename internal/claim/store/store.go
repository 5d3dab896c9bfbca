// Package store persists claim requests. The single transactional primitive
// is UpdateIfStatus, an optimistic compare-and-swap on the status column;
// every state transition in the system goes through it. Rows are never
// deleted.
package store

import (
	"context"
	"errors"
	"time"

	"claimgate/internal/claim/models"
	id "claimgate/pkg/domain"
)

// ErrNotFound is returned when a claim request does not exist.
var ErrNotFound = errors.New("claim request not found")

// ErrStatusConflict is returned when the CAS precondition fails: the row's
// current status did not match the expected one. Exactly one of N concurrent
// exchanges wins; the rest observe this error.
var ErrStatusConflict = errors.New("claim request status changed concurrently")

// Store is the persistence port for claim requests.
type Store interface {
	Create(ctx context.Context, req *models.ClaimRequest) error

	FindByID(ctx context.Context, requestID id.RequestID) (*models.ClaimRequest, error)

	// UpdateIfStatus atomically applies mutate to the request iff its current
	// status equals expect, returning the updated row. Returns
	// ErrStatusConflict when the precondition fails and ErrNotFound when the
	// row is absent. The mutate callback must not perform I/O.
	UpdateIfStatus(ctx context.Context, requestID id.RequestID, expect models.Status, mutate func(*models.ClaimRequest)) (*models.ClaimRequest, error)

	// HasActiveByEmailSince reports whether an active (pending or sent)
	// request for the normalized email was created after cutoff. Backs the
	// admission rate limiter; best-effort read, not linearizable with Create.
	HasActiveByEmailSince(ctx context.Context, email string, cutoff time.Time) (bool, error)
}
