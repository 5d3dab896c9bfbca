// Package models holds the ClaimRequest aggregate and its state machine.
package models

import (
	"time"

	id "claimgate/pkg/domain"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/email"
)

// Status is the claim-request lifecycle state.
//
// pending → sent → {claimed | expired | canceled}, with sent → sent allowed
// for resends and email changes. Transitions are one-directional otherwise;
// terminal states admit nothing.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusClaimed  Status = "claimed"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// CanTransitionTo reports whether the state machine permits the move.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusCanceled
	case StatusSent:
		// sent → sent covers resend and email-change re-arm.
		return next == StatusSent || next == StatusClaimed || next == StatusExpired || next == StatusCanceled
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusClaimed || s == StatusExpired || s == StatusCanceled
}

// Source identifies the admission channel that produced the trust signal.
type Source string

const (
	SourceLPForm     Source = "lp-form"
	SourceStorefront Source = "storefront"
	SourceStripe     Source = "stripe"
)

func (s Source) IsValid() bool {
	switch s {
	case SourceLPForm, SourceStorefront, SourceStripe:
		return true
	}
	return false
}

// ClaimRequest is the admission ticket tracking one customer's path from
// trust signal to content ownership.
//
// Invariants:
//   - RequestID, Tenant, LPID, ProductType, Source are immutable after creation
//   - Email is mutable exactly once, via the confirmed email-change flow
//   - ClaimedAt, ClaimedByUID, MemoryID are set together, exactly once, on
//     the transition to claimed
//   - Rows are never deleted; expired and canceled requests remain for audit
type ClaimRequest struct {
	ID           id.RequestID `json:"requestId"`
	Email        string       `json:"email"`
	Tenant       string       `json:"tenant"`
	LPID         string       `json:"lpId"`
	ProductType  string       `json:"productType"`
	Status       Status       `json:"status"`
	Source       Source       `json:"source"`
	EmailChanged bool         `json:"emailChanged"`
	CreatedAt    time.Time    `json:"createdAt"`
	SentAt       *time.Time   `json:"sentAt,omitempty"`
	ClaimedAt    *time.Time   `json:"claimedAt,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	ClaimedByUID string       `json:"claimedByUid,omitempty"`
	MemoryID     id.MemoryID  `json:"memoryId,omitempty"`
}

// NewClaimRequest validates inputs and builds a pending request.
func NewClaimRequest(addr, tenant, lpID, productType string, source Source, now time.Time) (*ClaimRequest, error) {
	addr = email.Normalize(addr)
	if !email.IsValid(addr) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email address is required")
	}
	if tenant == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant is required")
	}
	if lpID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "lpId is required")
	}
	if !source.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown admission source %q", source)
	}
	return &ClaimRequest{
		ID:          id.NewRequestID(),
		Email:       addr,
		Tenant:      tenant,
		LPID:        lpID,
		ProductType: productType,
		Status:      StatusPending,
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsActive reports whether the request still counts against the per-email
// admission limit.
func (c *ClaimRequest) IsActive() bool {
	return c.Status == StatusPending || c.Status == StatusSent
}

// EmailHash returns the one-way digest used everywhere the address would
// otherwise leak into audit metadata.
func (c *ClaimRequest) EmailHash() string {
	return email.Hash(c.Email)
}

// CanSend checks the pending→sent and sent→sent (resend) guards.
func (c *ClaimRequest) CanSend() error {
	if !c.Status.CanTransitionTo(StatusSent) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot send in status %q", c.Status)
	}
	return nil
}

// ApplySent marks delivery as dispatched. Valid for the first send and for
// resends alike.
func (c *ClaimRequest) ApplySent(now time.Time) {
	c.Status = StatusSent
	c.SentAt = &now
	c.UpdatedAt = now
}

// CanClaim checks the sent→claimed guard, excluding the delivery window
// (the caller evaluates that separately so an expired request can be
// transitioned rather than just rejected).
func (c *ClaimRequest) CanClaim() error {
	if c.Status == StatusClaimed {
		return dErrors.New(dErrors.CodeConflict, "claim request already used")
	}
	if !c.Status.CanTransitionTo(StatusClaimed) {
		return dErrors.Newf(dErrors.CodeBadRequest, "cannot claim in status %q", c.Status)
	}
	return nil
}

// DeliveryExpired reports whether the delivery validity window has elapsed.
// Measured from SentAt, falling back to CreatedAt for requests stuck in
// pending.
func (c *ClaimRequest) DeliveryExpired(now time.Time, window time.Duration) bool {
	anchor := c.CreatedAt
	if c.SentAt != nil {
		anchor = *c.SentAt
	}
	return now.Sub(anchor) > window
}

// ApplyClaimed binds the exchange outcome. The three claimed fields are set
// together here and nowhere else.
func (c *ClaimRequest) ApplyClaimed(uid string, memoryID id.MemoryID, now time.Time) {
	c.Status = StatusClaimed
	c.ClaimedAt = &now
	c.ClaimedByUID = uid
	c.MemoryID = memoryID
	c.UpdatedAt = now
}

// ApplyExpired marks the terminal expiry reached lazily at exchange time.
func (c *ClaimRequest) ApplyExpired(now time.Time) {
	c.Status = StatusExpired
	c.UpdatedAt = now
}

// CanChangeEmail checks the email-change guards: not claimed, not terminal,
// and not already changed once.
func (c *ClaimRequest) CanChangeEmail() error {
	if c.Status == StatusClaimed {
		return dErrors.New(dErrors.CodeConflict, "claim request already used")
	}
	if c.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeBadRequest, "cannot change email in status %q", c.Status)
	}
	if c.EmailChanged {
		return dErrors.New(dErrors.CodeConflict, "email already changed once")
	}
	return nil
}

// ApplyEmailChange replaces the target address. Status never moves backward
// here; the caller re-arms delivery separately.
func (c *ClaimRequest) ApplyEmailChange(newAddr string, now time.Time) {
	c.Email = email.Normalize(newAddr)
	c.EmailChanged = true
	c.UpdatedAt = now
}
