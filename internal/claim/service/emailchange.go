package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"claimgate/internal/audit"
	"claimgate/internal/claim/models"
	"claimgate/internal/claim/store"
	"claimgate/internal/claimtoken"
	"claimgate/internal/mailer"
	id "claimgate/pkg/domain"
	dErrors "claimgate/pkg/domain-errors"
	emailpkg "claimgate/pkg/email"
	"claimgate/pkg/requestcontext"
)

// RequestEmailChange starts the two-step redirection of a claim to a new
// address. Nothing mutates here; the request only mints a confirmation token
// bound to requestId+newEmail and mails it to the candidate address.
func (s *Service) RequestEmailChange(ctx context.Context, requestID id.RequestID, newEmail string) error {
	tr := otel.Tracer("claim/service")
	ctx, span := tr.Start(ctx, "RequestEmailChange",
		trace.WithAttributes(attribute.String("claim.request_id", requestID.String())),
	)
	defer span.End()

	if requestcontext.Subject(ctx) == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	newEmail = emailpkg.Normalize(newEmail)
	if !emailpkg.IsValid(newEmail) {
		return dErrors.New(dErrors.CodeValidation, "a valid email address is required")
	}

	if s.emailChangeLimiter != nil {
		if err := s.emailChangeLimiter.Check(ctx, requestID.String()); err != nil {
			s.incrementRateLimited("email-change")
			return err
		}
	}

	claim, err := s.claims.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "claim request not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim request")
	}
	if err := claim.CanChangeEmail(); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	token, err := s.codec.IssueEmailConfirm(claim.ID, newEmail, s.cfg.EmailConfirmTTL, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue confirmation token")
	}

	msg := mailer.Message{
		To:       newEmail,
		Subject:  "Confirm your new email address",
		ClaimURL: mailer.ConfirmURL(s.cfg.ClaimBaseURL, token),
		Tenant:   claim.Tenant,
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver confirmation")
	}

	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventEmailChangeRequest,
		Actor:     requestcontext.Subject(ctx),
		Tenant:    claim.Tenant,
		LPID:      claim.LPID,
		RequestID: claim.ID,
		EmailHash: claim.EmailHash(),
		Metadata:  map[string]string{"newEmailHash": emailpkg.Hash(newEmail)},
	})
	return nil
}

// ConfirmEmailChange finalizes the redirection: the address is swapped under
// the row lock, a fresh claim token goes out to the new address, and the
// request re-arms as sent. Status never moves backward and nothing here can
// claim.
func (s *Service) ConfirmEmailChange(ctx context.Context, token string) error {
	tr := otel.Tracer("claim/service")
	ctx, span := tr.Start(ctx, "ConfirmEmailChange")
	defer span.End()

	claims, err := s.codec.Verify(token, claimtoken.TypeEmailConfirm)
	if err != nil {
		return err
	}
	requestID, err := claims.RequestID()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid confirmation token")
	}
	newEmail := emailpkg.Normalize(claims.Email)
	if !emailpkg.IsValid(newEmail) {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid confirmation token")
	}

	now := requestcontext.Now(ctx)
	var guardErr error
	updated, err := s.claims.UpdateIfStatus(ctx, requestID, models.StatusSent, func(r *models.ClaimRequest) {
		if guardErr = r.CanChangeEmail(); guardErr != nil {
			return
		}
		r.ApplyEmailChange(newEmail, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "claim request not found")
		case errors.Is(err, store.ErrStatusConflict):
			return s.emailChangeConflict(ctx, requestID)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to change email")
		}
	}
	if guardErr != nil {
		return guardErr
	}

	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventEmailChanged,
		Tenant:    updated.Tenant,
		LPID:      updated.LPID,
		RequestID: updated.ID,
		EmailHash: updated.EmailHash(),
	})
	s.incrementEmailChanges()

	if err := s.deliverClaim(ctx, updated); err != nil {
		return err
	}
	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventClaimResent,
		Tenant:    updated.Tenant,
		LPID:      updated.LPID,
		RequestID: updated.ID,
		EmailHash: updated.EmailHash(),
	})
	return nil
}

// emailChangeConflict maps a failed sent-state precondition to the caller's
// status code: used claims conflict, everything else is a plain bad state.
func (s *Service) emailChangeConflict(ctx context.Context, requestID id.RequestID) error {
	claim, err := s.claims.FindByID(ctx, requestID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim request")
	}
	if claim.Status == models.StatusClaimed {
		return dErrors.New(dErrors.CodeConflict, "claim request already used")
	}
	return dErrors.Newf(dErrors.CodeBadRequest, "cannot change email in status %q", claim.Status)
}

// Resend re-issues delivery for a not-yet-claimed request.
func (s *Service) Resend(ctx context.Context, token string) error {
	tr := otel.Tracer("claim/service")
	ctx, span := tr.Start(ctx, "Resend")
	defer span.End()

	claims, err := s.codec.Verify(token, claimtoken.TypeClaim)
	if err != nil {
		return err
	}
	requestID, err := claims.RequestID()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid claim token")
	}

	claim, err := s.claims.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "claim request not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim request")
	}

	if s.resendLimiter != nil {
		if err := s.resendLimiter.Check(ctx, claim.Email); err != nil {
			s.incrementRateLimited("resend")
			return err
		}
	}

	if claim.Status == models.StatusClaimed {
		return dErrors.New(dErrors.CodeConflict, "claim request already used")
	}
	if err := claim.CanSend(); err != nil {
		return dErrors.Newf(dErrors.CodeBadRequest, "cannot resend in status %q", claim.Status)
	}
	if err := s.deliverClaim(ctx, claim); err != nil {
		return err
	}

	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventClaimResent,
		Tenant:    claim.Tenant,
		LPID:      claim.LPID,
		RequestID: claim.ID,
		EmailHash: claim.EmailHash(),
	})
	s.incrementClaimResends()
	return nil
}

// GetClaim returns a claim request for operational inspection. Read-only.
func (s *Service) GetClaim(ctx context.Context, requestID id.RequestID) (*models.ClaimRequest, error) {
	claim, err := s.claims.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim request")
	}
	return claim, nil
}
