package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"claimgate/internal/audit"
	"claimgate/internal/claim/models"
	"claimgate/internal/claim/store"
	"claimgate/internal/claimtoken"
	"claimgate/internal/content"
	dErrors "claimgate/pkg/domain-errors"
	emailpkg "claimgate/pkg/email"
	"claimgate/pkg/requestcontext"
)

// Exchange redeems a claim token for ownership of a fresh content record.
// Exactly one exchange per request can ever succeed; the conditional status
// update is the sole arbiter under concurrency.
func (s *Service) Exchange(ctx context.Context, token string) (*models.ExchangeResponse, error) {
	tr := otel.Tracer("claim/service")
	ctx, span := tr.Start(ctx, "Exchange")
	defer span.End()

	subject := requestcontext.Subject(ctx)
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	claims, err := s.codec.Verify(token, claimtoken.TypeClaim)
	if err != nil {
		return nil, err
	}
	requestID, err := claims.RequestID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid claim token")
	}
	span.SetAttributes(attribute.String("claim.request_id", requestID.String()))

	claim, err := s.claims.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim request")
	}

	userEmail := emailpkg.Normalize(requestcontext.Email(ctx))
	if userEmail != claim.Email {
		s.incrementClaimsExchanged("mismatch")
		return nil, dErrors.New(dErrors.CodeForbidden, "authenticated email does not match the claim").
			WithField("errorType", "email_mismatch").
			WithField("claimEmail", claim.Email).
			WithField("userEmail", userEmail)
	}

	if err := claim.CanClaim(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.incrementClaimsExchanged("conflict")
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if claim.DeliveryExpired(now, s.cfg.ClaimTokenTTL) {
		return nil, s.expireClaim(ctx, claim)
	}

	memory := content.NewMemory(subject, claim.Email, claim.Tenant, claim.LPID, claim.ProductType, now)
	if err := s.memories.Create(ctx, memory); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create content record")
	}

	updated, err := s.claims.UpdateIfStatus(ctx, claim.ID, models.StatusSent, func(r *models.ClaimRequest) {
		r.ApplyClaimed(subject, memory.ID, now)
	})
	if err != nil {
		// Lost the race; the record created above must not survive.
		if delErr := s.memories.Delete(ctx, memory.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "orphaned content record after lost exchange race",
				"memory_id", memory.ID,
				"request_id", claim.ID,
				"error", delErr,
			)
		}
		if errors.Is(err, store.ErrStatusConflict) {
			s.incrementClaimsExchanged("conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "claim request already used")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to finalize exchange")
	}

	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventClaimUsed,
		Actor:     subject,
		Tenant:    updated.Tenant,
		LPID:      updated.LPID,
		RequestID: updated.ID,
		EmailHash: updated.EmailHash(),
		Metadata:  map[string]string{"memoryId": memory.ID.String()},
	})
	s.incrementClaimsExchanged("claimed")

	return &models.ExchangeResponse{
		MemoryID:    memory.ID.String(),
		RedirectURL: s.redirectURL(updated.Tenant, memory.ID),
	}, nil
}

// expireClaim performs the lazy sent→expired transition discovered at
// exchange time. Always returns the 410-coded error; a lost CAS here means
// someone else already moved the row, which changes nothing for this caller.
func (s *Service) expireClaim(ctx context.Context, claim *models.ClaimRequest) error {
	now := requestcontext.Now(ctx)
	expired, err := s.claims.UpdateIfStatus(ctx, claim.ID, models.StatusSent, func(r *models.ClaimRequest) {
		r.ApplyExpired(now)
	})
	if err == nil {
		s.recordAudit(ctx, audit.Entry{
			Event:     audit.EventClaimExpired,
			Tenant:    expired.Tenant,
			LPID:      expired.LPID,
			RequestID: expired.ID,
			EmailHash: expired.EmailHash(),
		})
	} else if !errors.Is(err, store.ErrStatusConflict) {
		s.logger.WarnContext(ctx, "failed to mark claim expired",
			"request_id", claim.ID,
			"error", err,
		)
	}
	s.incrementClaimsExchanged("expired")
	return dErrors.New(dErrors.CodeGone, "claim has expired")
}
