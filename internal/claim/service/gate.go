package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"claimgate/internal/admission"
	"claimgate/internal/audit"
	"claimgate/internal/claim/models"
	"claimgate/internal/mailer"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/requestcontext"
)

func mailerMessage(claim *models.ClaimRequest, baseURL, token string) mailer.Message {
	return mailer.Message{
		To:       claim.Email,
		Subject:  "Your content is ready to claim",
		ClaimURL: mailer.ClaimURL(baseURL, token),
		Tenant:   claim.Tenant,
	}
}

// VerifyWebhook authenticates a raw webhook delivery before the transport
// inspects its payload. Gate re-verifies on admission, so skipping this never
// bypasses the proof check; it exists so forged deliveries are rejected
// without being parsed.
func (s *Service) VerifyWebhook(ctx context.Context, source models.Source, proof admission.Proof) error {
	verifier, ok := s.verifiers[source]
	if !ok {
		return dErrors.Newf(dErrors.CodeInternal, "no verifier configured for source %q", source)
	}
	return verifier.Verify(ctx, proof)
}

// Gate admits a customer through a source-specific trust signal and arms a
// single-use claim. The proof is verified before anything is written; a
// rejected proof leaves no trace.
func (s *Service) Gate(ctx context.Context, req models.GateRequest, source models.Source, proof admission.Proof) (*models.GateResponse, error) {
	tr := otel.Tracer("claim/service")
	ctx, span := tr.Start(ctx, "Gate",
		trace.WithAttributes(
			attribute.String("claim.source", string(source)),
			attribute.String("claim.tenant", req.Tenant),
		),
	)
	defer span.End()

	verifier, ok := s.verifiers[source]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no verifier configured for source %q", source)
	}
	if err := verifier.Verify(ctx, proof); err != nil {
		s.logger.InfoContext(ctx, "gate proof rejected",
			"source", source,
			"tenant", req.Tenant,
			"error", err,
		)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	claim, err := models.NewClaimRequest(req.Email, req.Tenant, req.LPID, req.ProductType, source, now)
	if err != nil {
		return nil, err
	}

	active, err := s.claims.HasActiveByEmailSince(ctx, claim.Email, now.Add(-s.cfg.GateWindow))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check admission limit")
	}
	if active {
		s.incrementRateLimited("gate")
		return nil, dErrors.New(dErrors.CodeRateLimited, "an active claim already exists for this email")
	}

	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create claim request")
	}
	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventGateAccepted,
		Tenant:    claim.Tenant,
		LPID:      claim.LPID,
		RequestID: claim.ID,
		EmailHash: claim.EmailHash(),
		Metadata:  map[string]string{"source": string(source)},
	})

	if err := s.deliverClaim(ctx, claim); err != nil {
		// The record stays pending; a later resend can still arm it.
		return nil, err
	}

	s.incrementClaimsIssued(string(source))
	return &models.GateResponse{RequestID: claim.ID.String()}, nil
}

// deliverClaim mints a fresh claim token, dispatches it, and confirms the
// sent state. Shared by the gate, resend, and email-change confirmation.
func (s *Service) deliverClaim(ctx context.Context, claim *models.ClaimRequest) error {
	now := requestcontext.Now(ctx)

	token, err := s.codec.IssueClaim(claim.ID, s.cfg.ClaimTokenTTL, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue claim token")
	}

	if err := claim.CanSend(); err != nil {
		return err
	}
	msg := mailerMessage(claim, s.cfg.ClaimBaseURL, token)
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "claim mail dispatch failed",
			"request_id", claim.ID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver claim")
	}

	updated, err := s.claims.UpdateIfStatus(ctx, claim.ID, claim.Status, func(r *models.ClaimRequest) {
		r.ApplySent(now)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm delivery")
	}
	*claim = *updated

	s.recordAudit(ctx, audit.Entry{
		Event:     audit.EventClaimSent,
		Tenant:    claim.Tenant,
		LPID:      claim.LPID,
		RequestID: claim.ID,
		EmailHash: claim.EmailHash(),
	})
	return nil
}
