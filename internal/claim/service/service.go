// Package service orchestrates the claim lifecycle: admission through the
// gate, token delivery, the one-shot exchange, and the email-change sub-flow.
// Handlers stay thin; domain guards live on the models; this package wires
// the two together with stores, tokens, and mail.
package service

import (
	"context"
	"log/slog"
	"time"

	"claimgate/internal/admission"
	"claimgate/internal/audit"
	"claimgate/internal/claim/models"
	"claimgate/internal/claim/store"
	"claimgate/internal/claimtoken"
	"claimgate/internal/content"
	"claimgate/internal/mailer"
	"claimgate/internal/platform/metrics"
	"claimgate/internal/ratelimit"
	id "claimgate/pkg/domain"
)

// ContentStore is the slice of the content layer the exchange needs. Delete
// exists solely to roll back a record whose claim CAS was lost.
type ContentStore interface {
	Create(ctx context.Context, memory *content.Memory) error
	Delete(ctx context.Context, memoryID id.MemoryID) error
}

// AuditRecorder appends audit entries. Log-and-continue by contract; no
// error return.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// TokenCodec mints and verifies the claim and email-confirm tokens.
type TokenCodec interface {
	IssueClaim(requestID id.RequestID, ttl time.Duration, now time.Time) (string, error)
	IssueEmailConfirm(requestID id.RequestID, newEmail string, ttl time.Duration, now time.Time) (string, error)
	Verify(tokenString string, want claimtoken.TokenType) (*claimtoken.Claims, error)
}

// Config carries the policy knobs the service applies.
type Config struct {
	// ClaimTokenTTL bounds both the token validity and the delivery window
	// measured from sentAt.
	ClaimTokenTTL time.Duration
	// EmailConfirmTTL bounds the email-change confirmation token.
	EmailConfirmTTL time.Duration
	// GateWindow is the trailing window for the per-email admission limit.
	GateWindow time.Duration
	// ClaimBaseURL is the public origin claim links point at.
	ClaimBaseURL string
	// Tenants maps a tenant tag to its post-claim redirect origin.
	Tenants map[string]string
}

// Service is the claim lifecycle orchestrator. Stateless; all persistent
// state lives behind the stores.
type Service struct {
	claims     store.Store
	memories   ContentStore
	codec      TokenCodec
	dispatcher mailer.Dispatcher
	verifiers  map[models.Source]admission.Verifier
	cfg        Config

	logger             *slog.Logger
	metrics            *metrics.Metrics
	audit              AuditRecorder
	emailChangeLimiter *ratelimit.Limiter
	resendLimiter      *ratelimit.Limiter
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

// WithEmailChangeLimiter throttles email-change requests per requestId.
func WithEmailChangeLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) {
		s.emailChangeLimiter = l
	}
}

// WithResendLimiter throttles resend requests per email.
func WithResendLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) {
		s.resendLimiter = l
	}
}

func New(claims store.Store, memories ContentStore, codec TokenCodec, dispatcher mailer.Dispatcher, verifiers map[models.Source]admission.Verifier, cfg Config, opts ...Option) *Service {
	s := &Service{
		claims:     claims,
		memories:   memories,
		codec:      codec,
		dispatcher: dispatcher,
		verifiers:  verifiers,
		cfg:        cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}

func (s *Service) incrementClaimsIssued(source string) {
	if s.metrics != nil {
		s.metrics.IncrementClaimsIssued(source)
	}
}

func (s *Service) incrementClaimsExchanged(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementClaimsExchanged(outcome)
	}
}

func (s *Service) incrementRateLimited(flow string) {
	if s.metrics != nil {
		s.metrics.IncrementRateLimited(flow)
	}
}

func (s *Service) incrementEmailChanges() {
	if s.metrics != nil {
		s.metrics.EmailChanges.Inc()
	}
}

func (s *Service) incrementClaimResends() {
	if s.metrics != nil {
		s.metrics.ClaimResends.Inc()
	}
}

// redirectURL resolves the post-claim destination for a tenant.
func (s *Service) redirectURL(tenant string, memoryID id.MemoryID) string {
	origin, ok := s.cfg.Tenants[tenant]
	if !ok {
		origin = s.cfg.ClaimBaseURL
	}
	return origin + "/memories/" + memoryID.String()
}
