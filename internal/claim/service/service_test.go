package service_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"claimgate/internal/admission"
	"claimgate/internal/audit"
	"claimgate/internal/claim/models"
	"claimgate/internal/claim/service"
	"claimgate/internal/claim/store"
	"claimgate/internal/claimtoken"
	"claimgate/internal/content"
	"claimgate/internal/mailer"
	"claimgate/internal/platform/logger"
	"claimgate/internal/platform/metrics"
	"claimgate/internal/ratelimit"
	id "claimgate/pkg/domain"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/requestcontext"
)

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, admission.Proof) error { return v.err }

type captureDispatcher struct {
	mu       sync.Mutex
	messages []mailer.Message
	err      error
}

func (d *captureDispatcher) Dispatch(_ context.Context, msg mailer.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, msg)
	return nil
}

func (d *captureDispatcher) sent() []mailer.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]mailer.Message(nil), d.messages...)
}

type ServiceSuite struct {
	suite.Suite
	now        time.Time
	clock      time.Time
	claims     *store.InMemoryStore
	memories   *content.InMemoryStore
	auditStore *audit.InMemoryStore
	dispatcher *captureDispatcher
	metrics    *metrics.Metrics
	codec      *claimtoken.Codec
	svc        *service.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = s.now
	s.claims = store.NewInMemoryStore()
	s.memories = content.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.dispatcher = &captureDispatcher{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.codec = claimtoken.NewCodec("test-signing-key", "claimgate",
		claimtoken.WithTimeFunc(func() time.Time { return s.clock }))
	s.svc = s.newService()
}

func (s *ServiceSuite) newService(opts ...service.Option) *service.Service {
	verifiers := map[models.Source]admission.Verifier{
		models.SourceLPForm:     stubVerifier{},
		models.SourceStorefront: stubVerifier{},
		models.SourceStripe:     stubVerifier{},
	}
	cfg := service.Config{
		ClaimTokenTTL:   72 * time.Hour,
		EmailConfirmTTL: 24 * time.Hour,
		GateWindow:      time.Hour,
		ClaimBaseURL:    "https://claims.example.com",
		Tenants:         map[string]string{"acme": "https://acme.example.com"},
	}
	base := []service.Option{
		service.WithLogger(logger.NewNop()),
		service.WithMetrics(s.metrics),
		service.WithAuditRecorder(audit.NewRecorder(s.auditStore, logger.NewNop())),
		service.WithEmailChangeLimiter(ratelimit.NewLimiter(
			ratelimit.NewInMemoryBucketStore(), "email-change", 5, time.Hour, logger.NewNop())),
		service.WithResendLimiter(ratelimit.NewLimiter(
			ratelimit.NewInMemoryBucketStore(), "resend", 5, time.Hour, logger.NewNop())),
	}
	return service.New(s.claims, s.memories, s.codec, s.dispatcher, verifiers, cfg, append(base, opts...)...)
}

func (s *ServiceSuite) ctxAt(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}

func (s *ServiceSuite) authCtx(at time.Time, subject, email string) context.Context {
	return requestcontext.WithSubject(s.ctxAt(at), subject, email)
}

func gateRequest(email string) models.GateRequest {
	return models.GateRequest{
		Email:       email,
		Tenant:      "acme",
		LPID:        "lp-42",
		ProductType: "memory-book",
	}
}

// gate runs a happy-path admission and returns the request id plus the token
// embedded in the dispatched mail.
func (s *ServiceSuite) gate(email string) (id.RequestID, string) {
	resp, err := s.svc.Gate(s.ctxAt(s.clock), gateRequest(email), models.SourceLPForm, admission.Proof{})
	s.Require().NoError(err)
	requestID, err := id.ParseRequestID(resp.RequestID)
	s.Require().NoError(err)

	msgs := s.dispatcher.sent()
	s.Require().NotEmpty(msgs)
	return requestID, tokenFromLink(s.T(), msgs[len(msgs)-1].ClaimURL)
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("bad link %q: %v", link, err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("no token in link %q", link)
	}
	return token
}

func (s *ServiceSuite) auditEvents(requestID id.RequestID) []audit.Event {
	entries, err := s.auditStore.ListByRequest(context.Background(), requestID)
	s.Require().NoError(err)
	events := make([]audit.Event, len(entries))
	for i, e := range entries {
		events[i] = e.Event
	}
	return events
}

func (s *ServiceSuite) TestGateHappyPath() {
	requestID, _ := s.gate("ada.lovelace@example.com")

	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusSent, claim.Status)
	s.Equal("ada.lovelace@example.com", claim.Email)
	s.Require().NotNil(claim.SentAt)
	s.Equal(s.now, *claim.SentAt)

	msgs := s.dispatcher.sent()
	s.Require().Len(msgs, 1)
	s.Equal("ada.lovelace@example.com", msgs[0].To)
	s.Equal("acme", msgs[0].Tenant)
	s.Contains(msgs[0].ClaimURL, "https://claims.example.com/claim?token=")

	s.Equal([]audit.Event{audit.EventGateAccepted, audit.EventClaimSent}, s.auditEvents(requestID))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.ClaimsIssued.WithLabelValues("lp-form")))
}

func (s *ServiceSuite) TestGateRejectedProofWritesNothing() {
	verifiers := map[models.Source]admission.Verifier{
		models.SourceLPForm: stubVerifier{err: dErrors.New(dErrors.CodeBadRequest, "captcha verification failed")},
	}
	svc := service.New(s.claims, s.memories, s.codec, s.dispatcher, verifiers, service.Config{
		ClaimTokenTTL: 72 * time.Hour,
		GateWindow:    time.Hour,
	}, service.WithLogger(logger.NewNop()), service.WithAuditRecorder(audit.NewRecorder(s.auditStore, logger.NewNop())))

	_, err := svc.Gate(s.ctxAt(s.now), gateRequest("ada@example.com"), models.SourceLPForm, admission.Proof{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	active, err := s.claims.HasActiveByEmailSince(context.Background(), "ada@example.com", s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.False(active)
	s.Empty(s.dispatcher.sent())

	day, err := s.auditStore.ListByDay(context.Background(), audit.DayBucket(s.now))
	s.Require().NoError(err)
	s.Empty(day)
}

func (s *ServiceSuite) TestGatePerEmailWindow() {
	s.gate("ada@example.com")

	_, err := s.svc.Gate(s.ctxAt(s.now.Add(30*time.Minute)), gateRequest("ada@example.com"), models.SourceLPForm, admission.Proof{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.RateLimited.WithLabelValues("gate")))

	// A different address is unaffected.
	_, err = s.svc.Gate(s.ctxAt(s.now.Add(30*time.Minute)), gateRequest("grace@example.com"), models.SourceLPForm, admission.Proof{})
	s.Require().NoError(err)

	// Outside the trailing window the same address is admitted again.
	_, err = s.svc.Gate(s.ctxAt(s.now.Add(2*time.Hour)), gateRequest("ada@example.com"), models.SourceLPForm, admission.Proof{})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestGateDispatchFailureLeavesPending() {
	s.dispatcher.err = errors.New("smtp unavailable")

	_, err := s.svc.Gate(s.ctxAt(s.now), gateRequest("ada@example.com"), models.SourceLPForm, admission.Proof{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	// The record exists but never armed.
	day, err := s.auditStore.ListByDay(context.Background(), audit.DayBucket(s.now))
	s.Require().NoError(err)
	s.Require().Len(day, 1)
	s.Equal(audit.EventGateAccepted, day[0].Event)

	claim, err := s.claims.FindByID(context.Background(), day[0].RequestID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, claim.Status)
}

func (s *ServiceSuite) TestExchangeHappyPath() {
	requestID, token := s.gate("ada@example.com")

	resp, err := s.svc.Exchange(s.authCtx(s.now.Add(time.Hour), "uid-1", "ada@example.com"), token)
	s.Require().NoError(err)
	s.NotEmpty(resp.MemoryID)
	s.Equal("https://acme.example.com/memories/"+resp.MemoryID, resp.RedirectURL)

	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusClaimed, claim.Status)
	s.Equal("uid-1", claim.ClaimedByUID)
	s.Equal(resp.MemoryID, claim.MemoryID.String())
	s.Require().NotNil(claim.ClaimedAt)

	memoryID, err := id.ParseMemoryID(resp.MemoryID)
	s.Require().NoError(err)
	memory, err := s.memories.FindByID(context.Background(), memoryID)
	s.Require().NoError(err)
	s.Equal("uid-1", memory.OwnerUID)
	s.Equal("acme", memory.Tenant)
	s.Equal("lp-42", memory.LPID)

	s.Equal([]audit.Event{audit.EventGateAccepted, audit.EventClaimSent, audit.EventClaimUsed}, s.auditEvents(requestID))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.ClaimsExchanged.WithLabelValues("claimed")))
}

func (s *ServiceSuite) TestExchangeEmailMismatch() {
	requestID, token := s.gate("ada@example.com")

	_, err := s.svc.Exchange(s.authCtx(s.now, "uid-2", "grace@example.com"), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	fields := dErrors.Fields(err)
	s.Equal("email_mismatch", fields["errorType"])
	s.Equal("ada@example.com", fields["claimEmail"])
	s.Equal("grace@example.com", fields["userEmail"])

	// No mutation on mismatch.
	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusSent, claim.Status)
	s.Equal(0, s.memories.Count())
}

func (s *ServiceSuite) TestExchangeTwiceConflicts() {
	_, token := s.gate("ada@example.com")

	_, err := s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), token)
	s.Require().NoError(err)

	_, err = s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(1, s.memories.Count())
}

func (s *ServiceSuite) TestExchangeUnauthenticated() {
	_, token := s.gate("ada@example.com")

	_, err := s.svc.Exchange(s.ctxAt(s.now), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestExchangeUnknownRequest() {
	token, err := s.codec.IssueClaim(id.NewRequestID(), 72*time.Hour, s.now)
	s.Require().NoError(err)

	_, err = s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestExchangePastWindowExpiresTerminally() {
	requestID, _ := s.gate("ada@example.com")

	// 73h after dispatch the delivery window has lapsed. Issue a token that
	// is itself still valid so the window check is what trips.
	later := s.now.Add(73 * time.Hour)
	s.clock = later
	token, err := s.codec.IssueClaim(requestID, 72*time.Hour, later)
	s.Require().NoError(err)

	_, err = s.svc.Exchange(s.authCtx(later, "uid-1", "ada@example.com"), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeGone))

	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, claim.Status)
	s.Contains(s.auditEvents(requestID), audit.EventClaimExpired)

	// Expired is terminal: neither exchange nor resend revives it.
	_, err = s.svc.Exchange(s.authCtx(later, "uid-1", "ada@example.com"), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	err = s.svc.Resend(s.ctxAt(later), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestExchangeExpiredTokenFailsClosed() {
	requestID, token := s.gate("ada@example.com")

	s.clock = s.now.Add(80 * time.Hour)
	_, err := s.svc.Exchange(s.authCtx(s.clock, "uid-1", "ada@example.com"), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeGone))

	// Token rejection happens before any store access; the row is untouched.
	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusSent, claim.Status)
}

func (s *ServiceSuite) TestExchangeConcurrentSingleWinner() {
	_, token := s.gate("ada@example.com")

	const racers = 8
	results := make([]error, racers)
	var g errgroup.Group
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			_, results[i] = s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), token)
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case dErrors.HasCode(err, dErrors.CodeConflict):
			conflicts++
		default:
			s.Failf("unexpected outcome", "error: %v", err)
		}
	}
	s.Equal(1, wins)
	s.Equal(racers-1, conflicts)
	s.Equal(1, s.memories.Count(), "losing exchanges must roll their records back")
}

func (s *ServiceSuite) TestEmailChangeRoundTrip() {
	requestID, _ := s.gate("ada@example.com")
	userCtx := s.authCtx(s.now, "uid-1", "grace@example.com")

	err := s.svc.RequestEmailChange(userCtx, requestID, "grace@example.com")
	s.Require().NoError(err)

	msgs := s.dispatcher.sent()
	s.Require().Len(msgs, 2)
	s.Equal("grace@example.com", msgs[1].To)
	confirmToken := tokenFromLink(s.T(), msgs[1].ClaimURL)

	// Address unchanged until confirmation.
	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal("ada@example.com", claim.Email)

	err = s.svc.ConfirmEmailChange(s.ctxAt(s.now), confirmToken)
	s.Require().NoError(err)

	claim, err = s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal("grace@example.com", claim.Email)
	s.True(claim.EmailChanged)
	s.Equal(models.StatusSent, claim.Status)

	// The fresh claim token went to the new address and exchanges cleanly.
	msgs = s.dispatcher.sent()
	s.Require().Len(msgs, 3)
	s.Equal("grace@example.com", msgs[2].To)
	newToken := tokenFromLink(s.T(), msgs[2].ClaimURL)

	// The old address no longer matches the claim.
	_, err = s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), newToken)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	fields := dErrors.Fields(err)
	s.Equal("email_mismatch", fields["errorType"])
	s.Equal("grace@example.com", fields["claimEmail"])
	s.Equal("ada@example.com", fields["userEmail"])

	resp, err := s.svc.Exchange(s.authCtx(s.now, "uid-1", "grace@example.com"), newToken)
	s.Require().NoError(err)
	s.NotEmpty(resp.MemoryID)

	events := s.auditEvents(requestID)
	s.Equal([]audit.Event{
		audit.EventGateAccepted,
		audit.EventClaimSent,
		audit.EventEmailChangeRequest,
		audit.EventEmailChanged,
		audit.EventClaimSent,
		audit.EventClaimResent,
		audit.EventClaimUsed,
	}, events)
}

func (s *ServiceSuite) TestEmailChangeOnlyOnce() {
	requestID, _ := s.gate("ada@example.com")
	userCtx := s.authCtx(s.now, "uid-1", "grace@example.com")

	s.Require().NoError(s.svc.RequestEmailChange(userCtx, requestID, "grace@example.com"))
	confirmToken := tokenFromLink(s.T(), s.dispatcher.sent()[1].ClaimURL)
	s.Require().NoError(s.svc.ConfirmEmailChange(s.ctxAt(s.now), confirmToken))

	err := s.svc.RequestEmailChange(userCtx, requestID, "third@example.com")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestEmailChangeRateLimited() {
	requestID, _ := s.gate("ada@example.com")

	svc := s.newService(service.WithEmailChangeLimiter(ratelimit.NewLimiter(
		ratelimit.NewInMemoryBucketStore(), "email-change", 1, time.Hour, logger.NewNop())))
	userCtx := s.authCtx(s.now, "uid-1", "grace@example.com")

	s.Require().NoError(svc.RequestEmailChange(userCtx, requestID, "grace@example.com"))

	err := svc.RequestEmailChange(userCtx, requestID, "grace@example.com")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.RateLimited.WithLabelValues("email-change")))
}

func (s *ServiceSuite) TestEmailChangeOnClaimedConflicts() {
	requestID, token := s.gate("ada@example.com")
	_, err := s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), token)
	s.Require().NoError(err)

	err = s.svc.RequestEmailChange(s.authCtx(s.now, "uid-2", "grace@example.com"), requestID, "grace@example.com")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestConfirmRejectsClaimTokenType() {
	_, token := s.gate("ada@example.com")

	err := s.svc.ConfirmEmailChange(s.ctxAt(s.now), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestResend() {
	requestID, token := s.gate("ada@example.com")

	later := s.now.Add(2 * time.Hour)
	err := s.svc.Resend(s.ctxAt(later), token)
	s.Require().NoError(err)

	msgs := s.dispatcher.sent()
	s.Require().Len(msgs, 2)
	s.Equal("ada@example.com", msgs[1].To)

	claim, err := s.claims.FindByID(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusSent, claim.Status)
	s.Require().NotNil(claim.SentAt)
	s.Equal(later, *claim.SentAt)

	s.Contains(s.auditEvents(requestID), audit.EventClaimResent)

	// The re-issued token is independently valid.
	newToken := tokenFromLink(s.T(), msgs[1].ClaimURL)
	_, err = s.svc.Exchange(s.authCtx(later, "uid-1", "ada@example.com"), newToken)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestResendAfterClaimConflicts() {
	_, token := s.gate("ada@example.com")
	_, err := s.svc.Exchange(s.authCtx(s.now, "uid-1", "ada@example.com"), token)
	s.Require().NoError(err)

	err = s.svc.Resend(s.ctxAt(s.now), token)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestGetClaim() {
	requestID, _ := s.gate("ada@example.com")

	claim, err := s.svc.GetClaim(context.Background(), requestID)
	s.Require().NoError(err)
	s.Equal(requestID, claim.ID)

	_, err = s.svc.GetClaim(context.Background(), id.NewRequestID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
