// Package handler exposes the claim lifecycle over HTTP. Transport concerns
// only; every decision belongs to the service.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"claimgate/internal/admission"
	"claimgate/internal/claim/models"
	"claimgate/internal/platform/middleware"
	"claimgate/internal/transport/http/shared"
	id "claimgate/pkg/domain"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/requestcontext"
)

// webhookBodyLimit caps payment webhook payloads.
const webhookBodyLimit = 1 << 20

// Service is the claim lifecycle surface the handler needs.
type Service interface {
	Gate(ctx context.Context, req models.GateRequest, source models.Source, proof admission.Proof) (*models.GateResponse, error)
	VerifyWebhook(ctx context.Context, source models.Source, proof admission.Proof) error
	Exchange(ctx context.Context, token string) (*models.ExchangeResponse, error)
	RequestEmailChange(ctx context.Context, requestID id.RequestID, newEmail string) error
	ConfirmEmailChange(ctx context.Context, token string) error
	Resend(ctx context.Context, token string) error
	GetClaim(ctx context.Context, requestID id.RequestID) (*models.ClaimRequest, error)
}

// Handler handles claim endpoints.
type Handler struct {
	service  Service
	logger   *slog.Logger
	verifier middleware.IdentityVerifier
}

func New(service Service, verifier middleware.IdentityVerifier, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, verifier: verifier}
}

// Register mounts the claim routes. The webhook route skips the JSON
// content-type guard because payment providers sign the raw body; the
// authenticated routes add the bearer check on top of the public chain.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(public chi.Router) {
		public.Use(middleware.ContentTypeJSON)
		public.Post("/claims/gate/lp-form", h.handleGateLPForm)
		public.Post("/claims/gate/storefront", h.handleGateStorefront)
		public.Post("/claims/resend", h.handleResend)
		public.Get("/claims/email-change/confirm", h.handleConfirmEmailChange)
		public.Get("/claims/{requestId}", h.handleGetClaim)
	})

	r.Post("/webhooks/stripe", h.handleStripeWebhook)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.ContentTypeJSON)
		authed.Use(middleware.RequireAuth(h.verifier, h.logger))
		authed.Post("/claims/exchange", h.handleExchange)
		authed.Post("/claims/{requestId}/email-change", h.handleEmailChange)
	})
}

func (h *Handler) handleGateLPForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	proof := admission.Proof{
		RecaptchaToken: req.RecaptchaToken,
		Tenant:         req.Tenant,
		RemoteIP:       requestcontext.ClientIP(ctx),
	}
	resp, err := h.service.Gate(ctx, req, models.SourceLPForm, proof)
	if err != nil {
		h.writeServiceError(ctx, w, "gate lp-form failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleGateStorefront(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.GateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	proof := admission.Proof{
		StoreToken: req.StoreToken,
		Tenant:     req.Tenant,
	}
	resp, err := h.service.Gate(ctx, req, models.SourceStorefront, proof)
	if err != nil {
		h.writeServiceError(ctx, w, "gate storefront failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, resp)
}

// handleStripeWebhook verifies the provider signature over the raw payload,
// then routes completed checkout sessions through the gate. Events the gate
// does not care about are acknowledged so the provider stops retrying them.
func (h *Handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable payload"))
		return
	}

	// Authenticate the delivery before inspecting it. Forged payloads must
	// not learn anything from differentiated parse responses.
	if err := h.service.VerifyWebhook(ctx, models.SourceStripe, admission.Proof{
		Payload: payload,
		Headers: r.Header,
	}); err != nil {
		shared.WriteError(w, err)
		return
	}

	event, err := admission.ParseCheckoutEvent(payload)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if event.Type != "checkout.session.completed" {
		w.WriteHeader(http.StatusOK)
		return
	}

	meta := event.Data.Object.Metadata
	req := models.GateRequest{
		Email:       event.Email(),
		Tenant:      meta["tenant"],
		LPID:        meta["lpId"],
		ProductType: meta["productType"],
	}
	proof := admission.Proof{
		Payload: payload,
		Headers: r.Header,
		Tenant:  req.Tenant,
	}
	resp, err := h.service.Gate(ctx, req, models.SourceStripe, proof)
	if err != nil {
		h.writeServiceError(ctx, w, "gate stripe failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Token == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return
	}

	resp, err := h.service.Exchange(ctx, req.Token)
	if err != nil {
		h.writeServiceError(ctx, w, "exchange failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEmailChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	var req models.EmailChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.service.RequestEmailChange(ctx, requestID, req.NewEmail); err != nil {
		h.writeServiceError(ctx, w, "email change request failed", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return
	}

	if err := h.service.ConfirmEmailChange(ctx, token); err != nil {
		h.writeServiceError(ctx, w, "email change confirmation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Token == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return
	}

	if err := h.service.Resend(ctx, req.Token); err != nil {
		h.writeServiceError(ctx, w, "resend failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetClaim returns the record for operational inspection. The email
// plaintext is redacted to its hash.
func (h *Handler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestId"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	claim, err := h.service.GetClaim(ctx, requestID)
	if err != nil {
		h.writeServiceError(ctx, w, "get claim failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claimView(claim))
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	shared.WriteError(w, err)
}

// claimRecordView is the redacted read model for GET /claims/{requestId}.
type claimRecordView struct {
	RequestID    string `json:"requestId"`
	EmailHash    string `json:"emailHash"`
	Tenant       string `json:"tenant"`
	LPID         string `json:"lpId"`
	ProductType  string `json:"productType"`
	Status       string `json:"status"`
	Source       string `json:"source"`
	EmailChanged bool   `json:"emailChanged"`
	CreatedAt    string `json:"createdAt"`
	SentAt       string `json:"sentAt,omitempty"`
	ClaimedAt    string `json:"claimedAt,omitempty"`
	ClaimedByUID string `json:"claimedByUid,omitempty"`
	MemoryID     string `json:"memoryId,omitempty"`
}

func claimView(c *models.ClaimRequest) claimRecordView {
	v := claimRecordView{
		RequestID:    c.ID.String(),
		EmailHash:    c.EmailHash(),
		Tenant:       c.Tenant,
		LPID:         c.LPID,
		ProductType:  c.ProductType,
		Status:       string(c.Status),
		Source:       string(c.Source),
		EmailChanged: c.EmailChanged,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
		ClaimedByUID: c.ClaimedByUID,
	}
	if c.SentAt != nil {
		v.SentAt = c.SentAt.UTC().Format(time.RFC3339)
	}
	if c.ClaimedAt != nil {
		v.ClaimedAt = c.ClaimedAt.UTC().Format(time.RFC3339)
	}
	if !c.MemoryID.IsNil() {
		v.MemoryID = c.MemoryID.String()
	}
	return v
}
