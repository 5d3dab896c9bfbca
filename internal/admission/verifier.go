// Package admission holds the per-source trust-signal verifiers invoked by
// the gate. Each verifier is a pass/fail oracle over a source-specific proof;
// no verifier ever touches stored state.
package admission

import (
	"context"
	"net/http"
)

// Proof carries the source-specific evidence attached to a gate call. Only
// the fields relevant to the verifying source are populated.
type Proof struct {
	// RecaptchaToken is the CAPTCHA response from the landing-page form.
	RecaptchaToken string
	// StoreToken is the signed kiosk token from a physical storefront.
	StoreToken string
	// Tenant is the provenance tag the caller claims; kiosk tokens must be
	// bound to it.
	Tenant string
	// Payload and Headers carry the raw webhook body and its signature
	// headers for the payment source.
	Payload []byte
	Headers http.Header
	// RemoteIP is forwarded to CAPTCHA verification when available.
	RemoteIP string
}

// Verifier is a source-specific admission oracle. A nil error admits the
// caller; a coded domain error rejects without side effects.
type Verifier interface {
	Verify(ctx context.Context, proof Proof) error
}
