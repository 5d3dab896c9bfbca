package admission

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/requestcontext"
)

const (
	stripeSignatureHeader  = "Stripe-Signature"
	defaultStripeTolerance = 5 * time.Minute
)

// StripeVerifier validates payment webhooks using Stripe's v1 signature
// scheme: HMAC-SHA256 over "<timestamp>.<raw body>", with a replay tolerance
// window on the signed timestamp.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: defaultStripeTolerance}
}

func NewStripeVerifierWithTolerance(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: tolerance}
}

func (v *StripeVerifier) Verify(ctx context.Context, proof Proof) error {
	if v.secret == "" {
		return dErrors.New(dErrors.CodeInternal, "stripe webhook secret not configured")
	}

	timestamp, signatures := parseStripeSignatureHeader(proof.Headers.Values(stripeSignatureHeader))
	if timestamp == "" || len(signatures) == 0 {
		return dErrors.New(dErrors.CodeUnauthorized, "missing stripe signature")
	}
	timestampUnix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || timestampUnix <= 0 {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid stripe signature timestamp")
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	signedPayload := append([]byte(timestamp), '.')
	signedPayload = append(signedPayload, proof.Payload...)
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	valid := false
	for _, sigHex := range signatures {
		decoded, err := hex.DecodeString(sigHex)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			valid = true
			break
		}
	}
	if !valid {
		return dErrors.New(dErrors.CodeUnauthorized, "stripe signature mismatch")
	}

	if v.tolerance > 0 {
		skew := requestcontext.Now(ctx).UTC().Unix() - timestampUnix
		if skew < 0 {
			skew = -skew
		}
		if time.Duration(skew)*time.Second > v.tolerance {
			return dErrors.New(dErrors.CodeUnauthorized, "stripe signature outside tolerance")
		}
	}
	return nil
}

// CheckoutEvent is the subset of a checkout.session.completed payload the
// gate needs. Provenance tags ride in the session metadata set at checkout
// creation time.
type CheckoutEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			CustomerEmail  string `json:"customer_email"`
			CustomerDetail struct {
				Email string `json:"email"`
			} `json:"customer_details"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Email returns the payer's address, preferring customer_details.
func (e *CheckoutEvent) Email() string {
	if e.Data.Object.CustomerDetail.Email != "" {
		return e.Data.Object.CustomerDetail.Email
	}
	return e.Data.Object.CustomerEmail
}

// ParseCheckoutEvent decodes a verified webhook payload. Only completed
// checkout sessions admit a customer; everything else is ignored upstream.
func ParseCheckoutEvent(payload []byte) (*CheckoutEvent, error) {
	var event CheckoutEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid webhook payload")
	}
	if !strings.HasPrefix(event.Type, "checkout.session.") {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported event type %q", event.Type)
	}
	return &event, nil
}

func parseStripeSignatureHeader(values []string) (string, []string) {
	joined := strings.TrimSpace(strings.Join(values, ","))
	if joined == "" {
		return "", nil
	}
	var t string
	v1 := make([]string, 0, 2)
	for _, part := range strings.Split(joined, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key == "t" && t == "" {
			t = val
			continue
		}
		if key == "v1" && val != "" {
			v1 = append(v1, val)
		}
	}
	return t, v1
}
