package admission

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/requestcontext"
)

const stripeTestSecret = "whsec_test"

func signStripe(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", timestamp)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func stripeProof(header string, payload []byte) Proof {
	headers := http.Header{}
	if header != "" {
		headers.Set("Stripe-Signature", header)
	}
	return Proof{Payload: payload, Headers: headers}
}

func TestStripeVerify(t *testing.T) {
	verifier := NewStripeVerifier(stripeTestSecret)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	t.Run("valid signature", func(t *testing.T) {
		header := signStripe(stripeTestSecret, now.Unix(), payload)
		assert.NoError(t, verifier.Verify(ctx, stripeProof(header, payload)))
	})

	t.Run("missing header", func(t *testing.T) {
		err := verifier.Verify(ctx, stripeProof("", payload))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signStripe("whsec_other", now.Unix(), payload)
		err := verifier.Verify(ctx, stripeProof(header, payload))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signStripe(stripeTestSecret, now.Unix(), payload)
		err := verifier.Verify(ctx, stripeProof(header, []byte(`{"id":"evt_2"}`)))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("outside tolerance", func(t *testing.T) {
		stale := now.Add(-10 * time.Minute).Unix()
		header := signStripe(stripeTestSecret, stale, payload)
		err := verifier.Verify(ctx, stripeProof(header, payload))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unconfigured secret fails closed", func(t *testing.T) {
		unset := NewStripeVerifier("")
		header := signStripe(stripeTestSecret, now.Unix(), payload)
		err := unset.Verify(ctx, stripeProof(header, payload))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestParseCheckoutEvent(t *testing.T) {
	t.Run("completed session with metadata", func(t *testing.T) {
		payload := []byte(`{
			"id": "evt_1",
			"type": "checkout.session.completed",
			"data": {"object": {
				"customer_details": {"email": "payer@x.com"},
				"metadata": {"tenant": "t1", "lpId": "lp-9", "productType": "album"}
			}}
		}`)
		event, err := ParseCheckoutEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, "payer@x.com", event.Email())
		assert.Equal(t, "t1", event.Data.Object.Metadata["tenant"])
	})

	t.Run("falls back to customer_email", func(t *testing.T) {
		payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"customer_email":"payer@x.com"}}}`)
		event, err := ParseCheckoutEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, "payer@x.com", event.Email())
	})

	t.Run("non-checkout event rejected", func(t *testing.T) {
		_, err := ParseCheckoutEvent([]byte(`{"id":"evt_1","type":"invoice.paid"}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("garbage payload rejected", func(t *testing.T) {
		_, err := ParseCheckoutEvent([]byte(`not json`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
