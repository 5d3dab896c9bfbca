package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "claimgate/pkg/domain-errors"
)

// RecaptchaVerifier checks landing-page form submissions against the
// reCAPTCHA siteverify endpoint.
type RecaptchaVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewRecaptchaVerifier(secret, verifyURL string, client *http.Client) *RecaptchaVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RecaptchaVerifier{secret: secret, verifyURL: verifyURL, client: client}
}

type recaptchaResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, proof Proof) error {
	if v.secret == "" {
		// Misconfiguration fails closed, never open.
		return dErrors.New(dErrors.CodeInternal, "recaptcha secret not configured")
	}
	if proof.RecaptchaToken == "" {
		return dErrors.New(dErrors.CodeBadRequest, "recaptcha token is required")
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {proof.RecaptchaToken},
	}
	if proof.RemoteIP != "" {
		form.Set("remoteip", proof.RemoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build recaptcha request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "recaptcha verification unavailable")
	}
	defer resp.Body.Close()

	var result recaptchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode recaptcha response")
	}
	if !result.Success {
		return dErrors.New(dErrors.CodeBadRequest, "captcha verification failed")
	}
	return nil
}
