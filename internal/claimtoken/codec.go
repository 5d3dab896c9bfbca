// Package claimtoken issues and verifies the signed, time-boxed tokens that
// bind a claim request to its email delivery. Two token types exist: "claim"
// (the deliverable admission ticket) and "email_confirm" (the email-change
// confirmation). Verification always fails closed; there is no fallback data
// on any decode path.
package claimtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "claimgate/pkg/domain"
	dErrors "claimgate/pkg/domain-errors"
)

// TokenType discriminates the two token kinds. The codec rejects a token
// presented for the wrong flow even when the signature is valid.
type TokenType string

const (
	TypeClaim        TokenType = "claim"
	TypeEmailConfirm TokenType = "email_confirm"
)

// Claims is the signed payload. Email is populated only on email_confirm
// tokens, carrying the candidate new address.
type Claims struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// RequestID returns the bound claim request identifier.
func (c *Claims) RequestID() (id.RequestID, error) {
	return id.ParseRequestID(c.Subject)
}

// Codec signs and verifies claim tokens with a symmetric secret.
type Codec struct {
	signingKey []byte
	issuer     string
	timeFunc   func() time.Time
}

type Option func(*Codec)

// WithTimeFunc overrides the verification clock. For boundary tests.
func WithTimeFunc(f func() time.Time) Option {
	return func(c *Codec) {
		c.timeFunc = f
	}
}

func NewCodec(signingKey, issuer string, opts ...Option) *Codec {
	c := &Codec{signingKey: []byte(signingKey), issuer: issuer, timeFunc: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssueClaim mints a delivery token bound to a request, valid for ttl.
func (c *Codec) IssueClaim(requestID id.RequestID, ttl time.Duration, now time.Time) (string, error) {
	return c.sign(Claims{
		Type: string(TypeClaim),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   requestID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.issuer,
		},
	})
}

// IssueEmailConfirm mints a confirmation token binding a request to a
// candidate new email address.
func (c *Codec) IssueEmailConfirm(requestID id.RequestID, newEmail string, ttl time.Duration, now time.Time) (string, error) {
	return c.sign(Claims{
		Type:  string(TypeEmailConfirm),
		Email: newEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   requestID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    c.issuer,
		},
	})
}

func (c *Codec) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Verify validates signature, expiry, and token type. Expired tokens map to
// CodeGone (the claim window has passed); everything else invalid maps to
// CodeUnauthorized.
func (c *Codec) Verify(tokenString string, want TokenType) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithTimeFunc(c.timeFunc))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeGone, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Type != string(want) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "wrong token type")
	}
	if _, err := claims.RequestID(); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return claims, nil
}
