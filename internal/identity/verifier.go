// Package identity verifies bearer credentials from the primary identity
// provider. The claim core never manages passwords or sessions itself; it
// only needs a stable subject and a verified email for the caller.
package identity

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"claimgate/internal/platform/middleware"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/email"
)

// Claims is the expected shape of the identity provider's access token.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Verifier validates identity credentials signed with a shared symmetric key.
type Verifier struct {
	signingKey []byte
	issuer     string
}

func NewVerifier(signingKey, issuer string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey), issuer: issuer}
}

// Verify validates the credential and extracts the subject and verified
// email. Unverified emails are rejected: possession of the inbox is the
// whole trust model here.
func (v *Verifier) Verify(tokenString string) (*middleware.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "credential has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "credential missing subject")
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "credential email not verified")
	}

	return &middleware.Identity{
		Subject: claims.Subject,
		Email:   email.Normalize(claims.Email),
	}, nil
}
