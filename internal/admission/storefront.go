package admission

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "claimgate/pkg/domain-errors"
)

// StorefrontClaims is the payload a kiosk signs when admitting an in-store
// customer. The token binds the kiosk's store and the tenant it sells for.
type StorefrontClaims struct {
	StoreID string `json:"storeId"`
	Tenant  string `json:"tenant"`
	jwt.RegisteredClaims
}

// StorefrontVerifier validates signed kiosk tokens. Kiosks and the gate share
// a symmetric key distributed at kiosk provisioning.
type StorefrontVerifier struct {
	signingKey []byte
	timeFunc   func() time.Time
}

func NewStorefrontVerifier(signingKey string) *StorefrontVerifier {
	return &StorefrontVerifier{signingKey: []byte(signingKey), timeFunc: time.Now}
}

// NewStorefrontVerifierAt pins the verification clock. For tests.
func NewStorefrontVerifierAt(signingKey string, timeFunc func() time.Time) *StorefrontVerifier {
	return &StorefrontVerifier{signingKey: []byte(signingKey), timeFunc: timeFunc}
}

func (v *StorefrontVerifier) Verify(_ context.Context, proof Proof) error {
	if proof.StoreToken == "" {
		return dErrors.New(dErrors.CodeBadRequest, "store token is required")
	}

	parsed, err := jwt.ParseWithClaims(proof.StoreToken, &StorefrontClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithTimeFunc(v.timeFunc))
	if err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid store token")
	}

	claims, ok := parsed.Claims.(*StorefrontClaims)
	if !ok || !parsed.Valid {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid store token claims")
	}
	if claims.StoreID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "store token missing store id")
	}
	if claims.Tenant != proof.Tenant {
		return dErrors.New(dErrors.CodeUnauthorized, "store token tenant mismatch")
	}
	return nil
}
