package middleware

import (
	"net/http"
	"strings"

	"log/slog"

	"claimgate/pkg/requestcontext"
)

// Identity is the verified caller: a stable subject and a verified email.
type Identity struct {
	Subject string
	Email   string
}

// IdentityVerifier validates a bearer credential from the primary identity
// provider and yields the caller's identity.
type IdentityVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// RequireAuth rejects requests without a valid bearer credential and stores
// the verified subject and email in the request context.
func RequireAuth(verifier IdentityVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			ident, err := verifier.Verify(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired credential")
				return
			}

			ctx = requestcontext.WithSubject(ctx, ident.Subject, ident.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
