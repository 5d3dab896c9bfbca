package testutil

import (
	"net/http"
	"time"

	"claimgate/pkg/requestcontext"
)

// WithSubject attaches an authenticated identity to the request context,
// simulating what the auth middleware does after verifying a credential.
func WithSubject(req *http.Request, subject, email string) *http.Request {
	ctx := requestcontext.WithSubject(req.Context(), subject, email)
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), at)
	return req.WithContext(ctx)
}

// WithClientMetadata attaches client IP and user agent to the context the way
// the metadata middleware would.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent)
	return req.WithContext(ctx)
}
