// Package ratelimit provides a sliding-window bucket limiter. The gate's
// per-email admission rule lives in the claim service (it counts persisted
// requests, not transient hits); this package throttles the cheaper repeat
// flows such as email-change and resend requests.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	dErrors "claimgate/pkg/domain-errors"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// BucketStore counts hits per key over a sliding window.
type BucketStore interface {
	// Allow records a hit for key and reports whether it stayed within
	// limit hits per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}

// Limiter binds a BucketStore to a fixed policy and key prefix.
type Limiter struct {
	store  BucketStore
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewLimiter(store BucketStore, prefix string, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, prefix: prefix, limit: limit, window: window, logger: logger}
}

// Check records a hit and returns a CodeRateLimited error when the bucket is
// exhausted. Store failures fail open: throttling is protection, not a
// correctness gate, so an unreachable backend must not block the flow.
func (l *Limiter) Check(ctx context.Context, key string) error {
	res, err := l.store.Allow(ctx, l.prefix+":"+key, l.limit, l.window)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request",
			"prefix", l.prefix,
			"error", err,
		)
		return nil
	}
	if !res.Allowed {
		return dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later")
	}
	return nil
}
