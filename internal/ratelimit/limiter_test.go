package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "claimgate/pkg/domain-errors"
	"claimgate/internal/platform/logger"
)

func TestInMemoryBucketStoreSlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryBucketStore().WithNow(func() time.Time { return now })

	// Three hits allowed, fourth denied.
	for i := 0; i < 3; i++ {
		res, err := store.Allow(ctx, "k", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}
	res, err := store.Allow(ctx, "k", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, now.Add(time.Hour), res.ResetAt)

	// A denied hit does not consume capacity once the window slides.
	now = now.Add(time.Hour + time.Second)
	res, err = store.Allow(ctx, "k", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemoryBucketStoreKeysIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryBucketStore()

	res, err := store.Allow(ctx, "a", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = store.Allow(ctx, "a", 1, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = store.Allow(ctx, "b", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemoryBucketStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryBucketStore()

	_, err := store.Allow(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "k"))

	res, err := store.Allow(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterCheck(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewInMemoryBucketStore(), "email-change", 2, time.Hour, logger.NewNop())

	require.NoError(t, limiter.Check(ctx, "req-1"))
	require.NoError(t, limiter.Check(ctx, "req-1"))

	err := limiter.Check(ctx, "req-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))

	// Separate key, separate bucket.
	require.NoError(t, limiter.Check(ctx, "req-2"))
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("backend down")
}

func (failingStore) Reset(context.Context, string) error { return nil }

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, "email-change", 1, time.Hour, logger.NewNop())
	assert.NoError(t, limiter.Check(context.Background(), "req-1"))
}
