package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"claimgate/internal/platform/config"
)

// Client wraps the go-redis client with health checking. It backs the
// email-change rate limiter when REDIS_URL is configured; the limiter falls
// back to its in-memory store otherwise.
type Client struct {
	*redis.Client
}

// New creates a Redis client from configuration and verifies connectivity.
// Returns (nil, nil) when the URL is empty so callers can treat Redis as
// optional.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}
