package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	checkout "github.com/payelement/checkout/go"
)

// RedisRegistry keeps decline counts in Redis so every instance of a
// cluster sees the same count. Each session is one integer key that expires
// with its window.
type RedisRegistry struct {
	client redis.Cmdable
	cfg    config
}

// NewRedisRegistry creates a registry on an existing client
func NewRedisRegistry(client redis.Cmdable, opts ...Option) *RedisRegistry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisRegistry{client: client, cfg: cfg}
}

func (r *RedisRegistry) key(session string) string {
	return r.cfg.keyPrefix + session
}

// Attempts returns the declines counted in the session's open window
func (r *RedisRegistry) Attempts(ctx context.Context, session string) (int, error) {
	if session == "" {
		return 0, ErrEmptySession
	}
	n, err := r.client.Get(ctx, r.key(session)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get error: %w", err)
	}
	return n, nil
}

// RecordDecline increments the counter and sets the expiry in one
// transaction. The expiry is only set on a counter without one, so the
// window does not slide.
func (r *RedisRegistry) RecordDecline(ctx context.Context, session string) (int, error) {
	if session == "" {
		return 0, ErrEmptySession
	}
	key := r.key(session)

	var incr *redis.IntCmd
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.cfg.window)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("redis record decline error: %w", err)
	}
	return int(incr.Val()), nil
}

// Reset deletes the session counter
func (r *RedisRegistry) Reset(ctx context.Context, session string) error {
	if err := r.client.Del(ctx, r.key(session)).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}

var _ checkout.RateLimitRegistry = (*RedisRegistry)(nil)
