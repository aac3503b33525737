package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Redis-backed fixed-window counter, letting rate limits
// be shared across multiple instances. Semantics match Store: the counter
// increments even for denied requests, and the window boundary is set when
// the first request of the window arrives.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// Check counts one request against key's window. On Redis failure it fails
// open (allowed) and returns the error so callers can log it; admission
// control degrading should never take the service down with it.
func (s *RedisStore) Check(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	redisKey := s.key(key)

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{Allowed: true, Limit: max, Remaining: max}, fmt.Errorf("redis incr: %w", err)
	}

	// First request of the window owns the expiry. Subsequent requests
	// leave it untouched so the window stays fixed.
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return Decision{Allowed: true, Limit: max, Remaining: max}, fmt.Errorf("redis pexpire: %w", err)
		}
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(max),
		Limit:     max,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}

// Forgive excludes one previously counted request from key's window.
// A missing key means the window already expired; nothing is resurrected.
func (s *RedisStore) Forgive(ctx context.Context, key string) error {
	redisKey := s.key(key)

	count, err := s.client.Get(ctx, redisKey).Int64()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	if count <= 0 {
		return nil
	}
	return s.client.Decr(ctx, redisKey).Err()
}

// Reset clears the counter for a key (admin/testing hook)
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Ping verifies Redis connectivity for health checks
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
