package digest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const nonceKeyPrefix = "digest:nonce:"

// RedisNonceTracker stores issued nonces in Redis with a TTL, so several
// server processes can share one replay window.
type RedisNonceTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisNonceTracker creates a tracker backed by client.
func NewRedisNonceTracker(client *redis.Client, ttl time.Duration) *RedisNonceTracker {
	return &RedisNonceTracker{client: client, ttl: ttl}
}

// Issue implements NonceTracker.
func (r *RedisNonceTracker) Issue(ctx context.Context, nonce string) error {
	return r.client.Set(ctx, nonceKeyPrefix+nonce, 1, r.ttl).Err()
}

// Consume implements NonceTracker. DEL is atomic, so only one caller can
// observe the key being removed.
func (r *RedisNonceTracker) Consume(ctx context.Context, nonce string) (bool, error) {
	n, err := r.client.Del(ctx, nonceKeyPrefix+nonce).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
