package digest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// NonceBytes is the number of random bytes in a nonce (32 hex characters).
const NonceBytes = 16

// NewNonce returns a fresh hex-encoded random nonce.
func NewNonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NonceTracker remembers issued nonces so each can authenticate at most one
// request. Implementations must make Consume atomic: when two callers race on
// the same nonce exactly one of them sees true.
type NonceTracker interface {
	// Issue records a nonce that was just sent in a challenge.
	Issue(ctx context.Context, nonce string) error

	// Consume removes nonce and reports whether it was issued and unexpired.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// defaultMaxNonces bounds MemoryNonceTracker when no limit is given.
const defaultMaxNonces = 100_000

// MemoryNonceTracker is an in-process NonceTracker with TTL expiry.
// Expired entries are dropped by Evict; callers run it periodically.
type MemoryNonceTracker struct {
	mu      sync.Mutex
	entries map[string]time.Time // nonce → expiry
	ttl     time.Duration
	max     int
}

// NewMemoryNonceTracker creates a tracker whose nonces live for ttl.
// max caps the number of outstanding nonces; 0 selects a default.
func NewMemoryNonceTracker(ttl time.Duration, max int) *MemoryNonceTracker {
	if max <= 0 {
		max = defaultMaxNonces
	}
	return &MemoryNonceTracker{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		max:     max,
	}
}

// Issue implements NonceTracker. When the tracker is full, expired entries are
// evicted first and then arbitrary entries until there is room.
func (t *MemoryNonceTracker) Issue(_ context.Context, nonce string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.max {
		t.evictLocked(time.Now())
		for k := range t.entries {
			if len(t.entries) < t.max {
				break
			}
			delete(t.entries, k)
		}
	}
	t.entries[nonce] = time.Now().Add(t.ttl)
	return nil
}

// Consume implements NonceTracker.
func (t *MemoryNonceTracker) Consume(_ context.Context, nonce string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	exp, ok := t.entries[nonce]
	if !ok {
		return false, nil
	}
	delete(t.entries, nonce)
	return time.Now().Before(exp), nil
}

// Evict removes all expired nonces and returns how many were dropped.
func (t *MemoryNonceTracker) Evict() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked(time.Now())
}

func (t *MemoryNonceTracker) evictLocked(now time.Time) int {
	n := 0
	for k, exp := range t.entries {
		if !now.Before(exp) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked nonces, including expired ones.
func (t *MemoryNonceTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
