// Package ratelimit provides per-caller admission control for generation
// requests using a token-bucket policy.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults give each caller a burst of 8 requests and roughly one sustained
// request every ~6.7 seconds.
const (
	DefaultCapacity   = 8
	DefaultRefillRate = 0.15 // tokens per second

	// defaultIdleTTL bounds memory growth for high-cardinality caller keys:
	// buckets untouched for this long are swept.
	defaultIdleTTL = 30 * time.Minute
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a concurrency-safe token-bucket limiter keyed by caller.
// Buckets are created lazily on first use and evicted after an idle TTL.
// Denial is immediate and advisory; the limiter never blocks.
type Limiter struct {
	mu        sync.Mutex
	capacity  float64
	refill    float64
	idleTTL   time.Duration
	buckets   map[string]*bucket
	anonymous string
	lastSweep time.Time
	now       func() time.Time
}

// New creates a limiter with the given capacity (max burst, ≥1) and refill
// rate in tokens per second.
func New(capacity int, refillPerSecond float64) *Limiter {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = DefaultRefillRate
	}
	return &Limiter{
		capacity: float64(capacity),
		refill:   refillPerSecond,
		idleTTL:  defaultIdleTTL,
		buckets:  make(map[string]*bucket),
		// Callers without an identity share one synthetic bucket rather
		// than bypassing the limiter.
		anonymous: "anon-" + uuid.NewString(),
		now:       time.Now,
	}
}

// Allow reports whether a request from key may proceed right now. When
// denied, waitSeconds is the time until one token will be available. An
// empty key falls back to the shared synthetic identity.
func (l *Limiter) Allow(key string) (allowed bool, waitSeconds float64) {
	if key == "" {
		key = l.anonymous
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(l.capacity, b.tokens+elapsed*l.refill)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	return false, (1 - b.tokens) / l.refill
}

// sweepLocked evicts buckets idle longer than the TTL. Runs at most once per
// TTL interval. Caller must hold mu.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
