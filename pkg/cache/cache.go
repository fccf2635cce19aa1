// Package cache provides an exact-match Redis cache for generation responses.
// Identical prompts (same model, system message, and text) are frequent in
// practice — re-reads of the same fragment, repeated preview requests — so a
// prompt-hash lookup avoids a paid backend call without any similarity search.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abdhe/readcoach/pkg/provider"
)

// ResponseCache wraps a Redis client for storing generation responses by
// prompt hash with a TTL.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a new Redis-backed response cache.
func New(addr, password string, db int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Key derives a deterministic cache key from the request parts that define
// the response: model, system message, and prompt.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("readcoach:gen:%x", h.Sum(nil)[:16])
}

// Get retrieves a cached response by key. Returns the response and true on a
// hit, or zero value and false on a miss.
func (r *ResponseCache) Get(ctx context.Context, key string) (provider.Response, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return provider.Response{}, false, nil
	}
	if err != nil {
		return provider.Response{}, false, fmt.Errorf("cache: get: %w", err)
	}

	var resp provider.Response
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return provider.Response{}, false, fmt.Errorf("cache: unmarshal: %w", err)
	}

	return resp, true, nil
}

// Set stores a response in the cache with the configured TTL.
func (r *ResponseCache) Set(ctx context.Context, key string, resp provider.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}

	if err := r.client.Set(ctx, key, string(data), r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}

	return nil
}

// Ping checks the Redis connection.
func (r *ResponseCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *ResponseCache) Close() error {
	return r.client.Close()
}
