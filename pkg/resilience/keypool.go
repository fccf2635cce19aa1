package resilience

import (
	"fmt"
	"sync"
	"time"
)

// KeyPool manages a pool of backend API keys with round-robin rotation and
// per-key rate-limit awareness. A single-key pool degrades to a plain
// credential holder.
type KeyPool struct {
	mu      sync.Mutex
	keys    []keyEntry
	current int
}

type keyEntry struct {
	key       string
	resetAt   time.Time
	exhausted bool
}

// NewKeyPool creates a key pool from a list of API keys.
func NewKeyPool(keys []string) *KeyPool {
	entries := make([]keyEntry, len(keys))
	for i, k := range keys {
		entries[i] = keyEntry{key: k}
	}
	return &KeyPool{keys: entries}
}

// Next returns the next available API key using round-robin selection,
// skipping keys that are currently marked rate-limited. Returns an error
// when no keys are configured or all keys are exhausted.
func (kp *KeyPool) Next() (string, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	n := len(kp.keys)
	if n == 0 {
		return "", fmt.Errorf("keypool: no keys configured")
	}

	now := time.Now()

	for i := 0; i < n; i++ {
		idx := (kp.current + i) % n
		entry := &kp.keys[idx]

		if entry.exhausted && now.After(entry.resetAt) {
			entry.exhausted = false
		}

		if !entry.exhausted {
			kp.current = (idx + 1) % n
			return entry.key, nil
		}
	}

	earliest := kp.keys[0].resetAt
	for _, e := range kp.keys[1:] {
		if e.resetAt.Before(earliest) {
			earliest = e.resetAt
		}
	}

	return "", fmt.Errorf("keypool: all keys exhausted, earliest reset at %s", earliest.Format(time.RFC3339))
}

// MarkRateLimited marks a key as rate-limited until resetAt.
func (kp *KeyPool) MarkRateLimited(key string, resetAt time.Time) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	for i := range kp.keys {
		if kp.keys[i].key == key {
			kp.keys[i].exhausted = true
			kp.keys[i].resetAt = resetAt
			return
		}
	}
}

// Size returns the number of keys in the pool.
func (kp *KeyPool) Size() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.keys)
}
