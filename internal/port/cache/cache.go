// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"encoding/hex"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Expirer is implemented by caches that can report how long an entry has
// left to live. A zero ttl means the entry does not expire.
type Expirer interface {
	GetWithTTL(ctx context.Context, key string) (data []byte, ttl time.Duration, ok bool, err error)
}

// TaskKey is the cache key of a task snapshot. NATS KV keys may not contain
// spaces or wildcards, so names are hex-encoded.
func TaskKey(name string) string {
	return "task." + hex.EncodeToString([]byte(name))
}

// ArbiterKey is the cache key of an arbiter authorization decision.
func ArbiterKey(caller string) string {
	return "arbiter." + hex.EncodeToString([]byte(caller))
}
