// Package natskv implements the cache port using NATS JetStream KV as the L2
// cache shared by board replicas.
package natskv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/EscrowBoard/internal/port/cache"
)

var (
	_ cache.Cache   = (*Cache)(nil)
	_ cache.Expirer = (*Cache)(nil)
)

// headerLen is the size of the expiry stamp stored in front of each value.
const headerLen = 8

// Cache wraps a NATS JetStream KeyValue store as an L2 cache. The bucket's
// max age bounds every entry; Set's ttl bounds it further by stamping an
// expiry time in front of the stored value.
type Cache struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// Get retrieves a live value from the NATS KV store.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	data, _, ok, err = c.GetWithTTL(ctx, key)
	return data, ok, err
}

// GetWithTTL retrieves a live value and how long it has left. Expired entries
// read as misses.
func (c *Cache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("kv get %s: %w", key, err)
	}

	raw := entry.Value()
	if len(raw) < headerLen {
		return nil, 0, false, nil
	}
	var ttl time.Duration
	if exp := int64(binary.BigEndian.Uint64(raw[:headerLen])); exp != 0 {
		ttl = time.Unix(0, exp).Sub(c.now())
		if ttl <= 0 {
			return nil, 0, false, nil
		}
	}
	return raw[headerLen:], ttl, true, nil
}

// Set stores a value in the NATS KV store. A positive ttl expires the entry
// before the bucket's max age does.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, headerLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf[:headerLen], uint64(c.now().Add(ttl).UnixNano()))
	}
	copy(buf[headerLen:], value)

	if _, err := c.kv.Put(ctx, key, buf); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete removes a value from the NATS KV store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
