package arbiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/EscrowBoard/internal/adapter/natskv"
	"github.com/Strob0t/EscrowBoard/internal/adapter/ristretto"
	"github.com/Strob0t/EscrowBoard/internal/adapter/tiered"
	"github.com/Strob0t/EscrowBoard/internal/port/arbiter"
	"github.com/Strob0t/EscrowBoard/internal/port/cache"
)

func TestStatic(t *testing.T) {
	s := NewStatic("arb-1", " arb-2 ", "")
	tests := []struct {
		caller string
		want   bool
	}{
		{"arb-1", true},
		{"arb-2", true},
		{"client-1", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := s.IsAuthorizedArbiter(context.Background(), tt.caller)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsAuthorizedArbiter(%q) = %v, want %v", tt.caller, got, tt.want)
		}
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func countingAuthorizer(calls *int, allowed string, err error) arbiter.Authorizer {
	return arbiter.AuthorizerFunc(func(_ context.Context, caller string) (bool, error) {
		*calls++
		if err != nil {
			return false, err
		}
		return caller == allowed, nil
	})
}

func TestCachedRemembersDecisions(t *testing.T) {
	var calls int
	a := NewCached(countingAuthorizer(&calls, "arb-1", nil), newMapCache(), time.Minute)
	ctx := context.Background()

	for range 3 {
		ok, err := a.IsAuthorizedArbiter(ctx, "arb-1")
		if err != nil || !ok {
			t.Fatalf("arb-1: ok=%v err=%v", ok, err)
		}
		ok, err = a.IsAuthorizedArbiter(ctx, "client-1")
		if err != nil || ok {
			t.Fatalf("client-1: ok=%v err=%v", ok, err)
		}
	}
	if calls != 2 {
		t.Fatalf("inner calls = %d, want 2", calls)
	}

	if err := a.Forget(ctx, "arb-1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, err := a.IsAuthorizedArbiter(ctx, "arb-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("inner calls after Forget = %d, want 3", calls)
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	errDown := errors.New("db down")
	var calls int
	c := newMapCache()
	a := NewCached(countingAuthorizer(&calls, "", errDown), c, time.Minute)

	for range 2 {
		if _, err := a.IsAuthorizedArbiter(context.Background(), "arb-1"); !errors.Is(err, errDown) {
			t.Fatalf("err = %v, want %v", err, errDown)
		}
	}
	if calls != 2 || len(c.data) != 0 {
		t.Fatalf("calls = %d, cached = %d; errors must not be cached", calls, len(c.data))
	}
}

func TestCachedBypassesBrokenCache(t *testing.T) {
	var calls int
	c := newMapCache()
	c.err = errors.New("cache down")
	a := NewCached(countingAuthorizer(&calls, "arb-1", nil), c, time.Minute)

	ok, err := a.IsAuthorizedArbiter(context.Background(), "arb-1")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

// bucket is an in-memory stand-in for a shared JetStream KV bucket.
type bucket struct {
	jetstream.KeyValue
	mu   sync.Mutex
	data map[string][]byte
}

func (b *bucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return kvEntry(v), nil
}

func (b *bucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return 1, nil
}

func (b *bucket) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

type kvEntry []byte

func (e kvEntry) Bucket() string                  { return "cache" }
func (e kvEntry) Key() string                     { return "" }
func (e kvEntry) Value() []byte                   { return e }
func (e kvEntry) Revision() uint64                { return 1 }
func (e kvEntry) Created() time.Time              { return time.Time{} }
func (e kvEntry) Delta() uint64                   { return 0 }
func (e kvEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// grantTable is a mutable arbiter table.
type grantTable struct {
	mu      sync.Mutex
	granted map[string]bool
}

func (g *grantTable) IsAuthorizedArbiter(_ context.Context, caller string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted[caller], nil
}

func (g *grantTable) revoke(caller string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.granted, caller)
}

// replicaCache builds the tiered cache of one serving replica over the shared
// bucket. Its L1 backfill horizon is far longer than the arbiter ttl.
func replicaCache(t *testing.T, shared *bucket) cache.Cache {
	t.Helper()
	l1, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l1.Close)
	return tiered.New(l1, natskv.New(shared), time.Minute)
}

func TestCachedRevocationTakesEffectAfterTTL(t *testing.T) {
	ctx := context.Background()
	shared := &bucket{data: make(map[string][]byte)}
	table := &grantTable{granted: map[string]bool{"arb-1": true}}
	const ttl = 50 * time.Millisecond

	first := NewCached(table, replicaCache(t, shared), ttl)
	if ok, err := first.IsAuthorizedArbiter(ctx, "arb-1"); err != nil || !ok {
		t.Fatalf("before revoke: ok=%v err=%v", ok, err)
	}

	table.revoke("arb-1")
	time.Sleep(4 * ttl)

	// A second replica backfills from the shared bucket, the first from L1.
	second := NewCached(table, replicaCache(t, shared), ttl)
	for name, a := range map[string]*Cached{"first": first, "second": second} {
		ok, err := a.IsAuthorizedArbiter(ctx, "arb-1")
		if err != nil {
			t.Fatalf("%s replica: %v", name, err)
		}
		if ok {
			t.Fatalf("%s replica still authorizes a revoked arbiter after the ttl", name)
		}
	}
}

func TestForgetDropsSharedDecision(t *testing.T) {
	ctx := context.Background()
	shared := &bucket{data: make(map[string][]byte)}
	table := &grantTable{granted: map[string]bool{"arb-1": true}}

	serving := NewCached(table, replicaCache(t, shared), time.Hour)
	if ok, _ := serving.IsAuthorizedArbiter(ctx, "arb-1"); !ok {
		t.Fatal("expected grant")
	}

	table.revoke("arb-1")
	operator := NewCached(table, natskv.New(shared), time.Hour)
	if err := operator.Forget(ctx, "arb-1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	fresh := NewCached(table, replicaCache(t, shared), time.Hour)
	if ok, err := fresh.IsAuthorizedArbiter(ctx, "arb-1"); err != nil || ok {
		t.Fatalf("replica without L1 entry: ok=%v err=%v; want revoked", ok, err)
	}
}
