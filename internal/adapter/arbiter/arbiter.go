// Package arbiter provides arbiter authorizers: a static allow-list and a
// caching decorator for slower sources such as the postgres grants table.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/EscrowBoard/internal/port/arbiter"
	"github.com/Strob0t/EscrowBoard/internal/port/cache"
)

var (
	_ arbiter.Authorizer = Static(nil)
	_ arbiter.Authorizer = (*Cached)(nil)
)

// Static authorizes a fixed set of callers.
type Static map[string]struct{}

// NewStatic builds a Static allow-list. Blank entries are ignored.
func NewStatic(callers ...string) Static {
	s := make(Static, len(callers))
	for _, c := range callers {
		if c = strings.TrimSpace(c); c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

// IsAuthorizedArbiter reports whether caller is on the list.
func (s Static) IsAuthorizedArbiter(_ context.Context, caller string) (bool, error) {
	_, ok := s[caller]
	return ok, nil
}

var (
	granted = []byte{1}
	denied  = []byte{0}
)

// Cached remembers decisions of the inner authorizer for ttl.
type Cached struct {
	inner arbiter.Authorizer
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps inner with a decision cache.
func NewCached(inner arbiter.Authorizer, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: c, ttl: ttl}
}

// IsAuthorizedArbiter answers from the cache, falling back to the inner
// authorizer. Cache failures are logged and bypassed.
func (a *Cached) IsAuthorizedArbiter(ctx context.Context, caller string) (bool, error) {
	key := cache.ArbiterKey(caller)
	if v, ok, err := a.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "arbiter cache get failed", "error", err)
	} else if ok && len(v) == 1 {
		return v[0] == granted[0], nil
	}

	ok, err := a.inner.IsAuthorizedArbiter(ctx, caller)
	if err != nil {
		return false, fmt.Errorf("authorize arbiter %s: %w", caller, err)
	}
	val := denied
	if ok {
		val = granted
	}
	if err := a.cache.Set(ctx, key, val, a.ttl); err != nil {
		slog.WarnContext(ctx, "arbiter cache set failed", "error", err)
	}
	return ok, nil
}

// Forget drops the cached decision for caller. The arbiter commands call it
// on the shared bucket after a grant or revoke; replicas' L1 entries still
// live out their ttl.
func (a *Cached) Forget(ctx context.Context, caller string) error {
	return a.cache.Delete(ctx, cache.ArbiterKey(caller))
}
