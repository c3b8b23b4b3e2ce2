package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	arbiteradapter "github.com/Strob0t/EscrowBoard/internal/adapter/arbiter"
	cfhttp "github.com/Strob0t/EscrowBoard/internal/adapter/http"
	ledgeradapter "github.com/Strob0t/EscrowBoard/internal/adapter/ledger"
	"github.com/Strob0t/EscrowBoard/internal/adapter/memory"
	"github.com/Strob0t/EscrowBoard/internal/adapter/natskv"
	"github.com/Strob0t/EscrowBoard/internal/adapter/postgres"
	"github.com/Strob0t/EscrowBoard/internal/adapter/ristretto"
	"github.com/Strob0t/EscrowBoard/internal/adapter/tiered"
	"github.com/Strob0t/EscrowBoard/internal/config"
	"github.com/Strob0t/EscrowBoard/internal/port/arbiter"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
	"github.com/Strob0t/EscrowBoard/internal/port/cache"
)

// configGrantor is recorded as the grantor of arbiters listed in the config file.
const configGrantor = "config"

// backend is the selected board store with its arbiter authorizer.
type backend struct {
	store    boardstore.Store
	arbiters arbiter.Authorizer
	health   map[string]cfhttp.HealthCheck
	close    func()
}

// openBackend builds the store named by cfg.Board.Backend. Decisions of the
// postgres arbiter table are cached in c.
func openBackend(ctx context.Context, cfg *config.Config, c cache.Cache) (*backend, error) {
	switch cfg.Board.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("postgres connected, migrations applied")

		grants := postgres.NewArbiterGrants(pool)
		for _, caller := range cfg.Board.Arbiters {
			if err := grants.Grant(ctx, caller, configGrantor); err != nil {
				pool.Close()
				return nil, err
			}
		}

		return &backend{
			store:    postgres.NewStore(pool),
			arbiters: arbiteradapter.NewCached(grants, c, cfg.Cache.ArbiterTTL),
			health: map[string]cfhttp.HealthCheck{
				"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			},
			close: pool.Close,
		}, nil

	default:
		slog.Warn("using in-memory board store, state is lost on restart")
		return &backend{
			store:    memory.NewStore(),
			arbiters: arbiteradapter.NewStatic(cfg.Board.Arbiters...),
			health:   map[string]cfhttp.HealthCheck{},
			close:    func() {},
		}, nil
	}
}

// newLedger builds the in-process token ledger from the configured seed
// entries and guards it with a circuit breaker.
func newLedger(ctx context.Context, cfg *config.Config) (*ledgeradapter.Guarded, error) {
	mem := ledgeradapter.NewMemory()
	for _, s := range cfg.Ledger.Seed {
		if s.Balance.IsPositive() {
			if err := mem.Mint(ctx, s.Token, s.Account, s.Balance); err != nil {
				return nil, fmt.Errorf("seed %s %s: %w", s.Account, s.Token, err)
			}
		}
		if s.Allowance.IsPositive() {
			if err := mem.Approve(ctx, s.Token, s.Account, cfg.Board.CustodyAccount, s.Allowance); err != nil {
				return nil, fmt.Errorf("approve %s %s: %w", s.Account, s.Token, err)
			}
		}
	}
	return ledgeradapter.NewGuarded(mem, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout), nil
}

// newCache builds the tiered read cache. kv may be nil, which leaves the
// cache process-local.
func newCache(cfg *config.Config, kv jetstream.KeyValue) (*tiered.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}
	var l2 cache.Cache
	if kv != nil {
		l2 = natskv.New(kv)
	}
	return tiered.New(l1, l2, cfg.Cache.TaskTTL), l1.Close, nil
}
