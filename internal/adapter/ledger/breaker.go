package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/domain"
	"github.com/Strob0t/EscrowBoard/internal/port/ledger"
	"github.com/Strob0t/EscrowBoard/internal/resilience"
)

var (
	_ ledger.Ledger            = (*Guarded)(nil)
	_ ledger.AllowanceRestorer = (*Guarded)(nil)
)

// Guarded runs every call to the inner ledger through a circuit breaker.
// Funding and validation refusals are answers, not outages, and do not trip it.
type Guarded struct {
	inner   ledger.Ledger
	breaker *resilience.Breaker
}

// NewGuarded wraps inner with a breaker that opens after maxFailures
// consecutive outages and probes again after timeout.
func NewGuarded(inner ledger.Ledger, maxFailures int, timeout time.Duration) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: resilience.NewBreaker(maxFailures, timeout, resilience.WithFailurePredicate(IsOutage)),
	}
}

// State reports the breaker state.
func (g *Guarded) State() resilience.State { return g.breaker.State() }

// IsOutage reports whether err should count against the breaker.
func IsOutage(err error) bool {
	return !errors.Is(err, ledger.ErrInsufficientFunds) && !errors.Is(err, domain.ErrValidation)
}

func (g *Guarded) BalanceOf(ctx context.Context, token, owner string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := g.breaker.Execute(func() error {
		var err error
		bal, err = g.inner.BalanceOf(ctx, token, owner)
		return err
	})
	return bal, wrapOpen(err, "balance of %s", owner)
}

func (g *Guarded) Allowance(ctx context.Context, token, owner, spender string) (decimal.Decimal, error) {
	var amt decimal.Decimal
	err := g.breaker.Execute(func() error {
		var err error
		amt, err = g.inner.Allowance(ctx, token, owner, spender)
		return err
	})
	return amt, wrapOpen(err, "allowance of %s", owner)
}

func (g *Guarded) TransferFrom(ctx context.Context, token, spender, from, to string, amount decimal.Decimal) error {
	err := g.breaker.Execute(func() error {
		return g.inner.TransferFrom(ctx, token, spender, from, to, amount)
	})
	return wrapOpen(err, "transfer from %s", from)
}

func (g *Guarded) Transfer(ctx context.Context, token, from, to string, amount decimal.Decimal) error {
	err := g.breaker.Execute(func() error {
		return g.inner.Transfer(ctx, token, from, to, amount)
	})
	return wrapOpen(err, "transfer from %s", from)
}

// IncreaseAllowance forwards to the inner ledger when it can restore
// allowance.
func (g *Guarded) IncreaseAllowance(ctx context.Context, token, owner, spender string, amount decimal.Decimal) error {
	r, ok := g.inner.(ledger.AllowanceRestorer)
	if !ok {
		return errors.ErrUnsupported
	}
	err := g.breaker.Execute(func() error {
		return r.IncreaseAllowance(ctx, token, owner, spender, amount)
	})
	return wrapOpen(err, "increase allowance of %s", spender)
}

func wrapOpen(err error, format string, args ...any) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("ledger %s: %w", fmt.Sprintf(format, args...), err)
	}
	return err
}
