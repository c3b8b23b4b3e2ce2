package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/port/ledger"
	"github.com/Strob0t/EscrowBoard/internal/resilience"
)

var errDown = errors.New("ledger unreachable")

// flakyLedger fails every call with err while err is set.
type flakyLedger struct {
	*Memory
	err   error
	calls int
}

func (f *flakyLedger) Transfer(ctx context.Context, token, from, to string, amount decimal.Decimal) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.Memory.Transfer(ctx, token, from, to, amount)
}

func TestGuardedOpensOnOutages(t *testing.T) {
	ctx := context.Background()
	inner := &flakyLedger{Memory: NewMemory(), err: errDown}
	g := NewGuarded(inner, 2, time.Minute)

	for range 2 {
		if err := g.Transfer(ctx, "USDX", "custody", "bob", d("1")); !errors.Is(err, errDown) {
			t.Fatalf("expected errDown, got %v", err)
		}
	}
	err := g.Transfer(ctx, "USDX", "custody", "bob", d("1"))
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("open circuit must not reach the ledger, calls=%d", inner.calls)
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("state = %s, want open", g.State())
	}
}

func TestGuardedIgnoresInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	g := NewGuarded(NewMemory(), 1, time.Minute)

	for range 3 {
		err := g.Transfer(ctx, "USDX", "alice", "bob", d("10"))
		if !errors.Is(err, ledger.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
	}
	if g.State() != resilience.StateClosed {
		t.Fatalf("funding refusals must not open the breaker, state %s", g.State())
	}
}
