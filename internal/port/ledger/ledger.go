// Package ledger defines the port to the fungible-token ledger that holds escrowed value.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by ledgers when a debit exceeds balance or allowance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger moves and reports balances of fungible tokens. The board never keeps
// balances of its own; custody is an account on the ledger.
type Ledger interface {
	BalanceOf(ctx context.Context, token, account string) (decimal.Decimal, error)
	Allowance(ctx context.Context, token, owner, spender string) (decimal.Decimal, error)

	// TransferFrom moves amount from one account to another using spender's allowance on from.
	TransferFrom(ctx context.Context, token, spender, from, to string, amount decimal.Decimal) error

	// Transfer moves amount out of from's own balance.
	Transfer(ctx context.Context, token, from, to string, amount decimal.Decimal) error
}

// AllowanceRestorer is implemented by ledgers that let a spender hand back
// allowance it consumed, as when a pull is reversed.
type AllowanceRestorer interface {
	IncreaseAllowance(ctx context.Context, token, owner, spender string, amount decimal.Decimal) error
}
