// Package ledger provides token ledger implementations for the board's escrow.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/domain"
	"github.com/Strob0t/EscrowBoard/internal/port/ledger"
)

var (
	_ ledger.Ledger            = (*Memory)(nil)
	_ ledger.AllowanceRestorer = (*Memory)(nil)
)

type account struct {
	token string
	owner string
}

type allowanceKey struct {
	token   string
	owner   string
	spender string
}

// Memory is an in-process fungible token ledger with balances and allowances.
type Memory struct {
	mu         sync.Mutex
	balances   map[account]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[account]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

// Mint credits amount of token to owner.
func (m *Memory) Mint(_ context.Context, token, owner string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("mint %s %s to %s: negative amount: %w", amount, token, owner, domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := account{token, owner}
	m.balances[k] = m.balances[k].Add(amount)
	return nil
}

// Approve sets the amount of owner's token that spender may move.
func (m *Memory) Approve(_ context.Context, token, owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("approve %s %s for %s: negative amount: %w", amount, token, spender, domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{token, owner, spender}] = amount
	return nil
}

// IncreaseAllowance adds amount to spender's allowance on owner.
func (m *Memory) IncreaseAllowance(_ context.Context, token, owner, spender string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("increase allowance by %s %s for %s: non-positive amount: %w", amount, token, spender, domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := allowanceKey{token, owner, spender}
	m.allowances[k] = m.allowances[k].Add(amount)
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, token, owner string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account{token, owner}], nil
}

func (m *Memory) Allowance(_ context.Context, token, owner, spender string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey{token, owner, spender}], nil
}

// TransferFrom moves amount from one account to another, consuming spender's allowance.
func (m *Memory) TransferFrom(_ context.Context, token, spender, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer %s %s: amount must be positive: %w", amount, token, domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ak := allowanceKey{token, from, spender}
	if m.allowances[ak].LessThan(amount) {
		return fmt.Errorf("transfer %s %s from %s: allowance of %s is %s: %w",
			amount, token, from, spender, m.allowances[ak], ledger.ErrInsufficientFunds)
	}
	if err := m.move(token, from, to, amount); err != nil {
		return err
	}
	m.allowances[ak] = m.allowances[ak].Sub(amount)
	return nil
}

// Transfer moves amount out of from's own balance.
func (m *Memory) Transfer(_ context.Context, token, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer %s %s: amount must be positive: %w", amount, token, domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(token, from, to, amount)
}

// move must be called with m.mu held.
func (m *Memory) move(token, from, to string, amount decimal.Decimal) error {
	src, dst := account{token, from}, account{token, to}
	if m.balances[src].LessThan(amount) {
		return fmt.Errorf("transfer %s %s from %s: balance is %s: %w",
			amount, token, from, m.balances[src], ledger.ErrInsufficientFunds)
	}
	m.balances[src] = m.balances[src].Sub(amount)
	m.balances[dst] = m.balances[dst].Add(amount)
	return nil
}

// Supply returns the total amount of token across all accounts.
func (m *Memory) Supply(token string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for k, v := range m.balances {
		if k.token == token {
			total = total.Add(v)
		}
	}
	return total
}
