package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/EscrowBoard/internal/domain"
	"github.com/Strob0t/EscrowBoard/internal/port/arbiter"
)

var _ arbiter.Authorizer = (*ArbiterGrants)(nil)

// ArbiterGrants stores the arbiter capability in the arbiters table.
type ArbiterGrants struct {
	pool *pgxpool.Pool
}

// NewArbiterGrants creates an ArbiterGrants backed by the given pool.
func NewArbiterGrants(pool *pgxpool.Pool) *ArbiterGrants {
	return &ArbiterGrants{pool: pool}
}

// IsAuthorizedArbiter reports whether caller has a grant row.
func (g *ArbiterGrants) IsAuthorizedArbiter(ctx context.Context, caller string) (bool, error) {
	var one int
	err := g.pool.QueryRow(ctx, `SELECT 1 FROM arbiters WHERE caller = $1`, caller).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check arbiter %s: %w", caller, err)
	}
	return true, nil
}

// Grant gives caller the arbiter capability. Granting twice is a no-op.
func (g *ArbiterGrants) Grant(ctx context.Context, caller, grantedBy string) error {
	if caller == "" {
		return fmt.Errorf("grant arbiter: empty caller: %w", domain.ErrValidation)
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO arbiters (caller, granted_by) VALUES ($1, $2) ON CONFLICT (caller) DO NOTHING`,
		caller, grantedBy)
	if err != nil {
		return fmt.Errorf("grant arbiter %s: %w", caller, err)
	}
	return nil
}

// Revoke removes the arbiter capability from caller.
func (g *ArbiterGrants) Revoke(ctx context.Context, caller string) error {
	tag, err := g.pool.Exec(ctx, `DELETE FROM arbiters WHERE caller = $1`, caller)
	return execExpectOne(tag, err, domain.ErrNotFound, "revoke arbiter %s", caller)
}

// List returns all callers holding the capability.
func (g *ArbiterGrants) List(ctx context.Context) ([]string, error) {
	rows, err := g.pool.Query(ctx, `SELECT caller FROM arbiters ORDER BY caller`)
	if err != nil {
		return nil, fmt.Errorf("list arbiters: %w", err)
	}
	defer rows.Close()

	callers := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan arbiter: %w", err)
		}
		callers = append(callers, c)
	}
	return callers, rows.Err()
}
