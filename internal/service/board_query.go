package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/domain"
	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
)

// GetTask returns a task by name.
func (s *BoardService) GetTask(ctx context.Context, name string) (*task.Task, error) {
	return s.reader.Get(ctx, name)
}

// GetBid returns bidder's open bid on the task.
func (s *BoardService) GetBid(ctx context.Context, name, bidder string) (*bid.Bid, error) {
	return s.store.GetBid(ctx, name, bidder)
}

// ListTasks returns tasks matching filter, oldest first.
func (s *BoardService) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, fmt.Errorf("filter state %q: %w", filter.State, domain.ErrValidation)
	}
	return s.store.ListTasks(ctx, filter)
}

// ListBids returns the open bids of a task in placement order.
func (s *BoardService) ListBids(ctx context.Context, name string) ([]bid.Bid, error) {
	if _, err := s.store.GetTask(ctx, name); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, name)
}

// TaskEvents returns the committed event history of a task. The history
// outlives the task itself.
func (s *BoardService) TaskEvents(ctx context.Context, name string) ([]event.Event, error) {
	return s.store.ListEvents(ctx, name)
}

// EscrowReport compares the escrow the board owes for a token with what the
// custody account holds.
type EscrowReport struct {
	Token          string          `json:"token"`
	Custody        string          `json:"custody"`
	Held           decimal.Decimal `json:"held"`
	CustodyBalance decimal.Decimal `json:"custody_balance"`
	Tasks          int             `json:"tasks"`
	Balanced       bool            `json:"balanced"`
}

// EscrowReport sums the prices of tasks holding escrow in token and reads the
// custody balance.
func (s *BoardService) EscrowReport(ctx context.Context, token string) (*EscrowReport, error) {
	if strings.TrimSpace(token) == "" {
		return nil, task.ErrInvalidToken
	}

	r := &EscrowReport{Token: token, Custody: s.custody, Held: decimal.Zero}
	for _, st := range []task.State{task.StateStarted, task.StateFinished, task.StateRejected} {
		tasks, err := s.store.ListTasks(ctx, task.Filter{State: st})
		if err != nil {
			return nil, err
		}
		for i := range tasks {
			if tasks[i].Token != token {
				continue
			}
			r.Held = r.Held.Add(tasks[i].Price)
			r.Tasks++
		}
	}

	bal, err := s.ledger.BalanceOf(ctx, token, s.custody)
	if err != nil {
		return nil, fmt.Errorf("custody balance %s: %w", token, err)
	}
	r.CustodyBalance = bal
	r.Balanced = bal.Equal(r.Held)
	return r, nil
}
