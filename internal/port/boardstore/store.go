// Package boardstore defines the persistence port for tasks, bids and their event history.
package boardstore

import (
	"context"

	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
)

// Tx is the view of the store inside one atomic unit. Writes become visible
// to other units only if the enclosing InTx callback returns nil.
type Tx interface {
	// GetTask returns the task or an error wrapping task.ErrTaskNotFound.
	GetTask(ctx context.Context, name string) (*task.Task, error)
	InsertTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error
	DeleteTask(ctx context.Context, name string) error

	// GetBid returns the bid or an error wrapping bid.ErrBidNotFound.
	GetBid(ctx context.Context, taskName, bidder string) (*bid.Bid, error)
	InsertBid(ctx context.Context, b *bid.Bid) error
	DeleteBid(ctx context.Context, taskName, bidder string) error
	// DeleteBids removes every bid of the task and reports how many were dropped.
	DeleteBids(ctx context.Context, taskName string) (int, error)

	// AppendEvent records ev in the task's history as part of the unit.
	AppendEvent(ctx context.Context, ev *event.Event) error
}

// Store is the port interface for board persistence.
type Store interface {
	// InTx runs fn as one atomic unit serialized on taskName. Any error returned
	// by fn discards every write made through tx.
	InTx(ctx context.Context, taskName string, fn func(ctx context.Context, tx Tx) error) error

	GetTask(ctx context.Context, name string) (*task.Task, error)
	ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error)
	GetBid(ctx context.Context, taskName, bidder string) (*bid.Bid, error)
	ListBids(ctx context.Context, taskName string) ([]bid.Bid, error)
	ListEvents(ctx context.Context, taskName string) ([]event.Event, error)
}
