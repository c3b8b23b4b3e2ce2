package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/EscrowBoard/internal/adapter/otel"
	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
)

// PlaceBid offers to implement an open task.
func (s *BoardService) PlaceBid(ctx context.Context, caller, name string, req bid.PlaceRequest) (*bid.Bid, error) {
	if err := bid.ValidatePlaceRequest(req, s.minDuration); err != nil {
		s.logRejection(ctx, "PlaceBid", name, caller, err)
		return nil, err
	}

	var placed *bid.Bid
	_, err := s.mutate(ctx, "PlaceBid", name, caller, func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error) {
		t, err := tx.GetTask(ctx, name)
		if err != nil {
			return nil, err
		}
		if t.Client == caller {
			return nil, fmt.Errorf("caller %s owns task %s: %w", caller, name, bid.ErrClientCannotBid)
		}
		if err := requireState(t, task.StateCreated, task.ErrAlreadyStarted); err != nil {
			return nil, err
		}
		if req.ImplementationDuration < t.MinDuration {
			return nil, fmt.Errorf("duration %s below task minimum %s: %w", req.ImplementationDuration, t.MinDuration, bid.ErrInvalidImplPeriod)
		}
		_, err = tx.GetBid(ctx, name, caller)
		switch {
		case err == nil:
			return nil, fmt.Errorf("bid %s/%s: %w", name, caller, bid.ErrBidAlreadyPlaced)
		case !errors.Is(err, bid.ErrBidNotFound):
			return nil, err
		}

		b := &bid.Bid{
			TaskName:               name,
			Bidder:                 caller,
			Price:                  req.Price,
			Description:            req.Description,
			ImplementationDuration: req.ImplementationDuration,
			CreatedAt:              now,
		}
		if err := tx.InsertBid(ctx, b); err != nil {
			return nil, err
		}
		ev, err := event.New(event.TypeBidPlaced, name, caller, event.BidPlaced{
			Bidder:                 caller,
			Price:                  b.Price,
			Description:            b.Description,
			ImplementationDuration: b.ImplementationDuration,
		}, now)
		if err != nil {
			return nil, err
		}
		placed = b
		return &outcome{task: t, event: ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// RemoveBid withdraws the caller's bid. The selected worker cannot withdraw.
func (s *BoardService) RemoveBid(ctx context.Context, caller, name string) error {
	_, err := s.mutate(ctx, "RemoveBid", name, caller, func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error) {
		t, err := tx.GetTask(ctx, name)
		if err != nil {
			return nil, err
		}
		if t.State != task.StateCreated && t.Worker == caller {
			return nil, fmt.Errorf("caller %s on task %s: %w", caller, name, bid.ErrSelectedAsWorker)
		}
		if _, err := tx.GetBid(ctx, name, caller); err != nil {
			return nil, err
		}
		if err := tx.DeleteBid(ctx, name, caller); err != nil {
			return nil, err
		}
		ev, err := event.New(event.TypeBidRemoved, name, caller, event.BidRemoved{Bidder: caller}, now)
		if err != nil {
			return nil, err
		}
		return &outcome{task: t, event: ev}, nil
	})
	return err
}

// SelectBid starts the task with bidder as worker, pulling the bid price
// from the client into custody. Every bid on the task is consumed.
func (s *BoardService) SelectBid(ctx context.Context, caller, name, bidder string) (*task.Task, error) {
	out, err := s.mutate(ctx, "SelectBid", name, caller, func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error) {
		t, err := tx.GetTask(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := requireClient(t, caller); err != nil {
			return nil, err
		}
		if err := requireState(t, task.StateCreated, task.ErrAlreadyStarted); err != nil {
			return nil, err
		}
		b, err := tx.GetBid(ctx, name, bidder)
		if err != nil {
			return nil, err
		}
		if err := s.checkFunds(ctx, t.Token, t.Client, b.Price); err != nil {
			return nil, err
		}

		dropped, err := tx.DeleteBids(ctx, name)
		if err != nil {
			return nil, err
		}
		t.Start(b.Bidder, b.Price, b.ImplementationDuration, now)
		if err := tx.UpdateTask(ctx, t); err != nil {
			return nil, err
		}
		ev, err := event.New(event.TypeBidSelected, name, caller, event.BidSelected{
			Worker:      b.Bidder,
			Price:       b.Price,
			Deadline:    t.Deadline,
			DroppedBids: dropped,
		}, now)
		if err != nil {
			return nil, err
		}
		return &outcome{
			task:  t,
			event: ev,
			transfer: &transfer{
				kind:   otel.EscrowFunded,
				token:  t.Token,
				from:   t.Client,
				to:     s.custody,
				amount: b.Price,
				pull:   true,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.task, nil
}
