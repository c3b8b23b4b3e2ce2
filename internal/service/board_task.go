package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/adapter/otel"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
)

// CreateTask posts a new task owned by caller.
func (s *BoardService) CreateTask(ctx context.Context, caller string, req task.CreateRequest) (*task.Task, error) {
	if err := task.ValidateCreateRequest(req, s.minDuration); err != nil {
		s.logRejection(ctx, "CreateTask", req.Name, caller, err)
		return nil, err
	}

	out, err := s.mutate(ctx, "CreateTask", req.Name, caller, func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error) {
		_, err := tx.GetTask(ctx, req.Name)
		switch {
		case err == nil:
			return nil, fmt.Errorf("create task %s: %w", req.Name, task.ErrTaskAlreadyExists)
		case !errors.Is(err, task.ErrTaskNotFound):
			return nil, err
		}

		t := &task.Task{
			Name:        req.Name,
			Client:      caller,
			Description: req.Description,
			Token:       req.Token,
			MinDuration: req.MinDuration,
			Price:       decimal.Zero,
			State:       task.StateCreated,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTask(ctx, t); err != nil {
			return nil, err
		}
		ev, err := event.New(event.TypeTaskCreated, t.Name, caller, event.TaskCreated{
			Client:      caller,
			Description: t.Description,
			Token:       t.Token,
			MinDuration: t.MinDuration,
		}, now)
		if err != nil {
			return nil, err
		}
		return &outcome{task: t, event: ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.task, nil
}

// RemoveTask deletes a task that has not started, together with its bids.
func (s *BoardService) RemoveTask(ctx context.Context, caller, name string) error {
	_, err := s.mutate(ctx, "RemoveTask", name, caller, func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error) {
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

		dropped, err := tx.DeleteBids(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteTask(ctx, name); err != nil {
			return nil, err
		}
		ev, err := event.New(event.TypeTaskRemoved, name, caller, event.TaskRemoved{
			Client:      t.Client,
			DroppedBids: dropped,
		}, now)
		if err != nil {
			return nil, err
		}
		return &outcome{event: ev}, nil
	})
	return err
}

// transition describes a guarded state change of an existing task. Guards run
// in order: authorize, state, check.
type transition struct {
	op      string
	typ     event.Type
	from    task.State
	notFrom error
	to      task.State

	authorize func(ctx context.Context, t *task.Task, caller string) error
	check     func(t *task.Task, now time.Time) error
	// payee returns the escrow movement kind and the receiving account, or
	// an empty kind when no escrow moves.
	payee func(t *task.Task) (kind, account string)
}

func (s *BoardService) apply(ctx context.Context, caller, name string, tr transition) (*task.Task, error) {
	out, err := s.mutate(ctx, tr.op, name, caller, func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error) {
		t, err := tx.GetTask(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := tr.authorize(ctx, t, caller); err != nil {
			return nil, err
		}
		if err := requireState(t, tr.from, tr.notFrom); err != nil {
			return nil, err
		}
		if tr.check != nil {
			if err := tr.check(t, now); err != nil {
				return nil, err
			}
		}

		t.Transition(tr.to, now)
		if err := tx.UpdateTask(ctx, t); err != nil {
			return nil, err
		}

		o := &outcome{task: t}
		var payload any = event.TaskFinished{Worker: t.Worker}
		if tr.payee != nil {
			settlement := event.Settlement{Amount: t.Price, Token: t.Token}
			if kind, account := tr.payee(t); kind != "" {
				settlement.Payee = account
				o.transfer = s.payout(t, kind, account)
			}
			payload = settlement
		}
		if o.event, err = event.New(tr.typ, name, caller, payload, now); err != nil {
			return nil, err
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return out.task, nil
}

func clientOnly(_ context.Context, t *task.Task, caller string) error {
	return requireClient(t, caller)
}

func workerOnly(_ context.Context, t *task.Task, caller string) error {
	if t.Worker != caller {
		return fmt.Errorf("caller %s on task %s: %w", caller, t.Name, task.ErrNotAWorker)
	}
	return nil
}

func (s *BoardService) arbiterOnly(ctx context.Context, _ *task.Task, caller string) error {
	ok, err := s.arbiters.IsAuthorizedArbiter(ctx, caller)
	if err != nil {
		return fmt.Errorf("authorize arbiter %s: %w", caller, err)
	}
	if !ok {
		return fmt.Errorf("caller %s: %w", caller, task.ErrNotArbiter)
	}
	return nil
}

func toWorker(t *task.Task) (string, string) { return otel.EscrowReleased, t.Worker }
func toClient(t *task.Task) (string, string) { return otel.EscrowRefunded, t.Client }
func frozen(*task.Task) (string, string)     { return "", "" }

// FinishTask marks the worker's implementation as delivered.
func (s *BoardService) FinishTask(ctx context.Context, caller, name string) (*task.Task, error) {
	return s.apply(ctx, caller, name, transition{
		op: "FinishTask", typ: event.TypeTaskFinished,
		from: task.StateStarted, notFrom: task.ErrNotStarted, to: task.StateFinished,
		authorize: workerOnly,
	})
}

// AcceptTaskByClient accepts the delivery and releases escrow to the worker.
func (s *BoardService) AcceptTaskByClient(ctx context.Context, caller, name string) (*task.Task, error) {
	return s.apply(ctx, caller, name, transition{
		op: "AcceptTaskByClient", typ: event.TypeTaskAcceptedByClient,
		from: task.StateFinished, notFrom: task.ErrNotFinished, to: task.StateAccepted,
		authorize: clientOnly,
		payee:     toWorker,
	})
}

// RejectTaskByClient disputes the delivery. Escrow stays in custody until an
// arbiter decides.
func (s *BoardService) RejectTaskByClient(ctx context.Context, caller, name string) (*task.Task, error) {
	return s.apply(ctx, caller, name, transition{
		op: "RejectTaskByClient", typ: event.TypeTaskRejectedByClient,
		from: task.StateFinished, notFrom: task.ErrNotFinished, to: task.StateRejected,
		authorize: clientOnly,
		payee:     frozen,
	})
}

// MarkTaskAsExpired refunds the client once the worker's deadline has passed.
func (s *BoardService) MarkTaskAsExpired(ctx context.Context, caller, name string) (*task.Task, error) {
	return s.apply(ctx, caller, name, transition{
		op: "MarkTaskAsExpired", typ: event.TypeTaskExpired,
		from: task.StateStarted, notFrom: task.ErrNotStarted, to: task.StateExpired,
		authorize: clientOnly,
		check: func(t *task.Task, now time.Time) error {
			if !t.Expired(now) {
				return fmt.Errorf("task %s deadline %s: %w", t.Name, t.Deadline.Format(time.RFC3339), task.ErrWorkerStillHasTime)
			}
			return nil
		},
		payee: toClient,
	})
}

// AcceptTaskByArbiter resolves a dispute in the worker's favor.
func (s *BoardService) AcceptTaskByArbiter(ctx context.Context, caller, name string) (*task.Task, error) {
	return s.apply(ctx, caller, name, transition{
		op: "AcceptTaskByArbiter", typ: event.TypeTaskAcceptedByArbiter,
		from: task.StateRejected, notFrom: task.ErrNotRejected, to: task.StateAcceptedByArbiter,
		authorize: s.arbiterOnly,
		payee:     toWorker,
	})
}

// RejectTaskByArbiter resolves a dispute in the client's favor.
func (s *BoardService) RejectTaskByArbiter(ctx context.Context, caller, name string) (*task.Task, error) {
	return s.apply(ctx, caller, name, transition{
		op: "RejectTaskByArbiter", typ: event.TypeTaskRejectedByArbiter,
		from: task.StateRejected, notFrom: task.ErrNotRejected, to: task.StateRejectedByArbiter,
		authorize: s.arbiterOnly,
		payee:     toClient,
	})
}
