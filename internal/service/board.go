package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/adapter/otel"
	"github.com/Strob0t/EscrowBoard/internal/config"
	"github.com/Strob0t/EscrowBoard/internal/domain"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/logger"
	"github.com/Strob0t/EscrowBoard/internal/port/arbiter"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
	"github.com/Strob0t/EscrowBoard/internal/port/clock"
	"github.com/Strob0t/EscrowBoard/internal/port/eventbus"
	"github.com/Strob0t/EscrowBoard/internal/port/ledger"
)

// BoardService is the task board controller. Every mutating operation is one
// atomic unit on the task key: guards, state change, event and escrow
// transfer commit together or not at all.
type BoardService struct {
	store       boardstore.Store
	ledger      ledger.Ledger
	arbiters    arbiter.Authorizer
	custody     string
	minDuration time.Duration

	clock     clock.Clock
	publisher eventbus.Publisher
	reader    *TaskReader
	metrics   *otel.Metrics
}

// NewBoardService creates a BoardService. cfg supplies the custody account and
// the minimum implementation duration.
func NewBoardService(store boardstore.Store, l ledger.Ledger, arbiters arbiter.Authorizer, cfg *config.Board) *BoardService {
	minDuration := cfg.MinImplementationDuration
	if minDuration <= 0 {
		minDuration = task.DefaultMinImplementationDuration
	}
	return &BoardService{
		store:       store,
		ledger:      l,
		arbiters:    arbiters,
		custody:     cfg.CustodyAccount,
		minDuration: minDuration,
		clock:       clock.System{},
		reader:      NewTaskReader(store, nil, 0),
	}
}

// SetClock replaces the wall clock.
func (s *BoardService) SetClock(c clock.Clock) { s.clock = c }

// SetPublisher sets where committed events are delivered.
func (s *BoardService) SetPublisher(p eventbus.Publisher) { s.publisher = p }

// SetReader sets the read-through task cache.
func (s *BoardService) SetReader(r *TaskReader) { s.reader = r }

// SetMetrics sets the metric instruments.
func (s *BoardService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Custody returns the ledger account that holds escrow.
func (s *BoardService) Custody() string { return s.custody }

// transfer is an escrow movement. A pull debits the client through the
// custody account's allowance; otherwise custody pays out of its balance.
type transfer struct {
	kind   string
	token  string
	from   string
	to     string
	amount decimal.Decimal
	pull   bool
}

// outcome is what a guarded mutation produced inside its unit.
type outcome struct {
	task     *task.Task
	event    event.Event
	transfer *transfer
}

type mutation func(ctx context.Context, tx boardstore.Tx, now time.Time) (*outcome, error)

// mutate runs fn as one atomic unit on taskName and, once committed, logs,
// records metrics, invalidates the cache and publishes the event.
func (s *BoardService) mutate(ctx context.Context, op, taskName, caller string, fn mutation) (*outcome, error) {
	start := time.Now()
	ctx, span := otel.StartOperationSpan(ctx, op, taskName, caller)

	out, err := s.commit(ctx, taskName, fn)

	otel.EndSpan(span, err)
	s.metrics.RecordOperation(ctx, op, outcomeLabel(err), time.Since(start))
	if err != nil {
		s.logRejection(ctx, op, taskName, caller, err)
		return nil, err
	}

	s.reader.Invalidate(ctx, taskName)

	attrs := []any{"op", op, "task", taskName, "caller", caller}
	if out.task != nil {
		attrs = append(attrs, "state", out.task.State)
	}
	slog.InfoContext(ctx, "board operation committed", attrs...)
	if tr := out.transfer; tr != nil {
		s.metrics.RecordEscrow(ctx, tr.kind, tr.token, tr.amount)
		slog.InfoContext(ctx, "escrow moved",
			"task", taskName, "kind", tr.kind, "amount", tr.amount, "token", tr.token, "from", tr.from, "to", tr.to)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, out.event); err != nil {
			slog.ErrorContext(ctx, "publish board event failed", "event", out.event.ID, "type", out.event.Type, "error", err)
		}
	}
	return out, nil
}

func (s *BoardService) commit(ctx context.Context, taskName string, fn mutation) (*outcome, error) {
	now := s.clock.Now()

	var (
		out   *outcome
		moved bool
	)
	err := s.store.InTx(ctx, taskName, func(ctx context.Context, tx boardstore.Tx) error {
		o, err := fn(ctx, tx, now)
		if err != nil {
			return err
		}
		o.event.RequestID = logger.RequestID(ctx)
		if err := tx.AppendEvent(ctx, &o.event); err != nil {
			return fmt.Errorf("append event %s: %w", o.event.Type, err)
		}
		if o.transfer != nil {
			if err := s.move(ctx, o.transfer); err != nil {
				return err
			}
			moved = true
		}
		out = o
		return nil
	})
	if err != nil && moved {
		s.compensate(ctx, out.transfer, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// move executes tr on the ledger.
func (s *BoardService) move(ctx context.Context, tr *transfer) error {
	ctx, span := otel.StartTransferSpan(ctx, tr.token, tr.from, tr.to)
	var err error
	if tr.pull {
		err = s.ledger.TransferFrom(ctx, tr.token, s.custody, tr.from, tr.to, tr.amount)
	} else {
		err = s.ledger.Transfer(ctx, tr.token, tr.from, tr.to, tr.amount)
	}
	otel.EndSpan(span, err)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", task.ErrBalanceNotEnough, err)
	default:
		return fmt.Errorf("%w: %w", task.ErrTransferFailed, err)
	}
}

// compensate reverses a transfer whose unit failed to commit. A reversed pull
// also hands back the allowance it consumed when the ledger supports that.
func (s *BoardService) compensate(ctx context.Context, tr *transfer, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := s.ledger.Transfer(ctx, tr.token, tr.to, tr.from, tr.amount)
	if err != nil {
		slog.ErrorContext(ctx, "escrow compensation failed",
			"amount", tr.amount, "token", tr.token, "from", tr.to, "to", tr.from, "cause", cause, "error", err)
		return
	}
	slog.WarnContext(ctx, "escrow transfer compensated after failed commit",
		"amount", tr.amount, "token", tr.token, "from", tr.to, "to", tr.from, "cause", cause)

	if !tr.pull {
		return
	}
	r, ok := s.ledger.(ledger.AllowanceRestorer)
	if ok {
		err = r.IncreaseAllowance(ctx, tr.token, tr.from, s.custody, tr.amount)
	}
	if !ok || err != nil {
		slog.ErrorContext(ctx, "custody allowance not restored after compensation",
			"owner", tr.from, "spender", s.custody, "amount", tr.amount, "token", tr.token, "error", err)
	}
}

// checkFunds verifies the client can fund amount through the custody allowance.
func (s *BoardService) checkFunds(ctx context.Context, token, client string, amount decimal.Decimal) error {
	bal, err := s.ledger.BalanceOf(ctx, token, client)
	if err != nil {
		return fmt.Errorf("%w: %w", task.ErrTransferFailed, err)
	}
	allowed, err := s.ledger.Allowance(ctx, token, client, s.custody)
	if err != nil {
		return fmt.Errorf("%w: %w", task.ErrTransferFailed, err)
	}
	if bal.LessThan(amount) || allowed.LessThan(amount) {
		return fmt.Errorf("client %s has balance %s and allowance %s, needs %s %s: %w",
			client, bal, allowed, amount, token, task.ErrBalanceNotEnough)
	}
	return nil
}

// payout releases the task's escrow from custody to payee.
func (s *BoardService) payout(t *task.Task, kind, payee string) *transfer {
	return &transfer{kind: kind, token: t.Token, from: s.custody, to: payee, amount: t.Price}
}

func (s *BoardService) logRejection(ctx context.Context, op, taskName, caller string, err error) {
	if domain.Code(err) == "" {
		slog.ErrorContext(ctx, "board operation failed", "op", op, "task", taskName, "caller", caller, "error", err)
		return
	}
	slog.DebugContext(ctx, "board operation rejected", "op", op, "task", taskName, "caller", caller, "code", domain.Code(err))
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := domain.Code(err); code != "" {
		return code
	}
	return "error"
}

func requireClient(t *task.Task, caller string) error {
	if t.Client != caller {
		return fmt.Errorf("caller %s on task %s: %w", caller, t.Name, task.ErrNotAClient)
	}
	return nil
}

func requireState(t *task.Task, want task.State, code error) error {
	if t.State != want {
		return fmt.Errorf("task %s is %s: %w", t.Name, t.State, code)
	}
	return nil
}
