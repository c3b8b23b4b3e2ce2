package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
)

var _ boardstore.Store = (*Store)(nil)

// Store implements boardstore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside one transaction holding the task's advisory lock.
// The lock serializes units on the same task even before its row exists.
func (s *Store) InTx(ctx context.Context, taskName string, fn func(ctx context.Context, tx boardstore.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin task %s: %w", taskName, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, taskName); err != nil {
		return fmt.Errorf("lock task %s: %w", taskName, err)
	}

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit task %s: %w", taskName, err)
	}
	return nil
}

// --- Tasks ---

const taskColumns = `name, client, description, token, min_duration, deadline, price::text, worker, state, created_at, updated_at`

func scanTask(row scannable) (task.Task, error) {
	var (
		t        task.Task
		minDur   int64
		deadline *time.Time
		price    string
	)
	err := row.Scan(&t.Name, &t.Client, &t.Description, &t.Token, &minDur, &deadline,
		&price, &t.Worker, &t.State, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	t.MinDuration = time.Duration(minDur)
	t.Deadline = timeOrZero(deadline)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.Price, err = parseAmount(price); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func getTask(ctx context.Context, q querier, name string, forUpdate bool) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE name = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTask(q.QueryRow(ctx, query, name))
	if err != nil {
		return nil, notFoundWrap(err, task.ErrTaskNotFound, "get task %s", name)
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, name string) (*task.Task, error) {
	return getTask(ctx, s.pool, name, false)
}

func (s *Store) ListTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("state", string(filter.State))
	add("client", filter.Client)
	add("worker", filter.Worker)

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- Bids ---

const bidColumns = `task_name, bidder, price::text, description, implementation_duration, created_at`

func scanBid(row scannable) (bid.Bid, error) {
	var (
		b     bid.Bid
		price string
		dur   int64
	)
	if err := row.Scan(&b.TaskName, &b.Bidder, &price, &b.Description, &dur, &b.CreatedAt); err != nil {
		return bid.Bid{}, err
	}
	b.ImplementationDuration = time.Duration(dur)
	b.CreatedAt = b.CreatedAt.UTC()
	var err error
	if b.Price, err = parseAmount(price); err != nil {
		return bid.Bid{}, err
	}
	return b, nil
}

func getBid(ctx context.Context, q querier, taskName, bidder string) (*bid.Bid, error) {
	b, err := scanBid(q.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE task_name = $1 AND bidder = $2`, taskName, bidder))
	if err != nil {
		return nil, notFoundWrap(err, bid.ErrBidNotFound, "get bid %s/%s", taskName, bidder)
	}
	return &b, nil
}

func (s *Store) GetBid(ctx context.Context, taskName, bidder string) (*bid.Bid, error) {
	return getBid(ctx, s.pool, taskName, bidder)
}

func (s *Store) ListBids(ctx context.Context, taskName string) ([]bid.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE task_name = $1 ORDER BY created_at, bidder`, taskName)
	if err != nil {
		return nil, fmt.Errorf("list bids %s: %w", taskName, err)
	}
	defer rows.Close()

	bids := []bid.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// --- Events ---

func (s *Store) ListEvents(ctx context.Context, taskName string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, event_type, task_name, caller, payload::text, request_id, created_at
		 FROM board_events WHERE task_name = $1 ORDER BY seq`, taskName)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", taskName, err)
	}
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var (
			ev      event.Event
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.TaskName, &ev.Caller, &payload, &ev.RequestID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = []byte(payload)
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// pgTx implements boardstore.Tx on an open transaction.
type pgTx struct {
	q pgx.Tx
}

func (tx *pgTx) GetTask(ctx context.Context, name string) (*task.Task, error) {
	return getTask(ctx, tx.q, name, true)
}

func (tx *pgTx) InsertTask(ctx context.Context, t *task.Task) error {
	_, err := tx.q.Exec(ctx,
		`INSERT INTO tasks (name, client, description, token, min_duration, deadline, price, worker, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11)`,
		t.Name, t.Client, t.Description, t.Token, int64(t.MinDuration), nullTime(t.Deadline),
		t.Price.String(), t.Worker, string(t.State), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return conflictWrap(err, task.ErrTaskAlreadyExists, "insert task %s", t.Name)
	}
	return nil
}

func (tx *pgTx) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := tx.q.Exec(ctx,
		`UPDATE tasks SET deadline = $2, price = $3::text::numeric, worker = $4, state = $5, updated_at = $6
		 WHERE name = $1`,
		t.Name, nullTime(t.Deadline), t.Price.String(), t.Worker, string(t.State), t.UpdatedAt)
	return execExpectOne(tag, err, task.ErrTaskNotFound, "update task %s", t.Name)
}

func (tx *pgTx) DeleteTask(ctx context.Context, name string) error {
	tag, err := tx.q.Exec(ctx, `DELETE FROM tasks WHERE name = $1`, name)
	return execExpectOne(tag, err, task.ErrTaskNotFound, "delete task %s", name)
}

func (tx *pgTx) GetBid(ctx context.Context, taskName, bidder string) (*bid.Bid, error) {
	return getBid(ctx, tx.q, taskName, bidder)
}

func (tx *pgTx) InsertBid(ctx context.Context, b *bid.Bid) error {
	_, err := tx.q.Exec(ctx,
		`INSERT INTO bids (task_name, bidder, price, description, implementation_duration, created_at)
		 VALUES ($1, $2, $3::text::numeric, $4, $5, $6)`,
		b.TaskName, b.Bidder, b.Price.String(), b.Description, int64(b.ImplementationDuration), b.CreatedAt)
	if err != nil {
		return conflictWrap(err, bid.ErrBidAlreadyPlaced, "insert bid %s/%s", b.TaskName, b.Bidder)
	}
	return nil
}

func (tx *pgTx) DeleteBid(ctx context.Context, taskName, bidder string) error {
	tag, err := tx.q.Exec(ctx, `DELETE FROM bids WHERE task_name = $1 AND bidder = $2`, taskName, bidder)
	return execExpectOne(tag, err, bid.ErrBidNotFound, "delete bid %s/%s", taskName, bidder)
}

func (tx *pgTx) DeleteBids(ctx context.Context, taskName string) (int, error) {
	tag, err := tx.q.Exec(ctx, `DELETE FROM bids WHERE task_name = $1`, taskName)
	if err != nil {
		return 0, fmt.Errorf("delete bids %s: %w", taskName, err)
	}
	return int(tag.RowsAffected()), nil
}

func (tx *pgTx) AppendEvent(ctx context.Context, ev *event.Event) error {
	_, err := tx.q.Exec(ctx,
		`INSERT INTO board_events (id, task_name, event_type, caller, payload, request_id, created_at)
		 VALUES ($1::text::uuid, $2, $3, $4, $5::text::jsonb, $6, $7)`,
		ev.ID, ev.TaskName, string(ev.Type), ev.Caller, string(ev.Payload), ev.RequestID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}
