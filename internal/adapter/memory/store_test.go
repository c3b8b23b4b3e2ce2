package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
)

var (
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	errBoom = errors.New("boom")
)

func newTask(name string) *task.Task {
	return &task.Task{
		Name:        name,
		Client:      "alice",
		Description: "design a logo",
		Token:       "USDX",
		MinDuration: 24 * time.Hour,
		Price:       decimal.Zero,
		State:       task.StateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newBid(taskName, bidder string, at time.Time) *bid.Bid {
	return &bid.Bid{
		TaskName:               taskName,
		Bidder:                 bidder,
		Price:                  decimal.NewFromInt(100),
		Description:            "on it",
		ImplementationDuration: 48 * time.Hour,
		CreatedAt:              at,
	}
}

func seed(t *testing.T, s *Store, name string, bidders ...string) {
	t.Helper()
	err := s.InTx(context.Background(), name, func(ctx context.Context, tx boardstore.Tx) error {
		if err := tx.InsertTask(ctx, newTask(name)); err != nil {
			return err
		}
		for i, b := range bidders {
			if err := tx.InsertBid(ctx, newBid(name, b, now.Add(time.Duration(i)*time.Minute))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	s := NewStore()
	seed(t, s, "logo", "bob", "carol")

	got, err := s.GetTask(context.Background(), "logo")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Client != "alice" {
		t.Errorf("client = %q, want alice", got.Client)
	}
	bids, _ := s.ListBids(context.Background(), "logo")
	if len(bids) != 2 || bids[0].Bidder != "bob" {
		t.Fatalf("unexpected bids %+v", bids)
	}
}

func TestInTxDiscardsOnError(t *testing.T) {
	s := NewStore()
	seed(t, s, "logo", "bob")

	err := s.InTx(context.Background(), "logo", func(ctx context.Context, tx boardstore.Tx) error {
		tk, err := tx.GetTask(ctx, "logo")
		if err != nil {
			return err
		}
		tk.Start("bob", decimal.NewFromInt(100), 48*time.Hour, now)
		if err := tx.UpdateTask(ctx, tk); err != nil {
			return err
		}
		if _, err := tx.DeleteBids(ctx, "logo"); err != nil {
			return err
		}
		ev, _ := event.New(event.TypeBidSelected, "logo", "alice", event.BidSelected{Worker: "bob"}, now)
		if err := tx.AppendEvent(ctx, &ev); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	got, _ := s.GetTask(context.Background(), "logo")
	if got.State != task.StateCreated {
		t.Errorf("state = %s, want CREATED after rollback", got.State)
	}
	if _, err := s.GetBid(context.Background(), "logo", "bob"); err != nil {
		t.Errorf("bid should survive rollback: %v", err)
	}
	evs, _ := s.ListEvents(context.Background(), "logo")
	if len(evs) != 0 {
		t.Errorf("events should not be appended on rollback, got %d", len(evs))
	}
}

func TestTxReadsItsOwnWrites(t *testing.T) {
	s := NewStore()
	err := s.InTx(context.Background(), "logo", func(ctx context.Context, tx boardstore.Tx) error {
		if err := tx.InsertTask(ctx, newTask("logo")); err != nil {
			return err
		}
		if _, err := tx.GetTask(ctx, "logo"); err != nil {
			t.Errorf("staged task not visible: %v", err)
		}
		if err := tx.InsertTask(ctx, newTask("logo")); !errors.Is(err, task.ErrTaskAlreadyExists) {
			t.Errorf("expected TASK_ALREADY_EXISTS, got %v", err)
		}
		if err := tx.InsertBid(ctx, newBid("logo", "bob", now)); err != nil {
			return err
		}
		if err := tx.InsertBid(ctx, newBid("logo", "bob", now)); !errors.Is(err, bid.ErrBidAlreadyPlaced) {
			t.Errorf("expected BID_ALREADY_PLACED, got %v", err)
		}
		if err := tx.DeleteBid(ctx, "logo", "bob"); err != nil {
			return err
		}
		if _, err := tx.GetBid(ctx, "logo", "bob"); !errors.Is(err, bid.ErrBidNotFound) {
			t.Errorf("expected BID_NOT_FOUND after staged delete, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func TestDeleteBidsCountsVisibleBids(t *testing.T) {
	s := NewStore()
	seed(t, s, "logo", "bob", "carol", "dave")

	var dropped int
	err := s.InTx(context.Background(), "logo", func(ctx context.Context, tx boardstore.Tx) error {
		if err := tx.DeleteBid(ctx, "logo", "carol"); err != nil {
			return err
		}
		if err := tx.InsertBid(ctx, newBid("logo", "erin", now)); err != nil {
			return err
		}
		var err error
		dropped, err = tx.DeleteBids(ctx, "logo")
		if err != nil {
			return err
		}
		if _, err := tx.GetBid(ctx, "logo", "bob"); !errors.Is(err, bid.ErrBidNotFound) {
			t.Errorf("expected cleared bids to be invisible, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3 (bob, dave, erin)", dropped)
	}
	bids, _ := s.ListBids(context.Background(), "logo")
	if len(bids) != 0 {
		t.Errorf("expected no bids after commit, got %d", len(bids))
	}
}

func TestDeleteTaskKeepsHistory(t *testing.T) {
	s := NewStore()
	err := s.InTx(context.Background(), "logo", func(ctx context.Context, tx boardstore.Tx) error {
		if err := tx.InsertTask(ctx, newTask("logo")); err != nil {
			return err
		}
		ev, _ := event.New(event.TypeTaskCreated, "logo", "alice", event.TaskCreated{Client: "alice"}, now)
		return tx.AppendEvent(ctx, &ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.InTx(context.Background(), "logo", func(ctx context.Context, tx boardstore.Tx) error {
		return tx.DeleteTask(ctx, "logo")
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetTask(context.Background(), "logo"); !errors.Is(err, task.ErrTaskNotFound) {
		t.Fatalf("expected TASK_NOT_FOUND, got %v", err)
	}
	evs, _ := s.ListEvents(context.Background(), "logo")
	if len(evs) != 1 {
		t.Fatalf("expected history to survive removal, got %d events", len(evs))
	}
}

func TestListTasksFilterAndOrder(t *testing.T) {
	s := NewStore()
	seed(t, s, "b-task")
	seed(t, s, "a-task")
	_ = s.InTx(context.Background(), "c-task", func(ctx context.Context, tx boardstore.Tx) error {
		tk := newTask("c-task")
		tk.Client = "zoe"
		return tx.InsertTask(ctx, tk)
	})

	all, _ := s.ListTasks(context.Background(), task.Filter{})
	if len(all) != 3 || all[0].Name != "a-task" || all[1].Name != "b-task" {
		t.Fatalf("unexpected order %v", all)
	}
	zoe, _ := s.ListTasks(context.Background(), task.Filter{Client: "zoe"})
	if len(zoe) != 1 || zoe[0].Name != "c-task" {
		t.Fatalf("unexpected filtered result %v", zoe)
	}
}

func TestInTxSerializesPerTask(t *testing.T) {
	s := NewStore()
	seed(t, s, "logo")

	const workers = 50
	var wg sync.WaitGroup
	inside := 0
	maxInside := 0
	var mu sync.Mutex

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(context.Background(), "logo", func(context.Context, boardstore.Tx) error {
				mu.Lock()
				inside++
				maxInside = max(maxInside, inside)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected units on one task to be serialized, saw %d concurrently", maxInside)
	}
	if n := s.locks.size(); n != 0 {
		t.Fatalf("expected lock table to be empty, got %d", n)
	}
}

func TestInTxHonorsCancelledContext(t *testing.T) {
	s := NewStore()
	seed(t, s, "logo")

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.InTx(context.Background(), "logo", func(context.Context, boardstore.Tx) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, "logo", func(context.Context, boardstore.Tx) error {
		t.Error("fn must not run without the lock")
		return nil
	})
	close(hold)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
