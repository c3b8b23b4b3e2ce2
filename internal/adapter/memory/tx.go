package memory

import (
	"context"
	"fmt"

	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
)

type bidKey struct {
	task   string
	bidder string
}

// memTx stages writes over the committed state. A nil entry marks a deletion.
type memTx struct {
	s       *Store
	tasks   map[string]*task.Task
	bids    map[bidKey]*bid.Bid
	cleared map[string]bool
	events  []event.Event
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:       s,
		tasks:   make(map[string]*task.Task),
		bids:    make(map[bidKey]*bid.Bid),
		cleared: make(map[string]bool),
	}
}

func (tx *memTx) lookupTask(name string) (task.Task, bool) {
	if t, staged := tx.tasks[name]; staged {
		if t == nil {
			return task.Task{}, false
		}
		return *t, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	t, ok := tx.s.tasks[name]
	return t, ok
}

func (tx *memTx) lookupBid(k bidKey) (bid.Bid, bool) {
	if b, staged := tx.bids[k]; staged {
		if b == nil {
			return bid.Bid{}, false
		}
		return *b, true
	}
	if tx.cleared[k.task] {
		return bid.Bid{}, false
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	b, ok := tx.s.bids[k.task][k.bidder]
	return b, ok
}

func (tx *memTx) GetTask(_ context.Context, name string) (*task.Task, error) {
	t, ok := tx.lookupTask(name)
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", name, task.ErrTaskNotFound)
	}
	return &t, nil
}

func (tx *memTx) InsertTask(_ context.Context, t *task.Task) error {
	if _, ok := tx.lookupTask(t.Name); ok {
		return fmt.Errorf("insert task %s: %w", t.Name, task.ErrTaskAlreadyExists)
	}
	c := *t
	tx.tasks[t.Name] = &c
	return nil
}

func (tx *memTx) UpdateTask(_ context.Context, t *task.Task) error {
	if _, ok := tx.lookupTask(t.Name); !ok {
		return fmt.Errorf("update task %s: %w", t.Name, task.ErrTaskNotFound)
	}
	c := *t
	tx.tasks[t.Name] = &c
	return nil
}

func (tx *memTx) DeleteTask(_ context.Context, name string) error {
	if _, ok := tx.lookupTask(name); !ok {
		return fmt.Errorf("delete task %s: %w", name, task.ErrTaskNotFound)
	}
	tx.tasks[name] = nil
	return nil
}

func (tx *memTx) GetBid(_ context.Context, taskName, bidder string) (*bid.Bid, error) {
	b, ok := tx.lookupBid(bidKey{taskName, bidder})
	if !ok {
		return nil, fmt.Errorf("get bid %s/%s: %w", taskName, bidder, bid.ErrBidNotFound)
	}
	return &b, nil
}

func (tx *memTx) InsertBid(_ context.Context, b *bid.Bid) error {
	k := bidKey{b.TaskName, b.Bidder}
	if _, ok := tx.lookupBid(k); ok {
		return fmt.Errorf("insert bid %s/%s: %w", b.TaskName, b.Bidder, bid.ErrBidAlreadyPlaced)
	}
	c := *b
	tx.bids[k] = &c
	return nil
}

func (tx *memTx) DeleteBid(_ context.Context, taskName, bidder string) error {
	k := bidKey{taskName, bidder}
	if _, ok := tx.lookupBid(k); !ok {
		return fmt.Errorf("delete bid %s/%s: %w", taskName, bidder, bid.ErrBidNotFound)
	}
	tx.bids[k] = nil
	return nil
}

func (tx *memTx) DeleteBids(_ context.Context, taskName string) (int, error) {
	visible := make(map[string]bool)
	if !tx.cleared[taskName] {
		tx.s.mu.RLock()
		for bidder := range tx.s.bids[taskName] {
			visible[bidder] = true
		}
		tx.s.mu.RUnlock()
	}
	for k, b := range tx.bids {
		if k.task != taskName {
			continue
		}
		visible[k.bidder] = b != nil
		delete(tx.bids, k)
	}

	n := 0
	for _, ok := range visible {
		if ok {
			n++
		}
	}
	tx.cleared[taskName] = true
	return n, nil
}

func (tx *memTx) AppendEvent(_ context.Context, ev *event.Event) error {
	tx.events = append(tx.events, *ev)
	return nil
}
