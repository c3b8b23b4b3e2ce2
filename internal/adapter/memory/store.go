// Package memory provides an in-process boardstore.Store.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
)

var _ boardstore.Store = (*Store)(nil)

// Store keeps tasks, bids and events in maps. Units of work on the same task
// are serialized by a per-task lock; writes are staged and applied only when
// the unit succeeds.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]task.Task
	bids   map[string]map[string]bid.Bid // task name -> bidder -> bid
	events map[string][]event.Event

	locks keyedMutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tasks:  make(map[string]task.Task),
		bids:   make(map[string]map[string]bid.Bid),
		events: make(map[string][]event.Event),
		locks:  keyedMutex{locks: make(map[string]*keyLock)},
	}
}

// InTx runs fn under the task's lock and applies its writes if fn returns nil.
func (s *Store) InTx(ctx context.Context, taskName string, fn func(ctx context.Context, tx boardstore.Tx) error) error {
	unlock, err := s.locks.lock(ctx, taskName)
	if err != nil {
		return fmt.Errorf("lock task %s: %w", taskName, err)
	}
	defer unlock()

	tx := newTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit task %s: %w", taskName, err)
	}
	s.apply(tx)
	return nil
}

func (s *Store) apply(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, t := range tx.tasks {
		if t == nil {
			delete(s.tasks, name)
			continue
		}
		s.tasks[name] = *t
	}
	for name := range tx.cleared {
		delete(s.bids, name)
	}
	for k, b := range tx.bids {
		if b == nil {
			if m := s.bids[k.task]; m != nil {
				delete(m, k.bidder)
				if len(m) == 0 {
					delete(s.bids, k.task)
				}
			}
			continue
		}
		m := s.bids[k.task]
		if m == nil {
			m = make(map[string]bid.Bid)
			s.bids[k.task] = m
		}
		m[k.bidder] = *b
	}
	for _, ev := range tx.events {
		s.events[ev.TaskName] = append(s.events[ev.TaskName], ev)
	}
}

// GetTask returns a copy of the named task.
func (s *Store) GetTask(_ context.Context, name string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", name, task.ErrTaskNotFound)
	}
	return &t, nil
}

// ListTasks returns tasks matching filter ordered by creation time, then name.
func (s *Store) ListTasks(_ context.Context, filter task.Filter) ([]task.Task, error) {
	s.mu.RLock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Match(&t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b task.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

// GetBid returns a copy of the bid placed by bidder on the task.
func (s *Store) GetBid(_ context.Context, taskName, bidder string) (*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bids[taskName][bidder]
	if !ok {
		return nil, fmt.Errorf("get bid %s/%s: %w", taskName, bidder, bid.ErrBidNotFound)
	}
	return &b, nil
}

// ListBids returns the task's bids ordered by placement time, then bidder.
func (s *Store) ListBids(_ context.Context, taskName string) ([]bid.Bid, error) {
	s.mu.RLock()
	out := make([]bid.Bid, 0, len(s.bids[taskName]))
	for _, b := range s.bids[taskName] {
		out = append(out, b)
	}
	s.mu.RUnlock()

	sortBids(out)
	return out, nil
}

// ListEvents returns the task's events in append order. History outlives
// task removal.
func (s *Store) ListEvents(_ context.Context, taskName string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[taskName]), nil
}

func sortBids(bids []bid.Bid) {
	slices.SortFunc(bids, func(a, b bid.Bid) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Bidder, b.Bidder)
	})
}
