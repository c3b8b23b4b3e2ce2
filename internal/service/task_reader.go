package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/port/boardstore"
	"github.com/Strob0t/EscrowBoard/internal/port/cache"
	"github.com/Strob0t/EscrowBoard/internal/port/messagequeue"
)

// generationStripes is the number of invalidation counters task names hash onto.
const generationStripes = 256

var _ messagequeue.Handler = (*TaskReader)(nil).HandleEvent

// TaskReader serves task snapshots through a read-through cache. Concurrent
// misses for the same task share one store read.
//
// A snapshot loaded from the store is only written back when no invalidation
// of that task happened during the load.
type TaskReader struct {
	store boardstore.Store
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
	gens  [generationStripes]atomic.Uint64
}

// NewTaskReader creates a TaskReader. A nil cache reads the store directly.
func NewTaskReader(store boardstore.Store, c cache.Cache, ttl time.Duration) *TaskReader {
	return &TaskReader{store: store, cache: c, ttl: ttl}
}

// Get returns the task, from the cache when possible.
func (r *TaskReader) Get(ctx context.Context, name string) (*task.Task, error) {
	if r.cache == nil {
		return r.store.GetTask(ctx, name)
	}

	key := cache.TaskKey(name)
	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "task cache get failed", "task", name, "error", err)
	} else if ok {
		var t task.Task
		if err := json.Unmarshal(data, &t); err == nil {
			return &t, nil
		}
		slog.WarnContext(ctx, "task cache entry corrupt", "task", name)
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		gen := r.generation(name).Load()
		t, err := r.store.GetTask(ctx, name)
		if err != nil {
			return nil, err
		}
		r.fill(ctx, name, key, gen, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	t := *v.(*task.Task)
	return &t, nil
}

// fill caches t unless the task was invalidated since gen was read. An
// invalidation racing the write removes the entry again.
func (r *TaskReader) fill(ctx context.Context, name, key string, gen uint64, t *task.Task) {
	counter := r.generation(name)
	if counter.Load() != gen {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		slog.WarnContext(ctx, "task cache set failed", "task", name, "error", err)
		return
	}
	if counter.Load() != gen {
		if err := r.cache.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "task cache invalidate failed", "task", name, "error", err)
		}
	}
}

// Invalidate drops the cached snapshot of a task after it changed.
func (r *TaskReader) Invalidate(ctx context.Context, name string) {
	if r.cache == nil {
		return
	}
	r.generation(name).Add(1)
	r.group.Forget(name)
	if err := r.cache.Delete(ctx, cache.TaskKey(name)); err != nil {
		slog.WarnContext(ctx, "task cache invalidate failed", "task", name, "error", err)
	}
}

// HandleEvent is a messagequeue.Handler that invalidates the task named by a
// board event committed on any replica.
func (r *TaskReader) HandleEvent(ctx context.Context, subject string, data []byte) error {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event on %s: %w", subject, err)
	}
	r.Invalidate(ctx, ev.TaskName)
	return nil
}

func (r *TaskReader) generation(name string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return &r.gens[h.Sum32()%generationStripes]
}
