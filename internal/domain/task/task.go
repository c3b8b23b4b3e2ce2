// Package task defines the escrowed Task entity and its lifecycle.
package task

import (
	"time"

	"github.com/shopspring/decimal"
)

// State represents the lifecycle state of a task.
type State string

const (
	StateCreated           State = "CREATED"
	StateStarted           State = "STARTED"
	StateFinished          State = "FINISHED"
	StateAccepted          State = "ACCEPTED"
	StateRejected          State = "REJECTED"
	StateAcceptedByArbiter State = "ACCEPTED_BY_ARBITER"
	StateRejectedByArbiter State = "REJECTED_BY_ARBITER"
	StateExpired           State = "EXPIRED"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateStarted, StateFinished, StateAccepted, StateRejected,
		StateAcceptedByArbiter, StateRejectedByArbiter, StateExpired:
		return true
	}
	return false
}

// Terminal reports whether no further mutating operation can succeed from s.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateAcceptedByArbiter, StateRejectedByArbiter, StateExpired:
		return true
	}
	return false
}

// Funded reports whether a task in state s holds (or has disbursed) its escrow.
func (s State) Funded() bool {
	return s != StateCreated && s.Valid()
}

// HoldsEscrow reports whether the custody account still holds the task's price in state s.
func (s State) HoldsEscrow() bool {
	switch s {
	case StateStarted, StateFinished, StateRejected:
		return true
	}
	return false
}

// Task is a unit of work posted by a client, carrying its own escrow amount.
type Task struct {
	Name        string          `json:"name"`
	Client      string          `json:"client"`
	Description string          `json:"description"`
	Token       string          `json:"token"`
	MinDuration time.Duration   `json:"min_duration"`
	Deadline    time.Time       `json:"deadline,omitzero"`
	Price       decimal.Decimal `json:"price"`
	Worker      string          `json:"worker,omitempty"`
	State       State           `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateRequest holds the fields needed to post a new task.
type CreateRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Token       string        `json:"token"`
	MinDuration time.Duration `json:"min_duration"`
}

// Filter narrows ListTasks results. Empty fields match everything.
type Filter struct {
	State  State  `json:"state,omitempty"`
	Client string `json:"client,omitempty"`
	Worker string `json:"worker,omitempty"`
}

// Match reports whether t passes the filter.
func (f Filter) Match(t *Task) bool {
	if f.State != "" && t.State != f.State {
		return false
	}
	if f.Client != "" && t.Client != f.Client {
		return false
	}
	if f.Worker != "" && t.Worker != f.Worker {
		return false
	}
	return true
}

// Expired reports whether the worker's allotted time has run out at now.
// The comparison is strict: at the deadline instant the worker still has time.
func (t *Task) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && now.After(t.Deadline)
}

// Start moves a CREATED task to STARTED for the selected bid.
func (t *Task) Start(worker string, price decimal.Decimal, duration time.Duration, now time.Time) {
	t.Worker = worker
	t.Price = price
	t.Deadline = now.Add(duration)
	t.State = StateStarted
	t.UpdatedAt = now
}

// Transition moves the task to next and stamps UpdatedAt.
func (t *Task) Transition(next State, now time.Time) {
	t.State = next
	t.UpdatedAt = now
}
