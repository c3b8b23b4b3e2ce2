package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMinImplementationDuration is the shortest duration a task may require
// or a bid may offer unless configured otherwise.
const DefaultMinImplementationDuration = 24 * time.Hour

// ValidateCreateRequest checks the input-level guards of task creation.
// minDuration is the board-wide threshold; a request below it is rejected.
func ValidateCreateRequest(req CreateRequest, minDuration time.Duration) error {
	if strings.TrimSpace(req.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(req.Description) == "" {
		return ErrInvalidDescription
	}
	if strings.TrimSpace(req.Token) == "" {
		return ErrInvalidToken
	}
	if req.MinDuration < minDuration {
		return fmt.Errorf("min duration %s below %s: %w", req.MinDuration, minDuration, ErrInvalidExpirationTime)
	}
	return nil
}

// CheckInvariants verifies the escrow and worker invariants for t's state.
func (t *Task) CheckInvariants() error {
	if !t.State.Valid() {
		return fmt.Errorf("task %s: unknown state %q", t.Name, t.State)
	}
	funded := t.Price.GreaterThan(decimal.Zero)
	if funded != t.State.Funded() {
		return fmt.Errorf("task %s: price %s inconsistent with state %s", t.Name, t.Price, t.State)
	}
	if (t.Worker != "") != (t.State != StateCreated) {
		return fmt.Errorf("task %s: worker %q inconsistent with state %s", t.Name, t.Worker, t.State)
	}
	if t.Deadline.IsZero() != (t.State == StateCreated) {
		return fmt.Errorf("task %s: deadline inconsistent with state %s", t.Name, t.State)
	}
	return nil
}
