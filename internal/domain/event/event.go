// Package event defines the domain events emitted by the task board.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies the kind of board event.
type Type string

const (
	TypeTaskCreated           Type = "task.created"
	TypeTaskRemoved           Type = "task.removed"
	TypeBidPlaced             Type = "bid.placed"
	TypeBidRemoved            Type = "bid.removed"
	TypeBidSelected           Type = "bid.selected"
	TypeTaskFinished          Type = "task.finished"
	TypeTaskAcceptedByClient  Type = "task.accepted_by_client"
	TypeTaskRejectedByClient  Type = "task.rejected_by_client"
	TypeTaskExpired           Type = "task.expired"
	TypeTaskAcceptedByArbiter Type = "task.accepted_by_arbiter"
	TypeTaskRejectedByArbiter Type = "task.rejected_by_arbiter"
)

// Event is a single immutable record of a committed board operation.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	TaskName  string          `json:"task_name"`
	Caller    string          `json:"caller"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// New builds an event with a time-ordered ID and a marshaled payload.
func New(typ Type, taskName, caller string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      typ,
		TaskName:  taskName,
		Caller:    caller,
		Payload:   data,
		CreatedAt: now,
	}, nil
}

// TaskCreated is the payload of TypeTaskCreated.
type TaskCreated struct {
	Client      string        `json:"client"`
	Description string        `json:"description"`
	Token       string        `json:"token"`
	MinDuration time.Duration `json:"min_duration"`
}

// TaskRemoved is the payload of TypeTaskRemoved.
type TaskRemoved struct {
	Client      string `json:"client"`
	DroppedBids int    `json:"dropped_bids"`
}

// BidPlaced is the payload of TypeBidPlaced.
type BidPlaced struct {
	Bidder                 string          `json:"bidder"`
	Price                  decimal.Decimal `json:"price"`
	Description            string          `json:"description"`
	ImplementationDuration time.Duration   `json:"implementation_duration"`
}

// BidRemoved is the payload of TypeBidRemoved.
type BidRemoved struct {
	Bidder string `json:"bidder"`
}

// BidSelected is the payload of TypeBidSelected.
type BidSelected struct {
	Worker      string          `json:"worker"`
	Price       decimal.Decimal `json:"price"`
	Deadline    time.Time       `json:"deadline"`
	DroppedBids int             `json:"dropped_bids"`
}

// TaskFinished is the payload of TypeTaskFinished.
type TaskFinished struct {
	Worker string `json:"worker"`
}

// Settlement is the payload of every event that moves or freezes escrow:
// acceptance, rejection, expiry and both arbiter decisions.
type Settlement struct {
	Payee  string          `json:"payee,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	Token  string          `json:"token"`
}
