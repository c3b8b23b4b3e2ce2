// Package bid defines a worker's offer on an open task.
package bid

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/domain"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
)

var (
	ErrBidNotFound       = domain.NewCode("BID_NOT_FOUND", domain.ErrNotFound)
	ErrBidAlreadyPlaced  = domain.NewCode("BID_ALREADY_PLACED", domain.ErrConflict)
	ErrSelectedAsWorker  = domain.NewCode("SELECTED_AS_A_WORKER", domain.ErrConflict)
	ErrClientCannotBid   = domain.NewCode("CLIENT_CANNOT_BID", domain.ErrUnauthorized)
	ErrInvalidPrice      = domain.NewCode("INVALID_PRICE", domain.ErrValidation)
	ErrInvalidImplPeriod = domain.NewCode("INVALID_IMPLEMENTATION_TIME", domain.ErrValidation)
)

// Bid is an offer to implement a task for a price within a duration.
type Bid struct {
	TaskName               string          `json:"task_name"`
	Bidder                 string          `json:"bidder"`
	Price                  decimal.Decimal `json:"price"`
	Description            string          `json:"description"`
	ImplementationDuration time.Duration   `json:"implementation_duration"`
	CreatedAt              time.Time       `json:"created_at"`
}

// PlaceRequest holds the fields of a new bid.
type PlaceRequest struct {
	Price                  decimal.Decimal `json:"price"`
	Description            string          `json:"description"`
	ImplementationDuration time.Duration   `json:"implementation_duration"`
}

// ValidatePlaceRequest checks the input-level guards of a bid against the
// board-wide minimum duration.
func ValidatePlaceRequest(req PlaceRequest, minDuration time.Duration) error {
	if !req.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if strings.TrimSpace(req.Description) == "" {
		return task.ErrInvalidDescription
	}
	if req.ImplementationDuration < minDuration {
		return ErrInvalidImplPeriod
	}
	return nil
}
