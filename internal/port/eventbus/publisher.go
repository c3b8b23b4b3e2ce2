// Package eventbus defines the port for fanning committed board events out to external consumers.
package eventbus

import (
	"context"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
)

// Publisher delivers a committed event. Delivery happens after the atomic unit
// has committed, so a failure never rolls the operation back.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}
