// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
)

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// SubjectPrefix is the root of every board event subject.
const SubjectPrefix = "board"

// SubjectAll matches every board event subject.
const SubjectAll = SubjectPrefix + ".>"

// SubjectFor returns the subject a board event of type t is published on,
// e.g. "board.bid.selected".
func SubjectFor(t event.Type) string {
	return SubjectPrefix + "." + string(t)
}
