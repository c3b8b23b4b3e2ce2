package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/EscrowBoard/internal/domain/event"
	"github.com/Strob0t/EscrowBoard/internal/port/eventbus"
	"github.com/Strob0t/EscrowBoard/internal/port/messagequeue"
)

var _ eventbus.Publisher = (*EventPublisher)(nil)

// EventPublisher streams committed board events to JetStream. The event ID
// is used as the message ID, so a republished event is stored once.
type EventPublisher struct {
	q *Queue
}

// NewEventPublisher creates an EventPublisher on q.
func NewEventPublisher(q *Queue) *EventPublisher {
	return &EventPublisher{q: q}
}

// Publish sends ev on its board subject.
func (p *EventPublisher) Publish(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return p.q.publishMsg(ctx, newMsg(ctx, messagequeue.SubjectFor(ev.Type), data), jetstream.WithMsgID(ev.ID))
}
