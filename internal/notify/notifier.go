// Package notify delivers commit events to subscribed clients. The ledger core
// calls Notify once per successful commit; how the event reaches other group
// members (websocket fan-out, polling, push) is the transport layer's concern.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the ledger core.
const (
	KindAccount     = "account"
	KindTransaction = "transaction"
)

// Event identifies a committed entity change within a group.
type Event struct {
	ID         uuid.UUID `json:"id"`
	GroupID    int64     `json:"group_id"`
	Kind       string    `json:"kind"`
	EntityID   int64     `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh event for a committed entity.
func NewEvent(groupID int64, kind string, entityID int64) Event {
	return Event{
		ID:         uuid.New(),
		GroupID:    groupID,
		Kind:       kind,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier is the sink the commit coordinator invokes once per successful
// commit. Implementations must tolerate redelivery; events carry ids so
// consumers can deduplicate.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier discards events. Used where no delivery channel is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, event Event) error { return nil }
