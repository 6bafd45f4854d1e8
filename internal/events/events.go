// Package events carries domain events out of the engine once the owning
// transaction has committed.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	BulkOrderCreated     = "bulk_order.created"
	BulkOrderFinalized   = "bulk_order.finalized"
	BulkOrderCancelled   = "bulk_order.cancelled"
	ParticipationAdded   = "participation.added"
	ParticipationUpdated = "participation.updated"
	ParticipationRemoved = "participation.removed"
	OrderCreated         = "order.created"
	OrderStatusChanged   = "order.status_changed"
	MembershipChanged    = "membership.changed"
)

type Event struct {
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	ActorID     string    `json:"actor_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data,omitempty"`
}

// Publisher delivers events to whatever is listening downstream.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
