package memory

import (
	"context"
	"sync"

	"conceptgraph/domain/events"
)

// EventLog records events in memory. It serves as both the audit EventStore
// and an EventPublisher for tests and local runs.
type EventLog struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

// NewEventLog creates an empty log
func NewEventLog() *EventLog {
	return &EventLog{}
}

// SaveEvents appends events
func (l *EventLog) SaveEvents(_ context.Context, evts []events.DomainEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evts...)
	return nil
}

// GetEvents returns the events of one aggregate in insertion order
func (l *EventLog) GetEvents(_ context.Context, aggregateID string) ([]events.DomainEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []events.DomainEvent
	for _, e := range l.events {
		if e.GetAggregateID() == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Publish appends one event
func (l *EventLog) Publish(ctx context.Context, event events.DomainEvent) error {
	return l.SaveEvents(ctx, []events.DomainEvent{event})
}

// PublishBatch appends events
func (l *EventLog) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	return l.SaveEvents(ctx, evts)
}

// All returns every recorded event
func (l *EventLog) All() []events.DomainEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.DomainEvent(nil), l.events...)
}

// Types returns the event type of every recorded event
func (l *EventLog) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.GetEventType()
	}
	return out
}
