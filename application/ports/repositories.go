package ports

import (
	"context"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/domain/events"
)

// NodeRepository defines the interface for concept persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type NodeRepository interface {
	// Get retrieves a concept by ID; (nil, nil) when it does not exist
	Get(ctx context.Context, id valueobjects.ConceptID) (*entities.ConceptNode, error)

	// ListActive retrieves every active concept in a scope
	ListActive(ctx context.Context, scope valueobjects.ScopeID) ([]*entities.ConceptNode, error)

	// Save persists a concept (create or update)
	Save(ctx context.Context, node *entities.ConceptNode) error
}

// EdgeRepository defines the interface for relationship persistence
type EdgeRepository interface {
	// Outgoing returns active edges whose source is nodeID; an empty filter matches every type
	Outgoing(ctx context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error)

	// Incoming returns active edges whose target is nodeID
	Incoming(ctx context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error)

	// Deactivate soft-deletes an edge
	Deactivate(ctx context.Context, edgeID valueobjects.EdgeID) error

	// Upsert creates or replaces an edge
	Upsert(ctx context.Context, scope valueobjects.ScopeID, edge *entities.ConceptEdge) error
}

// MasteryLookup supplies a user's demonstrated proficiency for a concept, in [0,1]
type MasteryLookup interface {
	MasteryLevel(ctx context.Context, userID string, nodeID valueobjects.ConceptID) (float64, error)
}

// ScopeLocker serializes validate-then-insert sequences per scope.
// Lock blocks until the lock is held or ctx ends; the returned func releases it.
type ScopeLocker interface {
	Lock(ctx context.Context, scope valueobjects.ScopeID) (unlock func(context.Context) error, err error)
}

// EventStore keeps an audit trail of domain events per scope
type EventStore interface {
	// SaveEvents persists domain events
	SaveEvents(ctx context.Context, events []events.DomainEvent) error

	// GetEvents retrieves events for an aggregate, oldest first
	GetEvents(ctx context.Context, aggregateID string) ([]events.DomainEvent, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}
