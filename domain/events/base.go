package events

import (
	"time"

	"conceptgraph/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Event type names
const (
	TypeRelationshipAccepted = "relationship.accepted"
	TypeRelationshipRejected = "relationship.rejected"
	TypeEdgeDeactivated      = "edge.deactivated"
	TypeCyclesRepaired       = "graph.cycles_repaired"
)

// Relationship Events

// RelationshipAccepted is raised when a proposed relationship passes validation and is stored
type RelationshipAccepted struct {
	BaseEvent
	EdgeID   valueobjects.EdgeID    `json:"edge_id"`
	SourceID valueobjects.ConceptID `json:"source_id"`
	TargetID valueobjects.ConceptID `json:"target_id"`
	EdgeType string                 `json:"edge_type"`
	Weight   float64                `json:"weight"`
	Warnings []string               `json:"warnings,omitempty"`
}

// NewRelationshipAccepted creates a RelationshipAccepted event
func NewRelationshipAccepted(scope valueobjects.ScopeID, edgeID valueobjects.EdgeID, sourceID, targetID valueobjects.ConceptID, edgeType string, weight float64, warnings []string, timestamp time.Time) RelationshipAccepted {
	return RelationshipAccepted{
		BaseEvent: BaseEvent{
			AggregateID: scope.String(),
			EventType:   TypeRelationshipAccepted,
			Timestamp:   timestamp,
			Version:     1,
		},
		EdgeID:   edgeID,
		SourceID: sourceID,
		TargetID: targetID,
		EdgeType: edgeType,
		Weight:   weight,
		Warnings: warnings,
	}
}

// RelationshipRejected is raised when a proposal fails validation
type RelationshipRejected struct {
	BaseEvent
	SourceID  valueobjects.ConceptID   `json:"source_id"`
	TargetID  valueobjects.ConceptID   `json:"target_id"`
	EdgeType  string                   `json:"edge_type"`
	Reason    string                   `json:"reason"`
	CyclePath []valueobjects.ConceptID `json:"cycle_path,omitempty"`
}

// NewRelationshipRejected creates a RelationshipRejected event
func NewRelationshipRejected(scope valueobjects.ScopeID, sourceID, targetID valueobjects.ConceptID, edgeType, reason string, cyclePath []valueobjects.ConceptID, timestamp time.Time) RelationshipRejected {
	return RelationshipRejected{
		BaseEvent: BaseEvent{
			AggregateID: scope.String(),
			EventType:   TypeRelationshipRejected,
			Timestamp:   timestamp,
			Version:     1,
		},
		SourceID:  sourceID,
		TargetID:  targetID,
		EdgeType:  edgeType,
		Reason:    reason,
		CyclePath: cyclePath,
	}
}

// EdgeDeactivated is raised when an edge is soft-deleted, e.g. to break a cycle
type EdgeDeactivated struct {
	BaseEvent
	EdgeID   valueobjects.EdgeID      `json:"edge_id"`
	SourceID valueobjects.ConceptID   `json:"source_id"`
	TargetID valueobjects.ConceptID   `json:"target_id"`
	Weight   float64                  `json:"weight"`
	Reason   string                   `json:"reason"`
	Cycle    []valueobjects.ConceptID `json:"cycle,omitempty"`
}

// NewEdgeDeactivated creates an EdgeDeactivated event
func NewEdgeDeactivated(scope valueobjects.ScopeID, edgeID valueobjects.EdgeID, sourceID, targetID valueobjects.ConceptID, weight float64, reason string, cycle []valueobjects.ConceptID, timestamp time.Time) EdgeDeactivated {
	return EdgeDeactivated{
		BaseEvent: BaseEvent{
			AggregateID: scope.String(),
			EventType:   TypeEdgeDeactivated,
			Timestamp:   timestamp,
			Version:     1,
		},
		EdgeID:   edgeID,
		SourceID: sourceID,
		TargetID: targetID,
		Weight:   weight,
		Reason:   reason,
		Cycle:    cycle,
	}
}

// Graph Events

// CyclesRepaired summarises a repair pass over a scope
type CyclesRepaired struct {
	BaseEvent
	CyclesFound  int     `json:"cycles_found"`
	EdgesRemoved int     `json:"edges_removed"`
	ScoreBefore  float64 `json:"score_before"`
	ScoreAfter   float64 `json:"score_after"`
}

// NewCyclesRepaired creates a CyclesRepaired event
func NewCyclesRepaired(scope valueobjects.ScopeID, cyclesFound, edgesRemoved int, before, after float64, timestamp time.Time) CyclesRepaired {
	return CyclesRepaired{
		BaseEvent: BaseEvent{
			AggregateID: scope.String(),
			EventType:   TypeCyclesRepaired,
			Timestamp:   timestamp,
			Version:     1,
		},
		CyclesFound:  cyclesFound,
		EdgesRemoved: edgesRemoved,
		ScoreBefore:  before,
		ScoreAfter:   after,
	}
}

// StoredEvent is an event read back from an audit store. The typed payload is
// kept as a generic map since consumers only display or replay it.
type StoredEvent struct {
	BaseEvent
	EventID string                 `json:"event_id"`
	Data    map[string]interface{} `json:"data"`
}
