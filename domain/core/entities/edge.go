package entities

import (
	"fmt"
	"time"

	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/utils"
)

// RelationshipType defines the type of relationship between two concepts
type RelationshipType string

const (
	// RelationPrerequisite: the source concept depends on the target concept.
	RelationPrerequisite RelationshipType = "prerequisite"
	RelationPartOf       RelationshipType = "part_of"
	RelationRelatedTo    RelationshipType = "related_to"
	RelationLeadsTo      RelationshipType = "leads_to"
	RelationExampleOf    RelationshipType = "example_of"
)

// AllRelationshipTypes lists every known relationship type
var AllRelationshipTypes = []RelationshipType{
	RelationPrerequisite,
	RelationPartOf,
	RelationRelatedTo,
	RelationLeadsTo,
	RelationExampleOf,
}

// IsValid reports whether t is a known relationship type
func (t RelationshipType) IsValid() bool {
	for _, known := range AllRelationshipTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Strength is the categorical classification of an edge weight
type Strength string

const (
	StrengthMandatory   Strength = "mandatory"
	StrengthRecommended Strength = "recommended"
	StrengthOptional    Strength = "optional"
	// StrengthUnclassified marks an edge persisted without a strength value.
	StrengthUnclassified Strength = ""
)

// StrengthThresholds are the weight cut-offs used by ClassifyStrength
type StrengthThresholds struct {
	Mandatory   float64
	Recommended float64
}

// DefaultStrengthThresholds returns the standard cut-offs
func DefaultStrengthThresholds() StrengthThresholds {
	return StrengthThresholds{Mandatory: 0.8, Recommended: 0.5}
}

// ClassifyStrength derives the strength class from a weight
func ClassifyStrength(weight float64, th StrengthThresholds) Strength {
	switch {
	case weight >= th.Mandatory:
		return StrengthMandatory
	case weight >= th.Recommended:
		return StrengthRecommended
	default:
		return StrengthOptional
	}
}

// ConceptEdge is a directed, typed relationship. For prerequisite edges the
// source depends on the target: target must be mastered before source.
type ConceptEdge struct {
	ID        valueobjects.EdgeID    `json:"id" validate:"required"`
	SourceID  valueobjects.ConceptID `json:"source_id" validate:"required"`
	TargetID  valueobjects.ConceptID `json:"target_id" validate:"required"`
	Type      RelationshipType       `json:"type" validate:"required,oneof=prerequisite part_of related_to leads_to example_of"`
	Weight    float64                `json:"weight" validate:"gte=0,lte=1"`
	Strength  Strength               `json:"strength,omitempty" validate:"omitempty,oneof=mandatory recommended optional"`
	Active    bool                   `json:"active"`
	Reasoning string                 `json:"reasoning,omitempty"`
	Depth     *int                   `json:"depth,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewConceptEdge creates an active edge with a fresh ID and a strength
// classified from its weight.
func NewConceptEdge(
	sourceID, targetID valueobjects.ConceptID,
	relType RelationshipType,
	weight float64,
	th StrengthThresholds,
) (*ConceptEdge, error) {
	now := time.Now()
	edge := &ConceptEdge{
		ID:        valueobjects.NewEdgeID(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relType,
		Weight:    weight,
		Strength:  ClassifyStrength(weight, th),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := edge.Validate(); err != nil {
		return nil, err
	}
	return edge, nil
}

// Validate checks the struct tags of the edge
func (e *ConceptEdge) Validate() error {
	if e == nil {
		return fmt.Errorf("edge cannot be nil")
	}
	return utils.ValidateStruct(e)
}

// IsPrerequisite reports whether this is an active prerequisite edge
func (e *ConceptEdge) IsPrerequisite() bool {
	return e.Active && e.Type == RelationPrerequisite
}

// IsClassified reports whether a strength value has been recorded
func (e *ConceptEdge) IsClassified() bool {
	return e.Strength != StrengthUnclassified
}

// Deactivate soft-deletes the edge. Returns false when it was already inactive.
func (e *ConceptEdge) Deactivate(at time.Time) bool {
	if !e.Active {
		return false
	}
	e.Active = false
	e.UpdatedAt = at
	return true
}

// String renders the edge for logs and error messages
func (e *ConceptEdge) String() string {
	return fmt.Sprintf("%s(%s -[%s %.2f]-> %s)", e.ID, e.SourceID, e.Type, e.Weight, e.TargetID)
}

// MatchesType reports whether the edge type is in filter; an empty filter matches all types.
func (e *ConceptEdge) MatchesType(filter ...RelationshipType) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if e.Type == t {
			return true
		}
	}
	return false
}
