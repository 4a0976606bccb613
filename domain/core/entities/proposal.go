package entities

import "conceptgraph/domain/core/valueobjects"

// RelationshipProposal is a candidate edge awaiting validation
type RelationshipProposal struct {
	SourceID  valueobjects.ConceptID `json:"source_id" validate:"required"`
	TargetID  valueobjects.ConceptID `json:"target_id" validate:"required"`
	Type      RelationshipType       `json:"type" validate:"required,oneof=prerequisite part_of related_to leads_to example_of"`
	Weight    float64                `json:"weight" validate:"gte=0,lte=1"`
	Reasoning string                 `json:"reasoning,omitempty" validate:"max=2000"`
}

// IsPrerequisite reports whether the proposal is subject to the acyclicity check
func (p RelationshipProposal) IsPrerequisite() bool {
	return p.Type == RelationPrerequisite
}
