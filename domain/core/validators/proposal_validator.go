package validators

import (
	"conceptgraph/domain/core/entities"
	"conceptgraph/pkg/errors"
	"conceptgraph/pkg/utils"
)

// ProposalValidator checks the shape of a relationship proposal before any
// graph lookups happen.
type ProposalValidator struct{}

// NewProposalValidator creates a proposal validator
func NewProposalValidator() *ProposalValidator {
	return &ProposalValidator{}
}

// Validate runs the struct tags and the self-reference rule. A self
// reference is reported as ErrSelfReference rather than a field error.
func (v *ProposalValidator) Validate(p entities.RelationshipProposal) error {
	if !p.SourceID.IsZero() && p.SourceID == p.TargetID {
		return errors.ErrSelfReference.Clone().WithDetail("concept_id", p.SourceID.String())
	}
	return utils.ValidateStruct(p)
}
