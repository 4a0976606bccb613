package entities

import (
	"fmt"

	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/utils"
)

// Level is the categorical position of a concept in the study-material hierarchy
type Level string

const (
	LevelSubject Level = "subject"
	LevelChapter Level = "chapter"
	LevelConcept Level = "concept"
	LevelDetail  Level = "detail"
)

// Difficulty bounds
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// ConceptNode is a learning concept. The engine treats concepts as read-mostly
// value objects keyed by ID; two concepts are the same concept iff their IDs match.
type ConceptNode struct {
	ID         valueobjects.ConceptID `json:"id" validate:"required"`
	Scope      valueobjects.ScopeID   `json:"scope" validate:"required"`
	Name       string                 `json:"name" validate:"required"`
	Difficulty int                    `json:"difficulty" validate:"min=1,max=5"`
	Importance float64                `json:"importance"`
	Level      Level                  `json:"level" validate:"omitempty,oneof=subject chapter concept detail"`
	ParentName string                 `json:"parent_name,omitempty"`
	Active     bool                   `json:"active"`
}

// NewConceptNode creates an active concept with validation
func NewConceptNode(id valueobjects.ConceptID, scope valueobjects.ScopeID, name string, difficulty int) (*ConceptNode, error) {
	node := &ConceptNode{
		ID:         id,
		Scope:      scope,
		Name:       name,
		Difficulty: difficulty,
		Level:      LevelConcept,
		Active:     true,
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return node, nil
}

// Validate checks the struct tags of the concept
func (n *ConceptNode) Validate() error {
	if n == nil {
		return fmt.Errorf("concept cannot be nil")
	}
	return utils.ValidateStruct(n)
}

// Equals reports identity equality
func (n *ConceptNode) Equals(other *ConceptNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.ID == other.ID
}

// HasParent reports whether the concept declares a soft parent link
func (n *ConceptNode) HasParent() bool {
	return valueobjects.NormalizeName(n.ParentName) != ""
}
