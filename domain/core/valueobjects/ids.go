package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// ConceptID is an opaque concept identifier supplied by the study-material store.
// Value objects are immutable and have no identity beyond their value.
type ConceptID string

// NewConceptIDFromString creates a ConceptID from an existing string
func NewConceptIDFromString(id string) (ConceptID, error) {
	if id == "" {
		return "", errors.New("concept ID cannot be empty")
	}
	return ConceptID(id), nil
}

// String returns the string representation of the ConceptID
func (id ConceptID) String() string {
	return string(id)
}

// IsZero checks if the ConceptID is the zero value
func (id ConceptID) IsZero() bool {
	return id == ""
}

// EdgeID identifies a relationship between two concepts
type EdgeID string

// NewEdgeID creates a new random EdgeID
func NewEdgeID() EdgeID {
	return EdgeID(uuid.New().String())
}

// String returns the string representation of the EdgeID
func (id EdgeID) String() string {
	return string(id)
}

// IsZero checks if the EdgeID is the zero value
func (id EdgeID) IsZero() bool {
	return id == ""
}

// ScopeID identifies a study-material scope. The acyclicity invariant holds per scope.
type ScopeID string

// String returns the string representation of the ScopeID
func (id ScopeID) String() string {
	return string(id)
}

// ConceptIDStrings converts a slice of ids for logging
func ConceptIDStrings(ids []ConceptID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
