package entities

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conceptgraph/domain/core/valueobjects"
)

func TestClassifyStrength(t *testing.T) {
	th := DefaultStrengthThresholds()
	tests := []struct {
		weight float64
		want   Strength
	}{
		{1.0, StrengthMandatory},
		{0.8, StrengthMandatory},
		{0.79, StrengthRecommended},
		{0.5, StrengthRecommended},
		{0.49, StrengthOptional},
		{0, StrengthOptional},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStrength(tt.weight, th), "weight %v", tt.weight)
	}
}

func TestNewConceptEdge(t *testing.T) {
	edge, err := NewConceptEdge("a", "b", RelationPrerequisite, 0.85, DefaultStrengthThresholds())
	require.NoError(t, err)
	assert.False(t, edge.ID.IsZero())
	assert.Equal(t, StrengthMandatory, edge.Strength)
	assert.True(t, edge.IsPrerequisite())
	assert.True(t, edge.IsClassified())

	_, err = NewConceptEdge("a", "b", "unknown", 0.5, DefaultStrengthThresholds())
	assert.Error(t, err)

	_, err = NewConceptEdge("a", "b", RelationRelatedTo, 1.2, DefaultStrengthThresholds())
	assert.Error(t, err)
}

func TestConceptEdge_Deactivate(t *testing.T) {
	edge := &ConceptEdge{ID: "e", Active: true}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, edge.Deactivate(at))
	assert.False(t, edge.Active)
	assert.Equal(t, at, edge.UpdatedAt)
	assert.False(t, edge.Deactivate(at.Add(time.Hour)))
	assert.Equal(t, at, edge.UpdatedAt)
}

func TestConceptEdge_MatchesType(t *testing.T) {
	edge := &ConceptEdge{Type: RelationPartOf}
	assert.True(t, edge.MatchesType())
	assert.True(t, edge.MatchesType(RelationPrerequisite, RelationPartOf))
	assert.False(t, edge.MatchesType(RelationPrerequisite))
	assert.True(t, RelationExampleOf.IsValid())
	assert.False(t, RelationshipType("depends").IsValid())
}

func TestCycleErrors(t *testing.T) {
	err := &CycleError{Source: "c", Target: "a", Path: []valueobjects.ConceptID{"a", "b", "c"}}
	assert.True(t, errors.Is(err, ErrWouldCreateCycle))
	assert.False(t, errors.Is(err, ErrCycleDetected))
	assert.Contains(t, err.Error(), "a -> b -> c")

	detected := &CycleDetectedError{Remaining: []valueobjects.ConceptID{"x", "y"}}
	assert.True(t, errors.Is(detected, ErrCycleDetected))
	assert.Contains(t, detected.Error(), "x, y")

	notFound := NodeNotFound("q")
	assert.True(t, errors.Is(notFound, ErrNodeNotFound))
	assert.False(t, errors.Is(notFound, ErrEdgeNotFound))
}

func TestNewConceptNode(t *testing.T) {
	node, err := NewConceptNode("id", "scope", "Fractions", 2)
	require.NoError(t, err)
	assert.True(t, node.Active)
	assert.Equal(t, LevelConcept, node.Level)
	assert.False(t, node.HasParent())

	_, err = NewConceptNode("id", "scope", "Fractions", 9)
	assert.Error(t, err)
	_, err = NewConceptNode("id", "scope", "", 2)
	assert.Error(t, err)

	assert.True(t, node.Equals(&ConceptNode{ID: "id"}))
	assert.False(t, node.Equals(nil))
}
