// Package graphtest builds concept graph snapshots for tests.
package graphtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"conceptgraph/domain/core/aggregates"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
)

// Scope is the scope every fixture lives in
const Scope valueobjects.ScopeID = "test-scope"

// Builder accumulates concepts and edges. Edge IDs are assigned in insertion
// order (e0001, e0002, ...) unless set explicitly, so tie-breaks on edge ID are
// predictable.
type Builder struct {
	nodes []*entities.ConceptNode
	edges []*entities.ConceptEdge
}

// New returns an empty builder
func New() *Builder {
	return &Builder{}
}

// Node adds an active concept with the given difficulty
func (b *Builder) Node(id string, difficulty int) *Builder {
	return b.NodeWith(&entities.ConceptNode{ID: valueobjects.ConceptID(id), Name: id, Difficulty: difficulty})
}

// NodeWith adds a concept, filling in scope, level and active flag
func (b *Builder) NodeWith(n *entities.ConceptNode) *Builder {
	n.Scope = Scope
	n.Active = true
	if n.Level == "" {
		n.Level = entities.LevelConcept
	}
	if n.Name == "" {
		n.Name = n.ID.String()
	}
	b.nodes = append(b.nodes, n)
	return b
}

// Nodes adds several concepts of difficulty 1
func (b *Builder) Nodes(ids ...string) *Builder {
	for _, id := range ids {
		b.Node(id, 1)
	}
	return b
}

// Prereq adds "source depends on target" with the given weight
func (b *Builder) Prereq(source, target string, weight float64) *Builder {
	return b.Edge(source, target, entities.RelationPrerequisite, weight)
}

// Edge adds an active, classified edge of any type
func (b *Builder) Edge(source, target string, relType entities.RelationshipType, weight float64) *Builder {
	id := valueobjects.EdgeID(fmt.Sprintf("e%04d", len(b.edges)+1))
	return b.EdgeWith(&entities.ConceptEdge{
		ID:       id,
		SourceID: valueobjects.ConceptID(source),
		TargetID: valueobjects.ConceptID(target),
		Type:     relType,
		Weight:   weight,
		Strength: entities.ClassifyStrength(weight, entities.DefaultStrengthThresholds()),
	})
}

// EdgeWith adds an edge as given, marking it active
func (b *Builder) EdgeWith(e *entities.ConceptEdge) *Builder {
	e.Active = true
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
		e.UpdatedAt = now
	}
	b.edges = append(b.edges, e)
	return b
}

// Concepts returns the accumulated concepts
func (b *Builder) Concepts() []*entities.ConceptNode { return b.nodes }

// Relationships returns the accumulated edges
func (b *Builder) Relationships() []*entities.ConceptEdge { return b.edges }

// Build creates the snapshot, failing the test on error
func (b *Builder) Build(t testing.TB) *aggregates.ConceptGraph {
	t.Helper()
	g, err := aggregates.NewConceptGraph(Scope, b.nodes, b.edges)
	require.NoError(t, err)
	return g
}

// IDs converts strings to concept IDs
func IDs(ids ...string) []valueobjects.ConceptID {
	out := make([]valueobjects.ConceptID, len(ids))
	for i, id := range ids {
		out[i] = valueobjects.ConceptID(id)
	}
	return out
}
