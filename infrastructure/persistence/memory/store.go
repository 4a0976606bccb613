// Package memory provides in-process repositories for tests and local tools.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/errors"
)

// Store keeps concepts and edges in maps guarded by a RWMutex. It implements
// both NodeRepository and EdgeRepository.
type Store struct {
	mu    sync.RWMutex
	nodes map[valueobjects.ConceptID]*entities.ConceptNode
	edges map[valueobjects.EdgeID]*entities.ConceptEdge
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		nodes: make(map[valueobjects.ConceptID]*entities.ConceptNode),
		edges: make(map[valueobjects.EdgeID]*entities.ConceptEdge),
	}
}

// Get returns a copy of the concept, or (nil, nil) when absent
func (s *Store) Get(_ context.Context, id valueobjects.ConceptID) (*entities.ConceptNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

// ListActive returns the active concepts of a scope ordered by ID
func (s *Store) ListActive(_ context.Context, scope valueobjects.ScopeID) ([]*entities.ConceptNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.ConceptNode
	for _, n := range s.nodes {
		if n.Scope == scope && n.Active {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save stores a copy of the concept
func (s *Store) Save(_ context.Context, node *entities.ConceptNode) error {
	if err := node.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *node
	s.nodes[node.ID] = &cp
	return nil
}

// Outgoing returns active edges leaving nodeID ordered by edge ID
func (s *Store) Outgoing(_ context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error) {
	return s.selectEdges(func(e *entities.ConceptEdge) bool {
		return e.SourceID == nodeID && e.MatchesType(filter...)
	}), nil
}

// Incoming returns active edges entering nodeID ordered by edge ID
func (s *Store) Incoming(_ context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error) {
	return s.selectEdges(func(e *entities.ConceptEdge) bool {
		return e.TargetID == nodeID && e.MatchesType(filter...)
	}), nil
}

func (s *Store) selectEdges(match func(*entities.ConceptEdge) bool) []*entities.ConceptEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.ConceptEdge
	for _, e := range s.edges {
		if e.Active && match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deactivate soft-deletes an edge
func (s *Store) Deactivate(_ context.Context, edgeID valueobjects.EdgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.edges[edgeID]
	if !ok {
		return errors.ErrEdgeNotFound.Clone().WithDetail("edge_id", edgeID.String())
	}
	e.Deactivate(time.Now())
	return nil
}

// Upsert stores a copy of the edge. Edges belong to the scope of their
// source concept, so the scope is not kept.
func (s *Store) Upsert(_ context.Context, _ valueobjects.ScopeID, edge *entities.ConceptEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *edge
	s.edges[edge.ID] = &cp
	return nil
}

// Edge returns a copy of an edge regardless of its active flag
func (s *Store) Edge(id valueobjects.EdgeID) (*entities.ConceptEdge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}
