package aggregates

import (
	"fmt"
	"sort"
	"time"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/domain/events"
)

// ConceptGraph is a point-in-time snapshot of one study-material scope.
// Nodes and edges are held in arenas and addressed by index; adjacency
// lists carry edge indices of active edges only, sorted by edge ID so every
// walk over the snapshot is deterministic.
//
// A snapshot is not safe for concurrent mutation. Read-only use from several
// goroutines is fine as long as nobody calls DeactivateEdge.
type ConceptGraph struct {
	scope valueobjects.ScopeID

	nodes     []*entities.ConceptNode
	nodeIndex map[valueobjects.ConceptID]int

	edges     []*entities.ConceptEdge
	edgeIndex map[valueobjects.EdgeID]int
	out       [][]int
	in        [][]int
	dangling  []valueobjects.EdgeID

	byName     map[string][]int
	parent     []int
	unresolved []valueobjects.ConceptID
	ambiguous  []valueobjects.ConceptID

	events []events.DomainEvent
}

// NewConceptGraph builds a snapshot. Inactive concepts are left out; edges
// that are inactive or reference a concept outside the snapshot are kept
// addressable by ID but never walked. Inputs are copied.
func NewConceptGraph(scope valueobjects.ScopeID, nodes []*entities.ConceptNode, edges []*entities.ConceptEdge) (*ConceptGraph, error) {
	g := &ConceptGraph{
		scope:     scope,
		nodeIndex: make(map[valueobjects.ConceptID]int, len(nodes)),
		edgeIndex: make(map[valueobjects.EdgeID]int, len(edges)),
		byName:    make(map[string][]int, len(nodes)),
	}

	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("nil concept in snapshot for scope %s", scope)
		}
		if !n.Active {
			continue
		}
		if _, dup := g.nodeIndex[n.ID]; dup {
			return nil, fmt.Errorf("duplicate concept %s in snapshot", n.ID)
		}
		cp := *n
		g.nodeIndex[n.ID] = -1
		g.nodes = append(g.nodes, &cp)
	}
	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i].ID < g.nodes[j].ID })
	for i, n := range g.nodes {
		g.nodeIndex[n.ID] = i
	}

	g.out = make([][]int, len(g.nodes))
	g.in = make([][]int, len(g.nodes))

	sorted := make([]*entities.ConceptEdge, 0, len(edges))
	for _, e := range edges {
		if e == nil {
			return nil, fmt.Errorf("nil edge in snapshot for scope %s", scope)
		}
		cp := *e
		sorted = append(sorted, &cp)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, e := range sorted {
		if _, dup := g.edgeIndex[e.ID]; dup {
			return nil, fmt.Errorf("duplicate edge %s in snapshot", e.ID)
		}
		idx := len(g.edges)
		g.edges = append(g.edges, e)
		g.edgeIndex[e.ID] = idx
		if !e.Active {
			continue
		}
		src, okSrc := g.nodeIndex[e.SourceID]
		dst, okDst := g.nodeIndex[e.TargetID]
		if !okSrc || !okDst {
			g.dangling = append(g.dangling, e.ID)
			continue
		}
		g.out[src] = append(g.out[src], idx)
		g.in[dst] = append(g.in[dst], idx)
	}

	g.resolveParents()
	return g, nil
}

// resolveParents links each concept to the single concept whose normalized
// name matches its parent name. Collisions leave the link unresolved.
func (g *ConceptGraph) resolveParents() {
	for i, n := range g.nodes {
		key := valueobjects.NormalizeName(n.Name)
		if key != "" {
			g.byName[key] = append(g.byName[key], i)
		}
	}

	g.parent = make([]int, len(g.nodes))
	for i, n := range g.nodes {
		g.parent[i] = -1
		if !n.HasParent() {
			continue
		}
		candidates := g.byName[valueobjects.NormalizeName(n.ParentName)]
		switch {
		case len(candidates) > 1:
			g.ambiguous = append(g.ambiguous, n.ID)
		case len(candidates) == 1 && candidates[0] != i:
			g.parent[i] = candidates[0]
		default:
			g.unresolved = append(g.unresolved, n.ID)
		}
	}
}

// Scope returns the scope the snapshot was taken from
func (g *ConceptGraph) Scope() valueobjects.ScopeID { return g.scope }

// Len returns the number of concepts in the snapshot
func (g *ConceptGraph) Len() int { return len(g.nodes) }

// Has reports whether id is a concept in the snapshot
func (g *ConceptGraph) Has(id valueobjects.ConceptID) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// Node returns the concept with the given ID
func (g *ConceptGraph) Node(id valueobjects.ConceptID) (*entities.ConceptNode, bool) {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return g.nodes[idx], true
}

// Nodes returns all concepts ordered by ID
func (g *ConceptGraph) Nodes() []*entities.ConceptNode {
	out := make([]*entities.ConceptNode, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// NodeIDs returns all concept IDs in ascending order
func (g *ConceptGraph) NodeIDs() []valueobjects.ConceptID {
	ids := make([]valueobjects.ConceptID, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Edge returns an edge by ID, including inactive and dangling edges
func (g *ConceptGraph) Edge(id valueobjects.EdgeID) (*entities.ConceptEdge, bool) {
	idx, ok := g.edgeIndex[id]
	if !ok {
		return nil, false
	}
	return g.edges[idx], true
}

// ActiveEdges returns every walkable edge ordered by ID
func (g *ConceptGraph) ActiveEdges() []*entities.ConceptEdge {
	var out []*entities.ConceptEdge
	for _, adj := range g.out {
		for _, idx := range adj {
			out = append(out, g.edges[idx])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DanglingEdges lists active edges whose endpoints are not both in the snapshot
func (g *ConceptGraph) DanglingEdges() []valueobjects.EdgeID {
	out := make([]valueobjects.EdgeID, len(g.dangling))
	copy(out, g.dangling)
	return out
}

// Outgoing returns the active edges leaving id, filtered by type, ordered by edge ID.
// For prerequisite edges these are the prerequisites of id.
func (g *ConceptGraph) Outgoing(id valueobjects.ConceptID, filter ...entities.RelationshipType) []*entities.ConceptEdge {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return nil
	}
	return g.collect(g.out[idx], filter)
}

// Incoming returns the active edges entering id, filtered by type, ordered by edge ID.
// For prerequisite edges these come from the dependents of id.
func (g *ConceptGraph) Incoming(id valueobjects.ConceptID, filter ...entities.RelationshipType) []*entities.ConceptEdge {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return nil
	}
	return g.collect(g.in[idx], filter)
}

func (g *ConceptGraph) collect(adj []int, filter []entities.RelationshipType) []*entities.ConceptEdge {
	out := make([]*entities.ConceptEdge, 0, len(adj))
	for _, ei := range adj {
		if e := g.edges[ei]; e.MatchesType(filter...) {
			out = append(out, e)
		}
	}
	return out
}

// Prerequisites returns the targets of id's active prerequisite edges
func (g *ConceptGraph) Prerequisites(id valueobjects.ConceptID) []valueobjects.ConceptID {
	edges := g.Outgoing(id, entities.RelationPrerequisite)
	ids := make([]valueobjects.ConceptID, len(edges))
	for i, e := range edges {
		ids[i] = e.TargetID
	}
	return ids
}

// Dependents returns the sources of active prerequisite edges pointing at id
func (g *ConceptGraph) Dependents(id valueobjects.ConceptID) []valueobjects.ConceptID {
	edges := g.Incoming(id, entities.RelationPrerequisite)
	ids := make([]valueobjects.ConceptID, len(edges))
	for i, e := range edges {
		ids[i] = e.SourceID
	}
	return ids
}

// Parent returns the resolved parent concept of id
func (g *ConceptGraph) Parent(id valueobjects.ConceptID) (*entities.ConceptNode, bool) {
	idx, ok := g.nodeIndex[id]
	if !ok || g.parent[idx] < 0 {
		return nil, false
	}
	return g.nodes[g.parent[idx]], true
}

// Children returns the concepts whose parent resolved to id, ordered by ID
func (g *ConceptGraph) Children(id valueobjects.ConceptID) []valueobjects.ConceptID {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return nil
	}
	var out []valueobjects.ConceptID
	for i, p := range g.parent {
		if p == idx {
			out = append(out, g.nodes[i].ID)
		}
	}
	return out
}

// UnresolvedParents lists concepts whose parent name matched no concept
func (g *ConceptGraph) UnresolvedParents() []valueobjects.ConceptID {
	return append([]valueobjects.ConceptID(nil), g.unresolved...)
}

// AmbiguousParents lists concepts whose parent name matched several concepts
func (g *ConceptGraph) AmbiguousParents() []valueobjects.ConceptID {
	return append([]valueobjects.ConceptID(nil), g.ambiguous...)
}

// DeactivateEdge soft-deletes an edge inside the snapshot so later passes
// see the change, and records an EdgeDeactivated event.
func (g *ConceptGraph) DeactivateEdge(id valueobjects.EdgeID, reason string, cycle []valueobjects.ConceptID) (*entities.ConceptEdge, error) {
	idx, ok := g.edgeIndex[id]
	if !ok {
		return nil, entities.ErrEdgeNotFound
	}
	e := g.edges[idx]
	now := time.Now()
	if !e.Deactivate(now) {
		return e, nil
	}
	if src, ok := g.nodeIndex[e.SourceID]; ok {
		g.out[src] = removeIndex(g.out[src], idx)
	}
	if dst, ok := g.nodeIndex[e.TargetID]; ok {
		g.in[dst] = removeIndex(g.in[dst], idx)
	}

	g.addEvent(events.NewEdgeDeactivated(g.scope, e.ID, e.SourceID, e.TargetID, e.Weight, reason, cycle, now))
	return e, nil
}

func removeIndex(adj []int, idx int) []int {
	for i, v := range adj {
		if v == idx {
			return append(adj[:i:i], adj[i+1:]...)
		}
	}
	return adj
}

// GetUncommittedEvents returns all uncommitted domain events
func (g *ConceptGraph) GetUncommittedEvents() []events.DomainEvent {
	out := make([]events.DomainEvent, len(g.events))
	copy(out, g.events)
	return out
}

// MarkEventsAsCommitted clears all uncommitted events
func (g *ConceptGraph) MarkEventsAsCommitted() {
	g.events = nil
}

func (g *ConceptGraph) addEvent(event events.DomainEvent) {
	g.events = append(g.events, event)
}
