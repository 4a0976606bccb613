package services

import (
	"container/heap"
	"sort"

	"go.uber.org/zap"

	"conceptgraph/domain/core/aggregates"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
)

// TopologicalPlanner produces deterministic learning orders: a concept always
// comes after its prerequisites, and among ready concepts the easier one goes
// first (difficulty asc, importance desc, ID asc).
type TopologicalPlanner struct {
	logger *zap.Logger
}

// NewTopologicalPlanner creates a new planner
func NewTopologicalPlanner(logger *zap.Logger) *TopologicalPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopologicalPlanner{logger: logger}
}

// plan is the Kahn state restricted to one requested set
type plan struct {
	nodes     []*entities.ConceptNode
	index     map[valueobjects.ConceptID]int
	inDegree  []int
	dependent [][]int
}

func (p *TopologicalPlanner) newPlan(g *aggregates.ConceptGraph, ids []valueobjects.ConceptID) (*plan, error) {
	pl := &plan{index: make(map[valueobjects.ConceptID]int, len(ids))}
	for _, id := range ids {
		if _, dup := pl.index[id]; dup {
			continue
		}
		n, ok := g.Node(id)
		if !ok {
			return nil, entities.NodeNotFound(id)
		}
		pl.index[id] = len(pl.nodes)
		pl.nodes = append(pl.nodes, n)
	}

	pl.inDegree = make([]int, len(pl.nodes))
	pl.dependent = make([][]int, len(pl.nodes))
	for i, n := range pl.nodes {
		// n depends on each target: target must be placed first.
		for _, e := range g.Outgoing(n.ID, entities.RelationPrerequisite) {
			t, internal := pl.index[e.TargetID]
			if !internal {
				continue
			}
			pl.inDegree[i]++
			pl.dependent[t] = append(pl.dependent[t], i)
		}
	}
	return pl, nil
}

// Order runs Kahn's algorithm over prerequisite edges internal to ids.
// Duplicate IDs are collapsed. A residual cycle yields a
// *entities.CycleDetectedError listing the concepts that could not be placed;
// the prefix placed before the cycle blocked is returned with it.
func (p *TopologicalPlanner) Order(g *aggregates.ConceptGraph, ids []valueobjects.ConceptID) ([]valueobjects.ConceptID, error) {
	pl, err := p.newPlan(g, ids)
	if err != nil {
		return nil, err
	}

	ready := &readyQueue{nodes: pl.nodes}
	for i, d := range pl.inDegree {
		if d == 0 {
			ready.items = append(ready.items, i)
		}
	}
	heap.Init(ready)

	order := make([]valueobjects.ConceptID, 0, len(pl.nodes))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, pl.nodes[i].ID)
		for _, dep := range pl.dependent[i] {
			pl.inDegree[dep]--
			if pl.inDegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	if len(order) < len(pl.nodes) {
		remaining := pl.blocked()
		p.logger.Debug("Learning order blocked by cycle",
			zap.Int("placed", len(order)),
			zap.Strings("remaining", valueobjects.ConceptIDStrings(remaining)))
		return order, &entities.CycleDetectedError{Remaining: remaining}
	}
	return order, nil
}

// blocked returns the unplaced concepts in tie-break order
func (pl *plan) blocked() []valueobjects.ConceptID {
	var idx []int
	for i, d := range pl.inDegree {
		if d > 0 {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return lessByTieBreak(pl.nodes[idx[a]], pl.nodes[idx[b]]) })
	out := make([]valueobjects.ConceptID, len(idx))
	for k, i := range idx {
		out[k] = pl.nodes[i].ID
	}
	return out
}

// OrderBestEffort is the opt-in fallback for callers that must always get a
// full sequence: on a cycle the blocked concepts are appended in tie-break
// order and reported as a warning. Other errors are returned unchanged.
func (p *TopologicalPlanner) OrderBestEffort(g *aggregates.ConceptGraph, ids []valueobjects.ConceptID) ([]valueobjects.ConceptID, []entities.Warning, error) {
	order, err := p.Order(g, ids)
	if err == nil {
		return order, nil, nil
	}
	cycleErr, ok := err.(*entities.CycleDetectedError)
	if !ok {
		return nil, nil, err
	}

	order = append(order, cycleErr.Remaining...)
	warnings := make([]entities.Warning, 0, len(cycleErr.Remaining))
	for _, id := range cycleErr.Remaining {
		warnings = append(warnings, entities.Warning{
			Code:    entities.WarningCycleRemaining,
			Message: "concept appended after a prerequisite cycle blocked ordering",
			NodeID:  id,
		})
	}
	return order, warnings, nil
}

// Layers groups the same Kahn pass into learning stages: stage k holds every
// concept whose prerequisites all sit in stages before k. Each stage is in
// tie-break order.
func (p *TopologicalPlanner) Layers(g *aggregates.ConceptGraph, ids []valueobjects.ConceptID) ([][]valueobjects.ConceptID, error) {
	pl, err := p.newPlan(g, ids)
	if err != nil {
		return nil, err
	}

	var current []int
	for i, d := range pl.inDegree {
		if d == 0 {
			current = append(current, i)
		}
	}

	var layers [][]valueobjects.ConceptID
	placed := 0
	for len(current) > 0 {
		sort.Slice(current, func(a, b int) bool { return lessByTieBreak(pl.nodes[current[a]], pl.nodes[current[b]]) })
		layer := make([]valueobjects.ConceptID, len(current))
		var next []int
		for k, i := range current {
			layer[k] = pl.nodes[i].ID
			for _, dep := range pl.dependent[i] {
				pl.inDegree[dep]--
				if pl.inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		layers = append(layers, layer)
		placed += len(current)
		current = next
	}

	if placed < len(pl.nodes) {
		return layers, &entities.CycleDetectedError{Remaining: pl.blocked()}
	}
	return layers, nil
}

func lessByTieBreak(a, b *entities.ConceptNode) bool {
	if a.Difficulty != b.Difficulty {
		return a.Difficulty < b.Difficulty
	}
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	return a.ID < b.ID
}

// readyQueue is a min-heap of plan indices ordered by lessByTieBreak
type readyQueue struct {
	nodes []*entities.ConceptNode
	items []int
}

func (q *readyQueue) Len() int { return len(q.items) }
func (q *readyQueue) Less(i, j int) bool {
	return lessByTieBreak(q.nodes[q.items[i]], q.nodes[q.items[j]])
}
func (q *readyQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *readyQueue) Push(x any)    { q.items = append(q.items, x.(int)) }
func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}
