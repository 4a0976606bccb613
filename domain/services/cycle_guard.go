package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/validators"
	"conceptgraph/domain/core/valueobjects"
)

// RepairReason is recorded on every edge removed by FixCycles
const RepairReason = "lowest-weight prerequisite edge in cycle"

// EdgeDeactivator soft-deletes an edge in the backing store
type EdgeDeactivator interface {
	Deactivate(ctx context.Context, edgeID valueobjects.EdgeID) error
}

// RemovedEdge records one edge deactivated by a repair pass
type RemovedEdge struct {
	EdgeID   valueobjects.EdgeID      `json:"edge_id"`
	SourceID valueobjects.ConceptID   `json:"source_id"`
	TargetID valueobjects.ConceptID   `json:"target_id"`
	Weight   float64                  `json:"weight"`
	Reason   string                   `json:"reason"`
	Cycle    []valueobjects.ConceptID `json:"cycle"`
}

// ValidationReport is the outcome of an accepted proposal
type ValidationReport struct {
	Proposal       entities.RelationshipProposal `json:"proposal"`
	ProjectedDepth int                           `json:"projected_depth"`
	Warnings       []entities.Warning            `json:"warnings,omitempty"`
}

// CycleGuard keeps the prerequisite subgraph acyclic and exposes cycle and
// depth diagnostics. Edge direction: source depends on target.
type CycleGuard struct {
	config    *config.DomainConfig
	validator *validators.ProposalValidator
	logger    *zap.Logger
}

// NewCycleGuard creates a new cycle guard
func NewCycleGuard(cfg *config.DomainConfig, logger *zap.Logger) *CycleGuard {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleGuard{
		config:    cfg,
		validator: validators.NewProposalValidator(),
		logger:    logger,
	}
}

// ValidateRelationship checks that adding the prerequisite source -> target
// keeps the graph acyclic. It fails with ErrSelfReference, ErrNodeNotFound or
// a *CycleError whose path runs target -> ... -> source.
func (s *CycleGuard) ValidateRelationship(g *aggregates.ConceptGraph, source, target valueobjects.ConceptID) error {
	if source == target {
		return entities.ErrSelfReference.Clone().WithDetail("concept_id", source.String())
	}
	if !g.Has(source) {
		return entities.NodeNotFound(source)
	}
	if !g.Has(target) {
		return entities.NodeNotFound(target)
	}

	if path := s.findPath(g, target, source); path != nil {
		return &entities.CycleError{Source: source, Target: target, Path: path}
	}
	return nil
}

// findPath runs a BFS along outgoing prerequisite edges and returns the first
// path from -> ... -> to, or nil when to is unreachable.
func (s *CycleGuard) findPath(g *aggregates.ConceptGraph, from, to valueobjects.ConceptID) []valueobjects.ConceptID {
	parent := map[valueobjects.ConceptID]valueobjects.ConceptID{from: from}
	queue := []valueobjects.ConceptID{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == to {
			var path []valueobjects.ConceptID
			for n := to; ; n = parent[n] {
				path = append(path, n)
				if n == from {
					break
				}
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		for _, next := range g.Prerequisites(current) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			queue = append(queue, next)
		}
	}
	return nil
}

// ValidateProposal runs the full edge-insert check: shape, existence and,
// for prerequisites, reachability. Depth and difficulty findings come back
// as warnings and never block acceptance.
func (s *CycleGuard) ValidateProposal(g *aggregates.ConceptGraph, p entities.RelationshipProposal) (*ValidationReport, error) {
	if err := s.validator.Validate(p); err != nil {
		return nil, err
	}

	if p.IsPrerequisite() {
		if err := s.ValidateRelationship(g, p.SourceID, p.TargetID); err != nil {
			return nil, err
		}
	} else {
		if !g.Has(p.SourceID) {
			return nil, entities.NodeNotFound(p.SourceID)
		}
		if !g.Has(p.TargetID) {
			return nil, entities.NodeNotFound(p.TargetID)
		}
	}

	report := &ValidationReport{Proposal: p}
	if !p.IsPrerequisite() {
		return report, nil
	}

	depths := newDepthCalculator(g)
	report.ProjectedDepth = max(depths.depth(p.SourceID), depths.depth(p.TargetID)+1)
	if report.ProjectedDepth > s.config.MaxDepthThreshold {
		report.Warnings = append(report.Warnings, entities.Warning{
			Code:    entities.WarningDepthLimitExceeded,
			Message: fmt.Sprintf("prerequisite chain below %s would reach depth %d (limit %d)", p.SourceID, report.ProjectedDepth, s.config.MaxDepthThreshold),
			NodeID:  p.SourceID,
		})
	}

	source, _ := g.Node(p.SourceID)
	target, _ := g.Node(p.TargetID)
	if target.Difficulty > source.Difficulty {
		report.Warnings = append(report.Warnings, entities.Warning{
			Code:    entities.WarningDifficultyInversion,
			Message: fmt.Sprintf("prerequisite %s (difficulty %d) is harder than %s (difficulty %d)", target.ID, target.Difficulty, source.ID, source.Difficulty),
			NodeID:  p.TargetID,
		})
	}
	return report, nil
}

type dfsFrame struct {
	id   valueobjects.ConceptID
	next []valueobjects.ConceptID
	pos  int
}

// DetectAllCycles enumerates every elementary cycle. Each walk starts at a
// concept s and only descends into concepts with a larger ID, tracking the
// current path alone, so cycles sharing concepts are all found and each is
// reported once, starting at its smallest ID. Cycles are listed in edge
// order (every element depends on the next) and sorted by length, then ID.
func (s *CycleGuard) DetectAllCycles(g *aggregates.ConceptGraph) [][]valueobjects.ConceptID {
	seen := make(map[string]struct{})
	var cycles [][]valueobjects.ConceptID

	for _, start := range g.NodeIDs() {
		onPath := map[valueobjects.ConceptID]bool{start: true}
		path := []valueobjects.ConceptID{start}
		stack := []dfsFrame{{id: start, next: g.Prerequisites(start)}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.pos == len(top.next) {
				delete(onPath, top.id)
				path = path[:len(path)-1]
				stack = stack[:len(stack)-1]
				continue
			}
			next := top.next[top.pos]
			top.pos++

			if next == start {
				cycle := append([]valueobjects.ConceptID(nil), path...)
				key := cycleKey(cycle)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					cycles = append(cycles, cycle)
				}
				continue
			}
			if next < start || onPath[next] {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			stack = append(stack, dfsFrame{id: next, next: g.Prerequisites(next)})
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) < len(cycles[j])
		}
		return cycleKey(cycles[i]) < cycleKey(cycles[j])
	})
	return cycles
}

func cycleKey(cycle []valueobjects.ConceptID) string {
	return strings.Join(valueobjects.ConceptIDStrings(cycle), "\x00")
}

// CalculateDepth returns the longest prerequisite chain below id, 0 when id
// has no prerequisites or is unknown. Residual cycles are cut where a node
// reappears on the current chain.
func (s *CycleGuard) CalculateDepth(g *aggregates.ConceptGraph, id valueobjects.ConceptID) int {
	return newDepthCalculator(g).depth(id)
}

// Depths computes CalculateDepth for every concept with a shared memo
func (s *CycleGuard) Depths(g *aggregates.ConceptGraph) map[valueobjects.ConceptID]int {
	calc := newDepthCalculator(g)
	out := make(map[valueobjects.ConceptID]int, g.Len())
	for _, id := range g.NodeIDs() {
		out[id] = calc.depth(id)
	}
	return out
}

type depthCalculator struct {
	g       *aggregates.ConceptGraph
	memo    map[valueobjects.ConceptID]int
	onStack map[valueobjects.ConceptID]bool
}

func newDepthCalculator(g *aggregates.ConceptGraph) *depthCalculator {
	return &depthCalculator{
		g:       g,
		memo:    make(map[valueobjects.ConceptID]int),
		onStack: make(map[valueobjects.ConceptID]bool),
	}
}

type depthFrame struct {
	id    valueobjects.ConceptID
	next  []valueobjects.ConceptID
	pos   int
	depth int
}

// depth is an iterative post-order walk; a child still on the stack
// contributes 0.
func (c *depthCalculator) depth(id valueobjects.ConceptID) int {
	if d, ok := c.memo[id]; ok {
		return d
	}
	if !c.g.Has(id) {
		return 0
	}

	c.onStack[id] = true
	stack := []depthFrame{{id: id, next: c.g.Prerequisites(id)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.pos == len(top.next) {
			c.memo[top.id] = top.depth
			delete(c.onStack, top.id)
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				parent.depth = max(parent.depth, top.depth+1)
			}
			continue
		}
		child := top.next[top.pos]
		top.pos++

		if d, ok := c.memo[child]; ok {
			top.depth = max(top.depth, d+1)
			continue
		}
		if c.onStack[child] {
			continue
		}
		c.onStack[child] = true
		stack = append(stack, depthFrame{id: child, next: c.g.Prerequisites(child)})
	}
	return c.memo[id]
}

// FixCycles breaks every detected cycle by deactivating its lowest-weight
// prerequisite edge (ties by edge ID), both in the store and in the snapshot.
// Cycles already broken by an earlier removal in the same pass are skipped,
// so overlapping cycles may need another pass. On a store error the edges
// removed so far are returned with the error.
func (s *CycleGuard) FixCycles(ctx context.Context, g *aggregates.ConceptGraph, deactivator EdgeDeactivator) ([]RemovedEdge, error) {
	cycles := s.DetectAllCycles(g)
	var removed []RemovedEdge

	for _, cycle := range cycles {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		victim, intact := lowestWeightEdge(g, cycle)
		if !intact {
			continue
		}

		if deactivator != nil {
			if err := deactivator.Deactivate(ctx, victim.ID); err != nil {
				s.logger.Error("Failed to deactivate cycle edge",
					zap.String("edge_id", victim.ID.String()),
					zap.Error(err))
				return removed, fmt.Errorf("deactivate edge %s: %w", victim.ID, err)
			}
		}
		if _, err := g.DeactivateEdge(victim.ID, RepairReason, cycle); err != nil {
			return removed, err
		}

		r := RemovedEdge{
			EdgeID:   victim.ID,
			SourceID: victim.SourceID,
			TargetID: victim.TargetID,
			Weight:   victim.Weight,
			Reason:   RepairReason,
			Cycle:    cycle,
		}
		removed = append(removed, r)

		s.logger.Warn("Deactivated prerequisite edge to break cycle",
			zap.String("scope", g.Scope().String()),
			zap.String("edge_id", r.EdgeID.String()),
			zap.String("source_id", r.SourceID.String()),
			zap.String("target_id", r.TargetID.String()),
			zap.Float64("weight", r.Weight),
			zap.String("reason", r.Reason),
			zap.String("cycle", entities.FormatPath(cycle)))
	}

	return removed, nil
}

// lowestWeightEdge picks the weakest edge closing the cycle. intact is false
// when some hop of the cycle no longer has an active prerequisite edge.
func lowestWeightEdge(g *aggregates.ConceptGraph, cycle []valueobjects.ConceptID) (*entities.ConceptEdge, bool) {
	var best *entities.ConceptEdge
	for i, from := range cycle {
		to := cycle[(i+1)%len(cycle)]
		found := false
		for _, e := range g.Outgoing(from, entities.RelationPrerequisite) {
			if e.TargetID != to {
				continue
			}
			found = true
			if best == nil || e.Weight < best.Weight || (e.Weight == best.Weight && e.ID < best.ID) {
				best = e
			}
		}
		if !found {
			return nil, false
		}
	}
	return best, best != nil
}

// HealthScore is 100 minus the configured penalties, floored at 0
func (s *CycleGuard) HealthScore(cycles, orphans, deepNodes, warnings int) float64 {
	score := 100 -
		s.config.CyclePenalty*float64(cycles) -
		s.config.OrphanPenalty*float64(orphans) -
		s.config.DepthPenalty*float64(deepNodes) -
		s.config.WarningPenalty*float64(warnings)
	return math.Max(0, score)
}
