package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
)

// HealthReport aggregates structural diagnostics for one scope
type HealthReport struct {
	Scope                valueobjects.ScopeID       `json:"scope"`
	NodeCount            int                        `json:"node_count"`
	EdgeCount            int                        `json:"edge_count"`
	Cycles               [][]valueobjects.ConceptID `json:"cycles"`
	Orphans              []valueobjects.ConceptID   `json:"orphans"`
	DeepNodes            []valueobjects.ConceptID   `json:"deep_nodes"`
	MaxDepth             int                        `json:"max_depth"`
	UnclassifiedEdges    []valueobjects.EdgeID      `json:"unclassified_edges"`
	DifficultyInversions []valueobjects.EdgeID      `json:"difficulty_inversions"`
	DanglingEdges        []valueobjects.EdgeID      `json:"dangling_edges"`
	UnresolvedParents    []valueobjects.ConceptID   `json:"unresolved_parents"`
	AmbiguousParents     []valueobjects.ConceptID   `json:"ambiguous_parents"`
	Warnings             []entities.Warning         `json:"warnings"`
	LearningOrder        []valueobjects.ConceptID   `json:"learning_order,omitempty"`
	Score                float64                    `json:"score"`
}

// Healthy reports whether the scope has no cycles and no warnings
func (r *HealthReport) Healthy() bool {
	return len(r.Cycles) == 0 && len(r.Warnings) == 0
}

// GraphHealth composes CycleGuard and TopologicalPlanner into one report
type GraphHealth struct {
	config  *config.DomainConfig
	guard   *CycleGuard
	planner *TopologicalPlanner
	logger  *zap.Logger
}

// NewGraphHealth creates a new health analyzer
func NewGraphHealth(cfg *config.DomainConfig, guard *CycleGuard, planner *TopologicalPlanner, logger *zap.Logger) *GraphHealth {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = NewCycleGuard(cfg, logger)
	}
	if planner == nil {
		planner = NewTopologicalPlanner(logger)
	}
	return &GraphHealth{config: cfg, guard: guard, planner: planner, logger: logger}
}

// Analyze builds the report. The score counts difficulty inversions and
// unclassified edges as warnings.
func (h *GraphHealth) Analyze(g *aggregates.ConceptGraph) *HealthReport {
	report := &HealthReport{
		Scope:                g.Scope(),
		NodeCount:            g.Len(),
		Cycles:               h.guard.DetectAllCycles(g),
		Orphans:              []valueobjects.ConceptID{},
		DeepNodes:            []valueobjects.ConceptID{},
		UnclassifiedEdges:    []valueobjects.EdgeID{},
		DifficultyInversions: []valueobjects.EdgeID{},
		DanglingEdges:        g.DanglingEdges(),
		UnresolvedParents:    g.UnresolvedParents(),
		AmbiguousParents:     g.AmbiguousParents(),
		Warnings:             []entities.Warning{},
	}

	depths := h.guard.Depths(g)
	for _, id := range g.NodeIDs() {
		if len(g.Outgoing(id, entities.RelationPrerequisite)) == 0 &&
			len(g.Incoming(id, entities.RelationPrerequisite)) == 0 {
			report.Orphans = append(report.Orphans, id)
		}
		d := depths[id]
		report.MaxDepth = max(report.MaxDepth, d)
		if d > h.config.MaxDepthThreshold {
			report.DeepNodes = append(report.DeepNodes, id)
		}
	}

	for _, e := range g.ActiveEdges() {
		report.EdgeCount++
		if !e.IsClassified() {
			report.UnclassifiedEdges = append(report.UnclassifiedEdges, e.ID)
			report.Warnings = append(report.Warnings, entities.Warning{
				Code:    entities.WarningUnclassifiedEdge,
				Message: fmt.Sprintf("edge %s has no strength classification", e.ID),
				NodeID:  e.SourceID,
			})
		}
		if e.Type != entities.RelationPrerequisite {
			continue
		}
		source, _ := g.Node(e.SourceID)
		target, _ := g.Node(e.TargetID)
		if target.Difficulty > source.Difficulty {
			report.DifficultyInversions = append(report.DifficultyInversions, e.ID)
			report.Warnings = append(report.Warnings, entities.Warning{
				Code:    entities.WarningDifficultyInversion,
				Message: fmt.Sprintf("prerequisite %s (difficulty %d) is harder than %s (difficulty %d)", target.ID, target.Difficulty, source.ID, source.Difficulty),
				NodeID:  e.TargetID,
			})
		}
	}

	if len(report.Cycles) == 0 {
		order, err := h.planner.Order(g, g.NodeIDs())
		var cycleErr *entities.CycleDetectedError
		switch {
		case err == nil:
			report.LearningOrder = order
		case errors.As(err, &cycleErr):
			h.logger.Warn("Planner found a cycle the detector missed",
				zap.String("scope", g.Scope().String()),
				zap.Int("remaining", len(cycleErr.Remaining)))
		default:
			h.logger.Error("Failed to compute learning order", zap.Error(err))
		}
	}

	report.Score = h.guard.HealthScore(len(report.Cycles), len(report.Orphans), len(report.DeepNodes), len(report.Warnings))
	return report
}
