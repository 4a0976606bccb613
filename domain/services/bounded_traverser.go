package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
)

// MasteryLookup supplies per-user mastery in [0,1] for traversal annotations
type MasteryLookup interface {
	MasteryLevel(ctx context.Context, userID string, nodeID valueobjects.ConceptID) (float64, error)
}

// Direction selects which edges a traversal follows
type Direction string

const (
	// DirectionOutgoing follows outgoing edges of every type
	DirectionOutgoing Direction = "outgoing"
	// DirectionBoth also follows incoming prerequisite edges, reaching dependents
	DirectionBoth Direction = "both"
)

// Relationship labels on traversal entries besides the edge types
const (
	RelationshipSeed      = "seed"
	RelationshipDependent = "dependent"
)

// TraversalRequest bounds a traversal. Zero values take the configured defaults.
type TraversalRequest struct {
	Seeds          []valueobjects.ConceptID    `json:"seeds"`
	MaxDepth       int                         `json:"max_depth"`
	Timeout        time.Duration               `json:"timeout"`
	PerLevelFanout int                         `json:"per_level_fanout"`
	Direction      Direction                   `json:"direction,omitempty"`
	Types          []entities.RelationshipType `json:"types,omitempty"`
	UserID         string                      `json:"user_id,omitempty"`
}

// TraversalEntry annotates one visited concept
type TraversalEntry struct {
	NodeID       valueobjects.ConceptID `json:"node_id"`
	Name         string                 `json:"name"`
	Depth        int                    `json:"depth"`
	Relevance    float64                `json:"relevance"`
	Relationship string                 `json:"relationship"`
	SeedID       valueobjects.ConceptID `json:"seed_id"`
	ViaEdge      valueobjects.EdgeID    `json:"via_edge,omitempty"`
	Mastery      *float64               `json:"mastery,omitempty"`
}

// TraversalResult is a plain, serializable record of one traversal
type TraversalResult struct {
	Entries         []TraversalEntry         `json:"entries"`
	Prerequisites   []valueobjects.ConceptID `json:"prerequisites"`
	Dependents      []valueobjects.ConceptID `json:"dependents"`
	Path            []valueobjects.ConceptID `json:"path"`
	NodesVisited    int                      `json:"nodes_visited"`
	MaxDepthReached int                      `json:"max_depth_reached"`
	Elapsed         time.Duration            `json:"elapsed"`
	TimedOut        bool                     `json:"timed_out"`
	Cancelled       bool                     `json:"cancelled"`
	Complete        bool                     `json:"complete"`
	Warnings        []entities.Warning       `json:"warnings,omitempty"`
}

// BoundedTraverser explores outward from seed concepts breadth-first, bounded
// by depth, per-node fanout and a wall-clock deadline. It never fails: an
// expired deadline or cancelled context yields a partial result flagged
// incomplete.
type BoundedTraverser struct {
	config  *config.DomainConfig
	scorer  RelevanceScorer
	mastery MasteryLookup
	logger  *zap.Logger
	now     func() time.Time
}

// TraverserOption configures a BoundedTraverser
type TraverserOption func(*BoundedTraverser)

// WithScorer replaces the default depth-decay scorer
func WithScorer(s RelevanceScorer) TraverserOption {
	return func(t *BoundedTraverser) { t.scorer = s }
}

// WithMastery annotates entries with the user's mastery
func WithMastery(m MasteryLookup) TraverserOption {
	return func(t *BoundedTraverser) { t.mastery = m }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) TraverserOption {
	return func(t *BoundedTraverser) { t.now = now }
}

// NewBoundedTraverser creates a traverser
func NewBoundedTraverser(cfg *config.DomainConfig, logger *zap.Logger, opts ...TraverserOption) *BoundedTraverser {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &BoundedTraverser{
		config: cfg,
		scorer: DepthDecayScorer{Decay: cfg.RelevanceDecay},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// normalize fills defaults and caps the depth
func (t *BoundedTraverser) normalize(req TraversalRequest) TraversalRequest {
	if req.MaxDepth <= 0 {
		req.MaxDepth = t.config.DefaultTraversalDepth
	}
	if req.MaxDepth > t.config.MaxTraversalDepth {
		req.MaxDepth = t.config.MaxTraversalDepth
	}
	if req.Timeout <= 0 {
		req.Timeout = t.config.DefaultTraversalTimeout
	}
	if req.PerLevelFanout <= 0 {
		req.PerLevelFanout = t.config.DefaultFanout
	}
	if req.Direction == "" {
		req.Direction = DirectionOutgoing
	}
	return req
}

type queueItem struct {
	id           valueobjects.ConceptID
	depth        int
	seed         valueobjects.ConceptID
	relationship string
	via          *entities.ConceptEdge
}

// Traverse runs the bounded BFS. The deadline and ctx are checked at every
// dequeue, so the deadline is overrun by at most one node's processing.
func (t *BoundedTraverser) Traverse(ctx context.Context, g *aggregates.ConceptGraph, req TraversalRequest) *TraversalResult {
	result := &TraversalResult{
		Entries:       []TraversalEntry{},
		Prerequisites: []valueobjects.ConceptID{},
		Dependents:    []valueobjects.ConceptID{},
		Path:          []valueobjects.ConceptID{},
	}
	if len(req.Seeds) == 0 {
		result.Complete = true
		return result
	}

	req = t.normalize(req)
	start := t.now()
	deadline := start.Add(req.Timeout)

	discovered := make(map[valueobjects.ConceptID]bool)
	var queue []queueItem
	for _, seed := range req.Seeds {
		if discovered[seed] {
			continue
		}
		if !g.Has(seed) {
			t.logger.Debug("Skipping unknown traversal seed", zap.String("seed_id", seed.String()))
			result.Warnings = append(result.Warnings, entities.Warning{
				Code:    entities.WarningUnknownSeed,
				Message: fmt.Sprintf("seed %s is not in the graph", seed),
				NodeID:  seed,
			})
			continue
		}
		discovered[seed] = true
		queue = append(queue, queueItem{id: seed, seed: seed, relationship: RelationshipSeed})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			break
		}
		if t.now().After(deadline) {
			result.TimedOut = true
			break
		}

		item := queue[0]
		queue = queue[1:]
		t.record(ctx, g, req, item, result)

		if item.depth >= req.MaxDepth {
			continue
		}
		enqueued := 0
		for _, cand := range t.candidates(g, item.id, req) {
			if enqueued >= req.PerLevelFanout {
				break
			}
			if discovered[cand.id] {
				continue
			}
			discovered[cand.id] = true
			enqueued++

			rel := item.relationship
			if item.depth == 0 {
				rel = cand.relationship
			}
			queue = append(queue, queueItem{
				id:           cand.id,
				depth:        item.depth + 1,
				seed:         item.seed,
				relationship: rel,
				via:          cand.edge,
			})
		}
	}

	result.NodesVisited = len(result.Entries)
	result.Elapsed = t.now().Sub(start)
	result.Complete = !result.TimedOut && !result.Cancelled

	if !result.Complete {
		t.logger.Info("Traversal returned partial result",
			zap.Int("nodes_visited", result.NodesVisited),
			zap.Int("queued", len(queue)),
			zap.Bool("timed_out", result.TimedOut),
			zap.Bool("cancelled", result.Cancelled),
			zap.Duration("elapsed", result.Elapsed))
	}
	return result
}

func (t *BoundedTraverser) record(ctx context.Context, g *aggregates.ConceptGraph, req TraversalRequest, item queueItem, result *TraversalResult) {
	node, _ := g.Node(item.id)
	seed, _ := g.Node(item.seed)

	entry := TraversalEntry{
		NodeID:       item.id,
		Name:         node.Name,
		Depth:        item.depth,
		Relationship: item.relationship,
		SeedID:       item.seed,
		Relevance:    clampUnit(t.scorer.Score(ScoreInput{Seed: seed, Node: node, Via: item.via, Depth: item.depth})),
	}
	if item.via != nil {
		entry.ViaEdge = item.via.ID
	}

	if t.mastery != nil && req.UserID != "" {
		level, err := t.mastery.MasteryLevel(ctx, req.UserID, item.id)
		if err != nil {
			t.logger.Warn("Mastery lookup failed",
				zap.String("user_id", req.UserID),
				zap.String("node_id", item.id.String()),
				zap.Error(err))
			result.Warnings = append(result.Warnings, entities.Warning{
				Code:    entities.WarningMasteryUnavailable,
				Message: "mastery unavailable",
				NodeID:  item.id,
			})
		} else {
			level = clampUnit(level)
			entry.Mastery = &level
		}
	}

	result.Entries = append(result.Entries, entry)
	result.Path = append(result.Path, item.id)
	if item.depth > result.MaxDepthReached {
		result.MaxDepthReached = item.depth
	}
	switch item.relationship {
	case string(entities.RelationPrerequisite):
		result.Prerequisites = append(result.Prerequisites, item.id)
	case RelationshipDependent:
		result.Dependents = append(result.Dependents, item.id)
	}
}

type candidate struct {
	id           valueobjects.ConceptID
	relationship string
	edge         *entities.ConceptEdge
}

// candidates lists neighbours of id in edge-ID order
func (t *BoundedTraverser) candidates(g *aggregates.ConceptGraph, id valueobjects.ConceptID, req TraversalRequest) []candidate {
	var out []candidate
	for _, e := range g.Outgoing(id, req.Types...) {
		out = append(out, candidate{id: e.TargetID, relationship: string(e.Type), edge: e})
	}
	if req.Direction == DirectionBoth {
		for _, e := range g.Incoming(id, entities.RelationPrerequisite) {
			out = append(out, candidate{id: e.SourceID, relationship: RelationshipDependent, edge: e})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].edge.ID < out[j].edge.ID })
	}
	return out
}
