package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"conceptgraph/application/ports"
	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/domain/events"
	domainservices "conceptgraph/domain/services"
	"conceptgraph/pkg/observability"
)

// ProposalResult describes an accepted relationship
type ProposalResult struct {
	Edge     *entities.ConceptEdge `json:"edge"`
	Warnings []entities.Warning    `json:"warnings,omitempty"`
}

// RepairReport summarises a FixCycles run over one scope
type RepairReport struct {
	Scope       valueobjects.ScopeID         `json:"scope"`
	CyclesFound int                          `json:"cycles_found"`
	Removed     []domainservices.RemovedEdge `json:"removed"`
	Remaining   [][]valueobjects.ConceptID   `json:"remaining"`
	Passes      int                          `json:"passes"`
	ScoreBefore float64                      `json:"score_before"`
	ScoreAfter  float64                      `json:"score_after"`
}

// LearningPlan is an ordered sequence of concepts
type LearningPlan struct {
	Order    []valueobjects.ConceptID `json:"order"`
	Warnings []entities.Warning       `json:"warnings,omitempty"`
}

// RelationshipService orchestrates the graph engine over the repositories.
// Writers of one scope are serialized through the ScopeLocker so a
// validation can never race with another insert.
type RelationshipService struct {
	nodeRepo   ports.NodeRepository
	edgeRepo   ports.EdgeRepository
	locker     ports.ScopeLocker
	publisher  ports.EventPublisher
	eventStore ports.EventStore

	mastery ports.MasteryLookup
	current atomic.Pointer[engine]

	metrics *observability.Collector
	tracer  *observability.Tracer
	logger  *zap.Logger
}

// NewRelationshipService creates a new relationship service.
// publisher, eventStore and mastery may be nil.
func NewRelationshipService(
	nodeRepo ports.NodeRepository,
	edgeRepo ports.EdgeRepository,
	locker ports.ScopeLocker,
	publisher ports.EventPublisher,
	eventStore ports.EventStore,
	mastery ports.MasteryLookup,
	cfg *config.DomainConfig,
	metrics *observability.Collector,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *RelationshipService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewCollector("conceptgraph")
	}
	if tracer == nil {
		tracer = observability.NewTracer("conceptgraph")
	}

	s := &RelationshipService{
		nodeRepo:   nodeRepo,
		edgeRepo:   edgeRepo,
		locker:     locker,
		publisher:  publisher,
		eventStore: eventStore,
		mastery:    mastery,
		metrics:    metrics,
		tracer:     tracer,
		logger:     logger,
	}
	s.current.Store(s.newEngine(cfg))
	return s
}

// engine bundles the domain services built from one DomainConfig
type engine struct {
	config    *config.DomainConfig
	guard     *domainservices.CycleGuard
	planner   *domainservices.TopologicalPlanner
	traverser *domainservices.BoundedTraverser
	health    *domainservices.GraphHealth
}

func (s *RelationshipService) newEngine(cfg *config.DomainConfig) *engine {
	var opts []domainservices.TraverserOption
	if s.mastery != nil {
		opts = append(opts, domainservices.WithMastery(s.mastery))
	}

	guard := domainservices.NewCycleGuard(cfg, s.logger)
	planner := domainservices.NewTopologicalPlanner(s.logger)
	return &engine{
		config:    cfg,
		guard:     guard,
		planner:   planner,
		traverser: domainservices.NewBoundedTraverser(cfg, s.logger, opts...),
		health:    domainservices.NewGraphHealth(cfg, guard, planner, s.logger),
	}
}

// Reconfigure swaps in new engine rules. Calls already running keep the
// rules they started with.
func (s *RelationshipService) Reconfigure(cfg *config.DomainConfig) error {
	if cfg == nil {
		return fmt.Errorf("domain configuration missing")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(s.newEngine(cfg))
	s.logger.Info("Engine rules reloaded",
		zap.Int("maxDepthThreshold", cfg.MaxDepthThreshold),
		zap.Int("maxRepairPasses", cfg.MaxRepairPasses))
	return nil
}

// Config returns the engine rules currently in effect
func (s *RelationshipService) Config() *config.DomainConfig {
	return s.current.Load().config
}

// LoadSnapshot reads every active concept of a scope and their outgoing edges
func (s *RelationshipService) LoadSnapshot(ctx context.Context, scope valueobjects.ScopeID) (*aggregates.ConceptGraph, error) {
	var g *aggregates.ConceptGraph
	err := s.tracer.TraceFunction(ctx, "LoadSnapshot", func(ctx context.Context) error {
		s.tracer.AddAnnotation(ctx, "scope", scope.String())
		nodes, err := s.nodeRepo.ListActive(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to list concepts: %w", err)
		}

		seen := make(map[valueobjects.EdgeID]bool)
		var edges []*entities.ConceptEdge
		for _, n := range nodes {
			out, err := s.edgeRepo.Outgoing(ctx, n.ID)
			if err != nil {
				return fmt.Errorf("failed to load edges of %s: %w", n.ID, err)
			}
			for _, e := range out {
				if !seen[e.ID] {
					seen[e.ID] = true
					edges = append(edges, e)
				}
			}
		}

		g, err = aggregates.NewConceptGraph(scope, nodes, edges)
		if err != nil {
			return fmt.Errorf("failed to build snapshot: %w", err)
		}

		s.logger.Debug("Loaded graph snapshot",
			zap.String("scope", scope.String()),
			zap.Int("concepts", g.Len()),
			zap.Int("edges", len(edges)))
		return nil
	})
	return g, err
}

// lockScope acquires the scope lock and returns its release func
func (s *RelationshipService) lockScope(ctx context.Context, scope valueobjects.ScopeID) (func(), error) {
	unlock, err := s.locker.Lock(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to lock scope %s: %w", scope, err)
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release scope lock",
				zap.String("scope", scope.String()),
				zap.Error(err))
		}
	}, nil
}

// ValidateRelationship checks a prerequisite against the current state of the scope without storing it
func (s *RelationshipService) ValidateRelationship(ctx context.Context, scope valueobjects.ScopeID, source, target valueobjects.ConceptID) error {
	e := s.current.Load()
	g, err := s.LoadSnapshot(ctx, scope)
	if err != nil {
		return err
	}
	return e.guard.ValidateRelationship(g, source, target)
}

// ProposeRelationship validates a proposal under the scope lock and, when
// accepted, stores it. Rejections are returned as errors and never retried.
func (s *RelationshipService) ProposeRelationship(
	ctx context.Context,
	scope valueobjects.ScopeID,
	proposal entities.RelationshipProposal,
) (*ProposalResult, error) {
	e := s.current.Load()
	defer s.metrics.ObserveOperation("propose_relationship", time.Now())

	var result *ProposalResult
	err := s.tracer.TraceFunction(ctx, "ProposeRelationship", func(ctx context.Context) error {
		s.tracer.AddAnnotation(ctx, "scope", scope.String())
		s.tracer.AddAnnotation(ctx, "relationship_type", string(proposal.Type))
		release, err := s.lockScope(ctx, scope)
		if err != nil {
			return err
		}
		defer release()

		g, err := s.LoadSnapshot(ctx, scope)
		if err != nil {
			return err
		}

		report, err := e.guard.ValidateProposal(g, proposal)
		if err != nil {
			s.rejected(ctx, scope, proposal, err)
			return err
		}

		edge, err := entities.NewConceptEdge(proposal.SourceID, proposal.TargetID, proposal.Type, proposal.Weight, e.thresholds())
		if err != nil {
			return err
		}
		edge.Reasoning = proposal.Reasoning
		if proposal.IsPrerequisite() {
			depth := report.ProjectedDepth
			edge.Depth = &depth
		}

		if err := s.edgeRepo.Upsert(ctx, scope, edge); err != nil {
			return fmt.Errorf("failed to store relationship: %w", err)
		}

		warningCodes := make([]string, 0, len(report.Warnings))
		for _, w := range report.Warnings {
			warningCodes = append(warningCodes, string(w.Code))
			s.metrics.Warnings.WithLabelValues(string(w.Code)).Inc()
		}
		s.metrics.Validations.WithLabelValues(string(proposal.Type), "accepted").Inc()
		s.emit(ctx, events.NewRelationshipAccepted(scope, edge.ID, edge.SourceID, edge.TargetID,
			string(edge.Type), edge.Weight, warningCodes, time.Now()))

		s.logger.Info("Relationship accepted",
			zap.String("scope", scope.String()),
			zap.String("edgeID", edge.ID.String()),
			zap.String("source", edge.SourceID.String()),
			zap.String("target", edge.TargetID.String()),
			zap.String("type", string(edge.Type)),
			zap.Float64("weight", edge.Weight),
			zap.Strings("warnings", warningCodes))

		result = &ProposalResult{Edge: edge, Warnings: report.Warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RelationshipService) rejected(ctx context.Context, scope valueobjects.ScopeID, p entities.RelationshipProposal, cause error) {
	var path []valueobjects.ConceptID
	var cycleErr *entities.CycleError
	if errors.As(cause, &cycleErr) {
		path = cycleErr.Path
	}

	s.tracer.RecordError(ctx, cause)
	s.metrics.Validations.WithLabelValues(string(p.Type), "rejected").Inc()
	s.emit(ctx, events.NewRelationshipRejected(scope, p.SourceID, p.TargetID, string(p.Type), cause.Error(), path, time.Now()))

	s.logger.Info("Relationship rejected",
		zap.String("scope", scope.String()),
		zap.String("source", p.SourceID.String()),
		zap.String("target", p.TargetID.String()),
		zap.String("type", string(p.Type)),
		zap.Error(cause))
}

// FixCycles runs up to MaxRepairPasses repair passes under the scope lock.
// Every deactivation is stored in the audit trail and published.
func (s *RelationshipService) FixCycles(ctx context.Context, scope valueobjects.ScopeID) (*RepairReport, error) {
	e := s.current.Load()
	defer s.metrics.ObserveOperation("fix_cycles", time.Now())

	report := &RepairReport{Scope: scope}
	err := s.tracer.TraceFunction(ctx, "FixCycles", func(ctx context.Context) error {
		release, err := s.lockScope(ctx, scope)
		if err != nil {
			return err
		}
		defer release()

		g, err := s.LoadSnapshot(ctx, scope)
		if err != nil {
			return err
		}

		before := e.health.Analyze(g)
		report.CyclesFound = len(before.Cycles)
		report.ScoreBefore = before.Score

		var repairErr error
		for report.Passes < e.config.MaxRepairPasses {
			report.Passes++
			removed, err := e.guard.FixCycles(ctx, g, s.edgeRepo)
			report.Removed = append(report.Removed, removed...)
			if err != nil {
				repairErr = err
				break
			}
			if len(removed) == 0 || len(e.guard.DetectAllCycles(g)) == 0 {
				break
			}
		}
		s.metrics.EdgesDeactivated.Add(float64(len(report.Removed)))

		after := e.health.Analyze(g)
		report.Remaining = after.Cycles
		report.ScoreAfter = after.Score
		s.metrics.HealthScore.WithLabelValues(scope.String()).Set(after.Score)

		pending := g.GetUncommittedEvents()
		pending = append(pending, events.NewCyclesRepaired(scope, report.CyclesFound, len(report.Removed), report.ScoreBefore, report.ScoreAfter, time.Now()))
		s.emit(ctx, pending...)
		g.MarkEventsAsCommitted()

		s.logger.Info("Cycle repair finished",
			zap.String("scope", scope.String()),
			zap.Int("cyclesFound", report.CyclesFound),
			zap.Int("edgesRemoved", len(report.Removed)),
			zap.Int("cyclesRemaining", len(report.Remaining)),
			zap.Int("passes", report.Passes))
		return repairErr
	})
	return report, err
}

// emit writes events to the audit store and publishes them. Both are best
// effort: the state change has already happened.
func (s *RelationshipService) emit(ctx context.Context, evts ...events.DomainEvent) {
	if len(evts) == 0 {
		return
	}
	if s.eventStore != nil {
		if err := s.eventStore.SaveEvents(ctx, evts); err != nil {
			s.logger.Error("Failed to store audit events", zap.Int("count", len(evts)), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishBatch(ctx, evts); err != nil {
			s.logger.Warn("Failed to publish events", zap.Int("count", len(evts)), zap.Error(err))
		}
	}
}

// LearningOrder orders ids (every concept of the scope when empty). With
// bestEffort a cycle does not fail the call; blocked concepts are appended
// and reported as warnings.
func (s *RelationshipService) LearningOrder(ctx context.Context, scope valueobjects.ScopeID, ids []valueobjects.ConceptID, bestEffort bool) (*LearningPlan, error) {
	e := s.current.Load()
	defer s.metrics.ObserveOperation("learning_order", time.Now())

	g, err := s.LoadSnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = g.NodeIDs()
	}

	if bestEffort {
		order, warnings, err := e.planner.OrderBestEffort(g, ids)
		if err != nil {
			return nil, err
		}
		return &LearningPlan{Order: order, Warnings: warnings}, nil
	}

	order, err := e.planner.Order(g, ids)
	if err != nil {
		return nil, err
	}
	return &LearningPlan{Order: order}, nil
}

// LearningStages groups ids into stages that can be studied in parallel
func (s *RelationshipService) LearningStages(ctx context.Context, scope valueobjects.ScopeID, ids []valueobjects.ConceptID) ([][]valueobjects.ConceptID, error) {
	e := s.current.Load()
	g, err := s.LoadSnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = g.NodeIDs()
	}
	return e.planner.Layers(g, ids)
}

// Traverse gathers related concepts around the seeds. Only snapshot loading
// can fail; the traversal itself degrades to a partial result.
func (s *RelationshipService) Traverse(ctx context.Context, scope valueobjects.ScopeID, req domainservices.TraversalRequest) (*domainservices.TraversalResult, error) {
	e := s.current.Load()
	defer s.metrics.ObserveOperation("traverse", time.Now())

	if len(req.Seeds) == 0 {
		return e.traverser.Traverse(ctx, nil, req), nil
	}

	g, err := s.LoadSnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}

	result := e.traverser.Traverse(ctx, g, req)
	s.metrics.TraversalVisited.Observe(float64(result.NodesVisited))
	switch {
	case result.TimedOut:
		s.metrics.PartialResults.WithLabelValues("timeout").Inc()
	case result.Cancelled:
		s.metrics.PartialResults.WithLabelValues("cancelled").Inc()
	}
	s.tracer.AddMetadata(ctx, "traversal", map[string]interface{}{
		"visited":  result.NodesVisited,
		"depth":    result.MaxDepthReached,
		"complete": result.Complete,
	})
	return result, nil
}

// Health analyzes the scope and records its score
func (s *RelationshipService) Health(ctx context.Context, scope valueobjects.ScopeID) (*domainservices.HealthReport, error) {
	e := s.current.Load()
	defer s.metrics.ObserveOperation("health", time.Now())

	g, err := s.LoadSnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	report := e.health.Analyze(g)
	s.metrics.HealthScore.WithLabelValues(scope.String()).Set(report.Score)
	return report, nil
}

// DetectCycles lists the prerequisite cycles currently stored in the scope
func (s *RelationshipService) DetectCycles(ctx context.Context, scope valueobjects.ScopeID) ([][]valueobjects.ConceptID, error) {
	e := s.current.Load()
	g, err := s.LoadSnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	return e.guard.DetectAllCycles(g), nil
}

func (e *engine) thresholds() entities.StrengthThresholds {
	return entities.StrengthThresholds{
		Mandatory:   e.config.MandatoryWeight,
		Recommended: e.config.RecommendedWeight,
	}
}
