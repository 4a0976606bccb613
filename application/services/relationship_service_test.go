package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates/graphtest"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/domain/events"
	domainservices "conceptgraph/domain/services"
	"conceptgraph/infrastructure/persistence/memory"
	"conceptgraph/pkg/observability"
)

type fixture struct {
	store   *memory.Store
	log     *memory.EventLog
	metrics *observability.Collector
	service *RelationshipService
}

func newFixture(t *testing.T, b *graphtest.Builder) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	for _, n := range b.Concepts() {
		require.NoError(t, store.Save(ctx, n))
	}
	for _, e := range b.Relationships() {
		require.NoError(t, store.Upsert(ctx, graphtest.Scope, e))
	}
	log := memory.NewEventLog()
	metrics := observability.NewCollector("test")
	svc := NewRelationshipService(store, store, memory.NewScopeLocker(), log, nil, nil,
		config.DefaultDomainConfig(), metrics, observability.NewTracer("test"), zap.NewNop())
	return &fixture{store: store, log: log, metrics: metrics, service: svc}
}

func TestRelationshipService_ProposeRelationship(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, graphtest.New().
		Node("limits", 3).
		Node("derivatives", 4).
		Node("functions", 2).
		Prereq("derivatives", "limits", 0.9).
		Prereq("limits", "functions", 0.8))

	t.Run("accepted", func(t *testing.T) {
		res, err := f.service.ProposeRelationship(ctx, graphtest.Scope, entities.RelationshipProposal{
			SourceID:  "derivatives",
			TargetID:  "functions",
			Type:      entities.RelationPrerequisite,
			Weight:    0.6,
			Reasoning: "chain rule needs composition",
		})
		require.NoError(t, err)
		assert.Equal(t, entities.StrengthRecommended, res.Edge.Strength)
		require.NotNil(t, res.Edge.Depth)
		assert.Equal(t, 2, *res.Edge.Depth)

		stored, ok := f.store.Edge(res.Edge.ID)
		require.True(t, ok)
		assert.True(t, stored.Active)
		assert.Equal(t, "chain rule needs composition", stored.Reasoning)
		assert.Contains(t, f.log.Types(), events.TypeRelationshipAccepted)
	})

	t.Run("cycle rejected with path", func(t *testing.T) {
		_, err := f.service.ProposeRelationship(ctx, graphtest.Scope, entities.RelationshipProposal{
			SourceID: "functions",
			TargetID: "derivatives",
			Type:     entities.RelationPrerequisite,
			Weight:   0.5,
		})
		var cycleErr *entities.CycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Equal(t, valueobjects.ConceptID("derivatives"), cycleErr.Path[0])
		assert.Equal(t, valueobjects.ConceptID("functions"), cycleErr.Path[len(cycleErr.Path)-1])
		assert.Contains(t, f.log.Types(), events.TypeRelationshipRejected)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Validations.WithLabelValues("prerequisite", "rejected")))
	})

	t.Run("non-prerequisite carries no depth", func(t *testing.T) {
		res, err := f.service.ProposeRelationship(ctx, graphtest.Scope, entities.RelationshipProposal{
			SourceID: "functions",
			TargetID: "limits",
			Type:     entities.RelationRelatedTo,
			Weight:   0.3,
		})
		require.NoError(t, err)
		assert.Empty(t, res.Warnings)
		assert.Nil(t, res.Edge.Depth)
	})
}

func TestRelationshipService_ConcurrentProposalsStayAcyclic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, graphtest.New().Nodes("a", "b"))

	var wg sync.WaitGroup
	results := make([]error, 2)
	pairs := [][2]valueobjects.ConceptID{{"a", "b"}, {"b", "a"}}
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, source, target valueobjects.ConceptID) {
			defer wg.Done()
			_, results[i] = f.service.ProposeRelationship(ctx, graphtest.Scope, entities.RelationshipProposal{
				SourceID: source, TargetID: target, Type: entities.RelationPrerequisite, Weight: 0.9,
			})
		}(i, p[0], p[1])
	}
	wg.Wait()

	accepted := 0
	for _, err := range results {
		if err == nil {
			accepted++
		} else {
			assert.True(t, errors.Is(err, entities.ErrWouldCreateCycle))
		}
	}
	assert.Equal(t, 1, accepted)

	cycles, err := f.service.DetectCycles(ctx, graphtest.Scope)
	require.NoError(t, err)
	assert.Empty(t, cycles)
}

func TestRelationshipService_FixCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, graphtest.New().
		Nodes("A", "B", "C").
		Prereq("B", "A", 0.9).
		Prereq("C", "B", 0.2).
		Prereq("A", "C", 0.7))

	report, err := f.service.FixCycles(ctx, graphtest.Scope)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CyclesFound)
	require.Len(t, report.Removed, 1)
	assert.Equal(t, valueobjects.EdgeID("e0002"), report.Removed[0].EdgeID)
	assert.Empty(t, report.Remaining)
	assert.Greater(t, report.ScoreAfter, report.ScoreBefore)

	stored, ok := f.store.Edge("e0002")
	require.True(t, ok)
	assert.False(t, stored.Active)

	assert.Equal(t, []string{events.TypeEdgeDeactivated, events.TypeCyclesRepaired}, f.log.Types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EdgesDeactivated))

	plan, err := f.service.LearningOrder(ctx, graphtest.Scope, nil, false)
	require.NoError(t, err)
	assert.Equal(t, graphtest.IDs("C", "A", "B"), plan.Order)
}

func TestRelationshipService_LearningOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, graphtest.New().
		Node("P", 1).
		Node("Q", 3).
		Node("R", 2).
		Node("X", 1).
		Node("Y", 1).
		Prereq("Q", "P", 0.9).
		Prereq("R", "P", 0.9).
		Prereq("X", "Y", 0.5).
		Prereq("Y", "X", 0.5))

	plan, err := f.service.LearningOrder(ctx, graphtest.Scope, graphtest.IDs("P", "Q", "R"), false)
	require.NoError(t, err)
	assert.Equal(t, graphtest.IDs("P", "R", "Q"), plan.Order)

	_, err = f.service.LearningOrder(ctx, graphtest.Scope, nil, false)
	assert.True(t, errors.Is(err, entities.ErrCycleDetected))

	plan, err = f.service.LearningOrder(ctx, graphtest.Scope, nil, true)
	require.NoError(t, err)
	assert.Equal(t, graphtest.IDs("P", "R", "Q", "X", "Y"), plan.Order)
	assert.Len(t, plan.Warnings, 2)

	stages, err := f.service.LearningStages(ctx, graphtest.Scope, graphtest.IDs("P", "Q", "R"))
	require.NoError(t, err)
	assert.Equal(t, [][]valueobjects.ConceptID{graphtest.IDs("P"), graphtest.IDs("R", "Q")}, stages)
}

func TestRelationshipService_TraverseAndHealth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, graphtest.New().
		Nodes("seed", "p1", "p2", "side").
		Prereq("seed", "p1", 0.9).
		Prereq("p1", "p2", 0.8).
		Edge("seed", "side", entities.RelationRelatedTo, 0.3))

	result, err := f.service.Traverse(ctx, graphtest.Scope, domainservices.TraversalRequest{
		Seeds:    graphtest.IDs("seed"),
		MaxDepth: 2,
	})
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, graphtest.IDs("seed", "p1", "side", "p2"), result.Path)
	assert.Equal(t, graphtest.IDs("p1", "p2"), result.Prerequisites)

	empty, err := f.service.Traverse(ctx, graphtest.Scope, domainservices.TraversalRequest{})
	require.NoError(t, err)
	assert.Zero(t, empty.NodesVisited)

	report, err := f.service.Health(ctx, graphtest.Scope)
	require.NoError(t, err)
	assert.Equal(t, graphtest.IDs("side"), report.Orphans)
	assert.Equal(t, 98.0, report.Score)
	assert.Equal(t, 98.0, testutil.ToFloat64(f.metrics.HealthScore.WithLabelValues(graphtest.Scope.String())))

	require.NoError(t, f.service.ValidateRelationship(ctx, graphtest.Scope, "side", "seed"))
	assert.Error(t, f.service.ValidateRelationship(ctx, graphtest.Scope, "p2", "seed"))
}

func TestRelationshipService_Reconfigure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, graphtest.New().Nodes("a", "b", "c"))

	invalid := config.DefaultDomainConfig()
	invalid.MaxRepairPasses = 0
	require.Error(t, f.service.Reconfigure(invalid))
	require.Error(t, f.service.Reconfigure(nil))
	assert.Equal(t, 1, f.service.Config().MaxRepairPasses)

	stricter := config.DefaultDomainConfig()
	stricter.MandatoryWeight = 0.95
	stricter.RecommendedWeight = 0.7
	require.NoError(t, f.service.Reconfigure(stricter))
	assert.Same(t, stricter, f.service.Config())

	res, err := f.service.ProposeRelationship(ctx, graphtest.Scope, entities.RelationshipProposal{
		SourceID: "a",
		TargetID: "b",
		Type:     entities.RelationPrerequisite,
		Weight:   0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StrengthRecommended, res.Edge.Strength)

	res, err = f.service.ProposeRelationship(ctx, graphtest.Scope, entities.RelationshipProposal{
		SourceID: "b",
		TargetID: "c",
		Type:     entities.RelationPrerequisite,
		Weight:   0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StrengthOptional, res.Edge.Strength)
}
