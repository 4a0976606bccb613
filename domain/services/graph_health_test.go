package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates/graphtest"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
)

func TestGraphHealth_Analyze(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	health := NewGraphHealth(cfg, nil, nil, zap.NewNop())

	t.Run("healthy dag", func(t *testing.T) {
		g := graphtest.New().
			Node("a", 2).
			Node("b", 1).
			Prereq("a", "b", 0.9).
			Build(t)

		report := health.Analyze(g)
		assert.True(t, report.Healthy())
		assert.Equal(t, 100.0, report.Score)
		assert.Equal(t, graphtest.IDs("b", "a"), report.LearningOrder)
		assert.Equal(t, 1, report.MaxDepth)
		assert.Equal(t, 1, report.EdgeCount)
	})

	t.Run("every finding counted", func(t *testing.T) {
		b := graphtest.New().
			Nodes("A", "B", "C").
			Node("easy", 1).
			Node("hard", 5).
			Nodes("lonely").
			Prereq("B", "A", 0.9).
			Prereq("C", "B", 0.8).
			Prereq("A", "C", 0.7).
			Prereq("easy", "hard", 0.9)
		b.EdgeWith(&entities.ConceptEdge{
			ID: "unclassified", SourceID: "lonely", TargetID: "A", Type: entities.RelationRelatedTo, Weight: 0.4,
		})
		g := b.Build(t)

		report := health.Analyze(g)
		require.Len(t, report.Cycles, 1)
		assert.Equal(t, graphtest.IDs("lonely"), report.Orphans)
		assert.Equal(t, []valueobjects.EdgeID{"unclassified"}, report.UnclassifiedEdges)
		assert.Equal(t, []valueobjects.EdgeID{"e0004"}, report.DifficultyInversions)
		assert.Len(t, report.Warnings, 2)
		assert.Empty(t, report.LearningOrder)
		// 100 - 20*1 - 2*1 - 5*0 - 1*2
		assert.Equal(t, 76.0, report.Score)
		assert.False(t, report.Healthy())
	})

	t.Run("deep chains penalised", func(t *testing.T) {
		g := chainGraph(t, 8).Build(t)
		report := health.Analyze(g)
		// c00 has depth 7, c01 depth 6
		assert.Equal(t, graphtest.IDs("c00", "c01"), report.DeepNodes)
		assert.Equal(t, 7, report.MaxDepth)
		assert.Equal(t, 90.0, report.Score)
	})

	t.Run("parent diagnostics surface", func(t *testing.T) {
		g := graphtest.New().
			NodeWith(&entities.ConceptNode{ID: "x", Difficulty: 1, ParentName: "missing"}).
			Build(t)
		report := health.Analyze(g)
		assert.Equal(t, graphtest.IDs("x"), report.UnresolvedParents)
		assert.Equal(t, graphtest.IDs("x"), report.Orphans)
		assert.Equal(t, 98.0, report.Score)
	})
}
