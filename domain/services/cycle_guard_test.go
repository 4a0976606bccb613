package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/aggregates/graphtest"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
)

func newGuard() *CycleGuard {
	return NewCycleGuard(config.DefaultDomainConfig(), zap.NewNop())
}

// abcCycle stores "A is a prerequisite of B", "B of C", "C of A".
func abcCycle() *graphtest.Builder {
	return graphtest.New().
		Nodes("A", "B", "C", "D").
		Prereq("B", "A", 0.9).
		Prereq("C", "B", 0.8).
		Prereq("A", "C", 0.7)
}

func TestCycleGuard_ValidateRelationship(t *testing.T) {
	guard := newGuard()
	g := graphtest.New().
		Nodes("a", "b", "c").
		Prereq("a", "b", 0.9). // a depends on b
		Prereq("b", "c", 0.9). // b depends on c
		Build(t)

	tests := []struct {
		name     string
		source   string
		target   string
		wantErr  error
		wantPath []valueobjects.ConceptID
	}{
		{name: "transitive edge is fine", source: "a", target: "c"},
		{name: "self reference", source: "b", target: "b", wantErr: entities.ErrSelfReference},
		{name: "unknown source", source: "x", target: "a", wantErr: entities.ErrNodeNotFound},
		{name: "unknown target", source: "a", target: "x", wantErr: entities.ErrNodeNotFound},
		{
			name:     "closing the chain",
			source:   "c",
			target:   "a",
			wantErr:  entities.ErrWouldCreateCycle,
			wantPath: graphtest.IDs("a", "b", "c"),
		},
		{
			name:     "direct back edge",
			source:   "b",
			target:   "a",
			wantErr:  entities.ErrWouldCreateCycle,
			wantPath: graphtest.IDs("a", "b"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateRelationship(g, valueobjects.ConceptID(tt.source), valueobjects.ConceptID(tt.target))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.wantPath != nil {
				var cycleErr *entities.CycleError
				require.True(t, errors.As(err, &cycleErr))
				assert.Equal(t, tt.wantPath, cycleErr.Path)
				assert.Contains(t, err.Error(), entities.FormatPath(tt.wantPath))
			}
		})
	}
}

func TestCycleGuard_SelfReferenceAlwaysFails(t *testing.T) {
	guard := newGuard()
	g := abcCycle().Build(t)
	for _, id := range g.NodeIDs() {
		err := guard.ValidateRelationship(g, id, id)
		assert.True(t, errors.Is(err, entities.ErrSelfReference), "node %s", id)
	}
}

func TestCycleGuard_ABCScenario(t *testing.T) {
	guard := newGuard()
	g := abcCycle().Build(t)

	cycles := guard.DetectAllCycles(g)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, graphtest.IDs("A", "B", "C"), cycles[0])
	assert.Equal(t, valueobjects.ConceptID("A"), cycles[0][0], "cycles start at their smallest ID")

	// D depends on A: nothing reaches D, accepted.
	assert.NoError(t, guard.ValidateRelationship(g, "D", "A"))

	// Re-validating the stored edge "C is a prerequisite of A" is rejected.
	err := guard.ValidateRelationship(g, "A", "C")
	var cycleErr *entities.CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, graphtest.IDs("C", "B", "A"), cycleErr.Path)
}

func TestCycleGuard_DetectAllCycles_SharedNodes(t *testing.T) {
	guard := newGuard()
	// Two cycles through "hub", plus an entry point reaching both.
	g := graphtest.New().
		Nodes("entry", "hub", "x", "y").
		Prereq("entry", "hub", 0.5).
		Prereq("hub", "x", 0.5).
		Prereq("x", "hub", 0.5).
		Prereq("hub", "y", 0.5).
		Prereq("y", "hub", 0.5).
		Build(t)

	cycles := guard.DetectAllCycles(g)
	assert.Equal(t, [][]valueobjects.ConceptID{
		graphtest.IDs("hub", "x"),
		graphtest.IDs("hub", "y"),
	}, cycles)
}

func TestCycleGuard_DetectAllCycles_OverlappingBranches(t *testing.T) {
	guard := newGuard()
	// n1 reaches n3 both directly and through n2, and n3 closes back through
	// both; every elementary cycle must be listed.
	g := graphtest.New().
		Nodes("n0", "n1", "n2", "n3").
		Prereq("n0", "n1", 0.5).
		Prereq("n1", "n0", 0.5).
		Prereq("n1", "n2", 0.5).
		Prereq("n1", "n3", 0.5).
		Prereq("n2", "n0", 0.5).
		Prereq("n2", "n1", 0.5).
		Prereq("n2", "n3", 0.5).
		Prereq("n3", "n1", 0.5).
		Prereq("n3", "n2", 0.5).
		Build(t)

	cycles := guard.DetectAllCycles(g)
	assert.Len(t, cycles, 8)
	assert.Contains(t, cycles, graphtest.IDs("n1", "n3", "n2"))
	assert.Contains(t, cycles, graphtest.IDs("n1", "n2", "n3"))
	assert.Equal(t, bruteForceCycles(g.NodeIDs(), prereqSet(g.NodeIDs(), g.Prerequisites)), cycleSet(cycles))
}

func TestCycleGuard_DetectAllCycles_MatchesBruteForce(t *testing.T) {
	guard := newGuard()
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 200; trial++ {
		n := 4 + rng.Intn(3)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}
		b := graphtest.New().Nodes(ids...)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j && rng.Float64() < 0.45 {
					b.Prereq(ids[i], ids[j], 0.5)
				}
			}
		}
		g := b.Build(t)

		want := bruteForceCycles(g.NodeIDs(), prereqSet(g.NodeIDs(), g.Prerequisites))
		got := guard.DetectAllCycles(g)
		require.Equal(t, want, cycleSet(got), "trial %d", trial)
		require.Len(t, got, len(want), "trial %d: duplicate cycles", trial)
		for _, c := range got {
			for _, id := range c[1:] {
				require.Less(t, string(c[0]), string(id), "trial %d: cycle %v not rotated", trial, c)
			}
		}
	}
}

func prereqSet(ids []valueobjects.ConceptID, prereqs func(valueobjects.ConceptID) []valueobjects.ConceptID) map[[2]valueobjects.ConceptID]bool {
	edges := make(map[[2]valueobjects.ConceptID]bool)
	for _, id := range ids {
		for _, next := range prereqs(id) {
			edges[[2]valueobjects.ConceptID{id, next}] = true
		}
	}
	return edges
}

// bruteForceCycles tries every simple path that starts at its smallest member
// and keeps the ones with an edge back to the start.
func bruteForceCycles(ids []valueobjects.ConceptID, edges map[[2]valueobjects.ConceptID]bool) map[string]bool {
	found := make(map[string]bool)
	var extend func(seq []valueobjects.ConceptID, used map[valueobjects.ConceptID]bool)
	extend = func(seq []valueobjects.ConceptID, used map[valueobjects.ConceptID]bool) {
		last := seq[len(seq)-1]
		if len(seq) > 1 && edges[[2]valueobjects.ConceptID{last, seq[0]}] {
			found[cycleKey(seq)] = true
		}
		for _, id := range ids {
			if used[id] || id < seq[0] || !edges[[2]valueobjects.ConceptID{last, id}] {
				continue
			}
			used[id] = true
			extend(append(append([]valueobjects.ConceptID(nil), seq...), id), used)
			delete(used, id)
		}
	}
	for _, id := range ids {
		extend([]valueobjects.ConceptID{id}, map[valueobjects.ConceptID]bool{id: true})
	}
	return found
}

func cycleSet(cycles [][]valueobjects.ConceptID) map[string]bool {
	out := make(map[string]bool, len(cycles))
	for _, c := range cycles {
		out[cycleKey(c)] = true
	}
	return out
}

func TestCycleGuard_DetectAllCycles_AcyclicAndDeterministic(t *testing.T) {
	guard := newGuard()
	g := graphtest.New().Nodes("a", "b", "c").Prereq("a", "b", 0.5).Prereq("a", "c", 0.5).Prereq("b", "c", 0.5).Build(t)
	assert.Empty(t, guard.DetectAllCycles(g))

	cyclic := abcCycle().Prereq("D", "A", 0.4).Prereq("A", "D", 0.4).Build(t)
	first := guard.DetectAllCycles(cyclic)
	assert.Len(t, first, 2)
	assert.Equal(t, first, guard.DetectAllCycles(cyclic))
}

func TestCycleGuard_CalculateDepth(t *testing.T) {
	guard := newGuard()
	g := graphtest.New().
		Nodes("a", "b", "c", "d", "e").
		Prereq("a", "b", 0.5).
		Prereq("b", "c", 0.5).
		Prereq("a", "d", 0.5).
		Build(t)

	assert.Equal(t, 2, guard.CalculateDepth(g, "a"))
	assert.Equal(t, 1, guard.CalculateDepth(g, "b"))
	assert.Equal(t, 0, guard.CalculateDepth(g, "c"))
	assert.Equal(t, 0, guard.CalculateDepth(g, "e"))
	assert.Equal(t, 0, guard.CalculateDepth(g, "missing"))

	t.Run("residual cycle terminates", func(t *testing.T) {
		cyclic := abcCycle().Build(t)
		for _, id := range cyclic.NodeIDs() {
			d := guard.CalculateDepth(cyclic, id)
			assert.LessOrEqual(t, d, 2)
		}
		depths := guard.Depths(cyclic)
		assert.Len(t, depths, 4)
	})
}

func TestCycleGuard_ValidateProposal(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxDepthThreshold = 2
	guard := NewCycleGuard(cfg, zap.NewNop())

	g := graphtest.New().
		Node("easy", 1).
		Node("hard", 4).
		Node("mid", 2).
		Node("base", 1).
		Prereq("mid", "base", 0.9).
		Prereq("hard", "mid", 0.9).
		Build(t)

	t.Run("difficulty inversion warns", func(t *testing.T) {
		report, err := guard.ValidateProposal(g, entities.RelationshipProposal{
			SourceID: "easy", TargetID: "mid", Type: entities.RelationPrerequisite, Weight: 0.6,
		})
		require.NoError(t, err)
		require.Len(t, report.Warnings, 1)
		assert.Equal(t, entities.WarningDifficultyInversion, report.Warnings[0].Code)
		assert.Equal(t, 2, report.ProjectedDepth)
	})

	t.Run("depth limit warns", func(t *testing.T) {
		report, err := guard.ValidateProposal(g, entities.RelationshipProposal{
			SourceID: "easy", TargetID: "hard", Type: entities.RelationPrerequisite, Weight: 0.6,
		})
		require.NoError(t, err)
		codes := make([]entities.WarningCode, 0, len(report.Warnings))
		for _, w := range report.Warnings {
			codes = append(codes, w.Code)
		}
		assert.Contains(t, codes, entities.WarningDepthLimitExceeded)
		assert.Equal(t, 3, report.ProjectedDepth)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		_, err := guard.ValidateProposal(g, entities.RelationshipProposal{
			SourceID: "base", TargetID: "hard", Type: entities.RelationPrerequisite, Weight: 0.6,
		})
		assert.True(t, errors.Is(err, entities.ErrWouldCreateCycle))
	})

	t.Run("non-prerequisite skips reachability", func(t *testing.T) {
		report, err := guard.ValidateProposal(g, entities.RelationshipProposal{
			SourceID: "base", TargetID: "hard", Type: entities.RelationRelatedTo, Weight: 0.3,
		})
		require.NoError(t, err)
		assert.Empty(t, report.Warnings)
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := guard.ValidateProposal(g, entities.RelationshipProposal{
			SourceID: "base", TargetID: "nope", Type: entities.RelationLeadsTo, Weight: 0.3,
		})
		assert.True(t, errors.Is(err, entities.ErrNodeNotFound))
	})

	t.Run("self reference", func(t *testing.T) {
		_, err := guard.ValidateProposal(g, entities.RelationshipProposal{
			SourceID: "base", TargetID: "base", Type: entities.RelationPrerequisite, Weight: 0.3,
		})
		assert.True(t, errors.Is(err, entities.ErrSelfReference))
	})
}

// TestCycleGuard_AcyclicityProperty accepts random edges into random DAGs and
// checks the guard rejects exactly those that close a loop.
func TestCycleGuard_AcyclicityProperty(t *testing.T) {
	guard := newGuard()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		const n = 15
		b := graphtest.New()
		for i := 0; i < n; i++ {
			b.Node(fmt.Sprintf("n%02d", i), 1+rng.Intn(5))
		}
		for i := 0; i < n; i++ {
			for j := 0; j < i; j++ {
				if rng.Float64() < 0.15 {
					b.Prereq(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", j), rng.Float64())
				}
			}
		}

		for attempt := 0; attempt < 30; attempt++ {
			s := fmt.Sprintf("n%02d", rng.Intn(n))
			tg := fmt.Sprintf("n%02d", rng.Intn(n))
			g := b.Build(t)

			err := guard.ValidateRelationship(g, valueobjects.ConceptID(s), valueobjects.ConceptID(tg))
			wantReject := s == tg || reaches(b.Relationships(), tg, s)
			assert.Equal(t, wantReject, err != nil, "round %d: %s -> %s: %v", round, s, tg, err)
			if err == nil {
				b.Prereq(s, tg, rng.Float64())
			}
		}

		assert.Empty(t, guard.DetectAllCycles(b.Build(t)), "round %d", round)
	}
}

// reaches is an independent recursive reachability check over raw edges
func reaches(edges []*entities.ConceptEdge, from, to string) bool {
	adj := make(map[valueobjects.ConceptID][]valueobjects.ConceptID)
	for _, e := range edges {
		if e.IsPrerequisite() {
			adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
		}
	}
	seen := make(map[valueobjects.ConceptID]bool)
	var walk func(valueobjects.ConceptID) bool
	walk = func(n valueobjects.ConceptID) bool {
		if n == valueobjects.ConceptID(to) {
			return true
		}
		if seen[n] {
			return false
		}
		seen[n] = true
		for _, next := range adj[n] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(valueobjects.ConceptID(from))
}

type recordingDeactivator struct {
	ids []valueobjects.EdgeID
	err error
}

func (d *recordingDeactivator) Deactivate(_ context.Context, id valueobjects.EdgeID) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func TestCycleGuard_FixCycles(t *testing.T) {
	guard := newGuard()

	t.Run("removes lowest weight edge", func(t *testing.T) {
		g := graphtest.New().
			Nodes("a", "b", "c").
			Prereq("a", "b", 0.9).
			Prereq("b", "c", 0.3).
			Prereq("c", "a", 0.6).
			Build(t)
		store := &recordingDeactivator{}

		removed, err := guard.FixCycles(context.Background(), g, store)
		require.NoError(t, err)
		require.Len(t, removed, 1)
		assert.Equal(t, valueobjects.EdgeID("e0002"), removed[0].EdgeID)
		assert.Equal(t, RepairReason, removed[0].Reason)
		assert.Equal(t, []valueobjects.EdgeID{"e0002"}, store.ids)
		assert.Empty(t, guard.DetectAllCycles(g))
		assert.Len(t, g.GetUncommittedEvents(), 1)
	})

	t.Run("ties broken by edge id", func(t *testing.T) {
		g := graphtest.New().Nodes("a", "b").Prereq("a", "b", 0.5).Prereq("b", "a", 0.5).Build(t)
		removed, err := guard.FixCycles(context.Background(), g, nil)
		require.NoError(t, err)
		require.Len(t, removed, 1)
		assert.Equal(t, valueobjects.EdgeID("e0001"), removed[0].EdgeID)
	})

	t.Run("skips cycles already broken in the pass", func(t *testing.T) {
		g := graphtest.New().
			Nodes("a", "b", "c").
			Prereq("a", "b", 0.1).
			Prereq("b", "a", 0.9).
			Prereq("b", "c", 0.9).
			Prereq("c", "a", 0.9).
			Build(t)
		require.Len(t, guard.DetectAllCycles(g), 2)

		removed, err := guard.FixCycles(context.Background(), g, nil)
		require.NoError(t, err)
		assert.Len(t, removed, 1)
		assert.Empty(t, guard.DetectAllCycles(g))
	})

	t.Run("store failure aborts", func(t *testing.T) {
		g := abcCycle().Build(t)
		storeErr := errors.New("boom")
		removed, err := guard.FixCycles(context.Background(), g, &recordingDeactivator{err: storeErr})
		assert.ErrorIs(t, err, storeErr)
		assert.Empty(t, removed)
		assert.Len(t, guard.DetectAllCycles(g), 1, "snapshot untouched when the store refuses")
	})

	t.Run("acyclic graph is a no-op", func(t *testing.T) {
		g := graphtest.New().Nodes("a", "b").Prereq("a", "b", 0.5).Build(t)
		removed, err := guard.FixCycles(context.Background(), g, nil)
		require.NoError(t, err)
		assert.Empty(t, removed)
	})
}

func TestCycleGuard_HealthScore(t *testing.T) {
	guard := newGuard()

	tests := []struct {
		name                            string
		cycles, orphans, deep, warnings int
		want                            float64
	}{
		{name: "perfect", want: 100},
		{name: "mixed", cycles: 1, orphans: 2, deep: 1, warnings: 3, want: 68},
		{name: "floored", cycles: 6, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.HealthScore(tt.cycles, tt.orphans, tt.deep, tt.warnings))
		})
	}
}
