package badger

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	apperrors "conceptgraph/pkg/errors"
	"conceptgraph/pkg/observability"
)

func openTestStore(t *testing.T) (*Store, *observability.Collector) {
	t.Helper()
	metrics := observability.NewCollector("test")
	store, err := Open(Config{InMemory: true}, metrics, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, metrics
}

func mustNode(t *testing.T, id, scope string) *entities.ConceptNode {
	t.Helper()
	n, err := entities.NewConceptNode(valueobjects.ConceptID(id), valueobjects.ScopeID(scope), id, 2)
	require.NoError(t, err)
	return n
}

func mustEdge(t *testing.T, id, source, target string, relType entities.RelationshipType) *entities.ConceptEdge {
	t.Helper()
	e, err := entities.NewConceptEdge(valueobjects.ConceptID(source), valueobjects.ConceptID(target), relType, 0.7, entities.DefaultStrengthThresholds())
	require.NoError(t, err)
	e.ID = valueobjects.EdgeID(id)
	return e
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestOpen_UnusableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Open(Config{Path: filepath.Join(blocker, "db")}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.Contains(t, err.Error(), "create database directory")

	var pathErr *fs.PathError
	assert.True(t, errors.As(err, &pathErr))
}

func TestStore_Concepts(t *testing.T) {
	ctx := context.Background()
	store, metrics := openTestStore(t)

	a := mustNode(t, "a", "calc")
	a.ParentName = "Analysis"
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, mustNode(t, "c", "calc")))
	require.NoError(t, store.Save(ctx, mustNode(t, "b", "calc")))
	require.NoError(t, store.Save(ctx, mustNode(t, "ab", "algebra")))

	inactive := mustNode(t, "z", "calc")
	inactive.Active = false
	require.NoError(t, store.Save(ctx, inactive))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	nodes, err := store.ListActive(ctx, "calc")
	require.NoError(t, err)
	var ids []valueobjects.ConceptID
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []valueobjects.ConceptID{"a", "b", "c"}, ids)

	// Moving a concept to another scope drops it from the old listing
	moved := mustNode(t, "b", "algebra")
	require.NoError(t, store.Save(ctx, moved))
	nodes, err = store.ListActive(ctx, "calc")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	nodes, err = store.ListActive(ctx, "algebra")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DBOperations.WithLabelValues("GetConcept", "badger", "success")))
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.Save(context.Background(), &entities.ConceptNode{ID: "x", Scope: "calc", Name: "X", Difficulty: 0})
	assert.Error(t, err)
}

func TestStore_Edges(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	depth := 1
	e1 := mustEdge(t, "e1", "derivatives", "limits", entities.RelationPrerequisite)
	e1.Depth = &depth
	e1.Reasoning = "rates of change"
	require.NoError(t, store.Upsert(ctx, "calc", e1))
	require.NoError(t, store.Upsert(ctx, "calc", mustEdge(t, "e2", "derivatives", "functions", entities.RelationRelatedTo)))
	require.NoError(t, store.Upsert(ctx, "calc", mustEdge(t, "e0", "integrals", "limits", entities.RelationPrerequisite)))

	out, err := store.Outgoing(ctx, "derivatives")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, valueobjects.EdgeID("e1"), out[0].ID)
	assert.Equal(t, "rates of change", out[0].Reasoning)
	require.NotNil(t, out[0].Depth)
	assert.Equal(t, 1, *out[0].Depth)
	assert.True(t, out[0].CreatedAt.Equal(e1.CreatedAt))

	prereqs, err := store.Outgoing(ctx, "derivatives", entities.RelationPrerequisite)
	require.NoError(t, err)
	require.Len(t, prereqs, 1)

	in, err := store.Incoming(ctx, "limits")
	require.NoError(t, err)
	require.Len(t, in, 2)
	assert.Equal(t, valueobjects.EdgeID("e0"), in[0].ID)

	// Prefix matching does not leak into longer IDs
	none, err := store.Outgoing(ctx, "derivative")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpsertMovesIndexes(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	require.NoError(t, store.Upsert(ctx, "calc", mustEdge(t, "e1", "a", "b", entities.RelationPrerequisite)))
	require.NoError(t, store.Upsert(ctx, "calc", mustEdge(t, "e1", "a", "c", entities.RelationPrerequisite)))

	in, err := store.Incoming(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, in)

	in, err = store.Incoming(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, in, 1)
}

func TestStore_Deactivate(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	store.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, store.Upsert(ctx, "calc", mustEdge(t, "e1", "a", "b", entities.RelationPrerequisite)))
	require.NoError(t, store.Deactivate(ctx, "e1"))
	require.NoError(t, store.Deactivate(ctx, "e1"), "deactivating twice is a no-op")

	out, err := store.Outgoing(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, out)

	err = store.Deactivate(ctx, "ghost")
	assert.True(t, errors.Is(err, entities.ErrEdgeNotFound))
}
