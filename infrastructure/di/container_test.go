package di

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conceptgraph/domain/config"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	infraconfig "conceptgraph/infrastructure/config"
)

func localConfig() *infraconfig.Config {
	return &infraconfig.Config{
		ServiceName: "conceptgraph-test",
		Environment: "development",
		LogLevel:    "error",
		Domain:      config.DefaultDomainConfig(),
	}
}

func TestInitializeLocalContainer(t *testing.T) {
	ctx := context.Background()
	container, cleanup, err := InitializeLocalContainer(localConfig())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.Nil(t, container.Watcher)
	require.NotNil(t, container.Service)

	for _, id := range []string{"functions", "limits", "derivatives"} {
		node, err := entities.NewConceptNode(valueobjects.ConceptID(id), "calc", id, 2)
		require.NoError(t, err)
		require.NoError(t, container.Nodes.Save(ctx, node))
	}

	propose := func(source, target string) error {
		_, err := container.Service.ProposeRelationship(ctx, "calc", entities.RelationshipProposal{
			SourceID: valueobjects.ConceptID(source),
			TargetID: valueobjects.ConceptID(target),
			Type:     entities.RelationPrerequisite,
			Weight:   0.9,
		})
		return err
	}
	require.NoError(t, propose("derivatives", "limits"))
	require.NoError(t, propose("limits", "functions"))

	err = propose("functions", "derivatives")
	var cycleErr *entities.CycleError
	require.True(t, errors.As(err, &cycleErr))

	plan, err := container.Service.LearningOrder(ctx, "calc", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.ConceptID{"functions", "limits", "derivatives"}, plan.Order)
}

func TestInitializeLocalContainer_InvalidLogLevel(t *testing.T) {
	cfg := localConfig()
	cfg.LogLevel = "loud"
	_, _, err := InitializeLocalContainer(cfg)
	assert.Error(t, err)
}
