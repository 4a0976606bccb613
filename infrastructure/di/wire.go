//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"conceptgraph/application/ports"
	"conceptgraph/infrastructure/config"
	"conceptgraph/infrastructure/persistence/badger"
)

// CoreSet builds the engine once its ports are bound
var CoreSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideMetrics,
	ProvideTracer,
	ProvideRelationshipService,
	ProvideConfigWatcher,
	wire.Struct(new(Container), "*"),
)

// AWSSet binds the ports to DynamoDB and EventBridge
var AWSSet = wire.NewSet(
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideTableConfig,
	ProvideNodeRepository,
	ProvideEdgeRepository,
	ProvideDistributedLock,
	ProvideEventStore,
	ProvideEventPublisher,
	ProvideInMemoryCache,
	ProvideMasteryLookup,
)

// LocalSet binds the ports to the embedded store for offline tooling
var LocalSet = wire.NewSet(
	ProvideBadgerStore,
	wire.Bind(new(ports.NodeRepository), new(*badger.Store)),
	wire.Bind(new(ports.EdgeRepository), new(*badger.Store)),
	ProvideLocalLocker,
	ProvideLocalEventLog,
	ProvideNoPublisher,
	ProvideNoMastery,
)

// InitializeContainer creates a container backed by AWS services
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(CoreSet, AWSSet)
	return nil, nil, nil
}

// InitializeLocalContainer creates a container backed by BadgerDB
func InitializeLocalContainer(cfg *config.Config) (*Container, func(), error) {
	wire.Build(CoreSet, LocalSet)
	return nil, nil, nil
}
