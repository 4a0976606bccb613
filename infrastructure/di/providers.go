package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"conceptgraph/application/ports"
	"conceptgraph/application/services"
	domainconfig "conceptgraph/domain/config"
	"conceptgraph/infrastructure/config"
	"conceptgraph/infrastructure/mastery"
	"conceptgraph/infrastructure/messaging/eventbridge"
	"conceptgraph/infrastructure/persistence/badger"
	"conceptgraph/infrastructure/persistence/dynamodb"
	"conceptgraph/infrastructure/persistence/memory"
	"conceptgraph/pkg/observability"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	), nil
}

// ProvideDomainConfig exposes the engine rules loaded with the service config
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.Domain
}

// ProvideMetrics creates the Prometheus collector namespaced by service name
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(strings.ReplaceAll(cfg.ServiceName, "-", "_"))
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(cfg.ServiceName)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideTableConfig names the graph table and its indexes
func ProvideTableConfig(cfg *config.Config) dynamodb.TableConfig {
	return dynamodb.TableConfig{
		TableName:   cfg.DynamoDBTable,
		SourceIndex: cfg.SourceIndex,
		TargetIndex: cfg.TargetIndex,
	}
}

// ProvideNodeRepository creates a node repository
func ProvideNodeRepository(client *awsdynamodb.Client, table dynamodb.TableConfig, metrics *observability.Collector, logger *zap.Logger) ports.NodeRepository {
	return dynamodb.NewNodeRepository(client, table, metrics, logger)
}

// ProvideEdgeRepository creates an edge repository
func ProvideEdgeRepository(client *awsdynamodb.Client, table dynamodb.TableConfig, metrics *observability.Collector, logger *zap.Logger) ports.EdgeRepository {
	return dynamodb.NewEdgeRepository(client, table, metrics, logger)
}

// ProvideDistributedLock creates the per-scope writer lock. The owner is
// generated so every Lambda container holds its own identity.
func ProvideDistributedLock(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ScopeLocker {
	return dynamodb.NewDistributedLock(client, cfg.LockTable, "", cfg.LockTTL, logger)
}

// ProvideEventStore creates an event store sharing the graph table
func ProvideEventStore(client *awsdynamodb.Client, table dynamodb.TableConfig, cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) ports.EventStore {
	return dynamodb.NewEventStore(client, table, cfg.EventRetention, metrics, logger)
}

// ProvideEventPublisher creates the EventBridge publisher, or nil when
// events are disabled
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if !cfg.EnableEvents {
		return nil
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
}

// ProvideInMemoryCache creates the process-local cache and its cleanup
func ProvideInMemoryCache() (ports.Cache, func()) {
	cache := NewInMemoryCache(time.Minute)
	return cache, cache.Stop
}

// ProvideMasteryLookup reads mastery from the graph table through the cache
// and circuit breaker
func ProvideMasteryLookup(
	client *awsdynamodb.Client,
	table dynamodb.TableConfig,
	cache ports.Cache,
	cfg *config.Config,
	metrics *observability.Collector,
	logger *zap.Logger,
) ports.MasteryLookup {
	source := dynamodb.NewMasteryRepository(client, table, metrics, logger)

	settings := mastery.DefaultConfig()
	settings.CacheTTL = cfg.MasteryCacheTTL
	return mastery.NewCachedLookup(source, cache, settings, metrics, logger)
}

// ProvideRelationshipService assembles the graph engine
func ProvideRelationshipService(
	nodeRepo ports.NodeRepository,
	edgeRepo ports.EdgeRepository,
	locker ports.ScopeLocker,
	publisher ports.EventPublisher,
	eventStore ports.EventStore,
	masteryLookup ports.MasteryLookup,
	domainCfg *domainconfig.DomainConfig,
	metrics *observability.Collector,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *services.RelationshipService {
	return services.NewRelationshipService(
		nodeRepo,
		edgeRepo,
		locker,
		publisher,
		eventStore,
		masteryLookup,
		domainCfg,
		metrics,
		tracer,
		logger,
	)
}

// ProvideConfigWatcher hot-reloads the engine rules from CONFIG_FILE when
// WATCH_CONFIG is set. It returns nil otherwise.
func ProvideConfigWatcher(cfg *config.Config, svc *services.RelationshipService, logger *zap.Logger) (*config.DomainConfigWatcher, func(), error) {
	if !cfg.WatchConfig || cfg.ConfigFile == "" {
		return nil, func() {}, nil
	}

	watcher, err := config.NewDomainConfigWatcher(cfg.Environment, cfg.ConfigFile, cfg.Domain, logger)
	if err != nil {
		return nil, nil, err
	}
	watcher.OnChange(func(next *domainconfig.DomainConfig) {
		if err := svc.Reconfigure(next); err != nil {
			logger.Error("Rejected reloaded engine config", zap.Error(err))
		}
	})
	return watcher, watcher.Stop, nil
}

// ProvideBadgerStore opens the embedded store used by offline tooling
func ProvideBadgerStore(cfg *config.Config, metrics *observability.Collector, logger *zap.Logger) (*badger.Store, func(), error) {
	store, err := badger.Open(badger.Config{
		Path:       cfg.BadgerDir,
		InMemory:   cfg.BadgerDir == "",
		SyncWrites: true,
	}, metrics, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close badger store", zap.Error(err))
		}
	}, nil
}

// ProvideLocalLocker serializes writers inside one process
func ProvideLocalLocker() ports.ScopeLocker {
	return memory.NewScopeLocker()
}

// ProvideLocalEventLog keeps the audit trail in memory for the session
func ProvideLocalEventLog() ports.EventStore {
	return memory.NewEventLog()
}

// ProvideNoPublisher disables event publication for offline tooling
func ProvideNoPublisher() ports.EventPublisher {
	return nil
}

// ProvideNoMastery disables mastery annotations for offline tooling
func ProvideNoMastery() ports.MasteryLookup {
	return nil
}
