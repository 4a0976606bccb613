// Package di wires the relationship engine to its adapters with google/wire.
// Run `wire ./infrastructure/di` after changing a provider set.
package di

import (
	"go.uber.org/zap"

	"conceptgraph/application/ports"
	"conceptgraph/application/services"
	"conceptgraph/infrastructure/config"
	"conceptgraph/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector
	Tracer  *observability.Tracer
	Service *services.RelationshipService

	// Nodes lets tooling load concepts; relationships go through Service
	Nodes ports.NodeRepository

	// Watcher is nil unless WATCH_CONFIG is set
	Watcher *config.DomainConfigWatcher
}
