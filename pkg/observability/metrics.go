package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the engine. Each collector owns
// its registry so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// Validation metrics
	Validations *prometheus.CounterVec
	Warnings    *prometheus.CounterVec

	// Planning and traversal
	Operations       *prometheus.HistogramVec
	TraversalVisited prometheus.Histogram
	PartialResults   *prometheus.CounterVec

	// Repair metrics
	EdgesDeactivated prometheus.Counter
	HealthScore      *prometheus.GaugeVec

	// Repository metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec

	// Cache and breaker metrics
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	BreakerStates *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relationship_validations_total",
				Help:      "Relationship proposals by outcome",
			},
			[]string{"type", "outcome"},
		),
		Warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_warnings_total",
				Help:      "Non-fatal warnings raised on accepted proposals",
			},
			[]string{"code"},
		),
		Operations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Engine operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		TraversalVisited: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "traversal_nodes_visited",
				Help:      "Concepts visited per traversal",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		PartialResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "traversal_partial_total",
				Help:      "Traversals that stopped early",
			},
			[]string{"reason"},
		),
		EdgesDeactivated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_deactivated_total",
				Help:      "Prerequisite edges deactivated by cycle repair",
			},
		),
		HealthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_health_score",
				Help:      "Last computed health score per scope",
			},
			[]string{"scope"},
		),
		DBOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),
		DBDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_operation_duration_seconds",
				Help:      "Database operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
		),
		BreakerStates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	c.registry.MustRegister(
		c.Validations,
		c.Warnings,
		c.Operations,
		c.TraversalVisited,
		c.PartialResults,
		c.EdgesDeactivated,
		c.HealthScore,
		c.DBOperations,
		c.DBDuration,
		c.CacheHits,
		c.CacheMisses,
		c.BreakerStates,
	)
	return c
}

// Registry returns the registry holding this collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveOperation records how long an engine operation took
func (c *Collector) ObserveOperation(operation string, started time.Time) {
	c.Operations.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordDBOperation records a repository call
func (c *Collector) RecordDBOperation(operation, table string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.DBOperations.WithLabelValues(operation, table, status).Inc()
	c.DBDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())
}
