package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable rules of the concept graph engine
type DomainConfig struct {
	// Depth constraints
	MaxDepthThreshold int `yaml:"max_depth_threshold"`

	// Traversal defaults, applied when a request leaves a field at zero
	DefaultTraversalDepth   int           `yaml:"default_traversal_depth"`
	DefaultTraversalTimeout time.Duration `yaml:"default_traversal_timeout"`
	DefaultFanout           int           `yaml:"default_fanout"`
	MaxTraversalDepth       int           `yaml:"max_traversal_depth"`
	RelevanceDecay          float64       `yaml:"relevance_decay"`

	// Strength classification thresholds on edge weight
	MandatoryWeight   float64 `yaml:"mandatory_weight"`
	RecommendedWeight float64 `yaml:"recommended_weight"`
	DefaultEdgeWeight float64 `yaml:"default_edge_weight"`

	// Health score penalties
	CyclePenalty   float64 `yaml:"cycle_penalty"`
	OrphanPenalty  float64 `yaml:"orphan_penalty"`
	DepthPenalty   float64 `yaml:"depth_penalty"`
	WarningPenalty float64 `yaml:"warning_penalty"`

	// Repair
	MaxRepairPasses int `yaml:"max_repair_passes"`
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxDepthThreshold: 5,

		DefaultTraversalDepth:   3,
		DefaultTraversalTimeout: 5 * time.Second,
		DefaultFanout:           10,
		MaxTraversalDepth:       10,
		RelevanceDecay:          0.7,

		MandatoryWeight:   0.8,
		RecommendedWeight: 0.5,
		DefaultEdgeWeight: 0.5,

		CyclePenalty:   20,
		OrphanPenalty:  2,
		DepthPenalty:   5,
		WarningPenalty: 1,

		MaxRepairPasses: 1,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Traversal feeds request-time context gathering
	config.DefaultTraversalTimeout = 2 * time.Second
	config.MaxTraversalDepth = 5

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.DefaultTraversalTimeout = 30 * time.Second
	config.MaxTraversalDepth = 20
	config.MaxRepairPasses = 3

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxDepthThreshold < 0 {
		return fmt.Errorf("max_depth_threshold must be non-negative, got %d", c.MaxDepthThreshold)
	}
	if c.DefaultTraversalDepth < 0 || c.MaxTraversalDepth < c.DefaultTraversalDepth {
		return fmt.Errorf("traversal depth defaults invalid: default=%d max=%d",
			c.DefaultTraversalDepth, c.MaxTraversalDepth)
	}
	if c.DefaultTraversalTimeout <= 0 {
		return fmt.Errorf("default_traversal_timeout must be positive")
	}
	if c.DefaultFanout <= 0 {
		return fmt.Errorf("default_fanout must be positive, got %d", c.DefaultFanout)
	}
	if c.RelevanceDecay <= 0 || c.RelevanceDecay > 1 {
		return fmt.Errorf("relevance_decay must be in (0,1], got %f", c.RelevanceDecay)
	}
	if c.RecommendedWeight < 0 || c.MandatoryWeight > 1 || c.RecommendedWeight > c.MandatoryWeight {
		return fmt.Errorf("strength thresholds invalid: recommended=%f mandatory=%f",
			c.RecommendedWeight, c.MandatoryWeight)
	}
	if c.DefaultEdgeWeight < 0 || c.DefaultEdgeWeight > 1 {
		return fmt.Errorf("default_edge_weight must be in [0,1], got %f", c.DefaultEdgeWeight)
	}
	if c.MaxRepairPasses < 1 {
		return fmt.Errorf("max_repair_passes must be at least 1, got %d", c.MaxRepairPasses)
	}
	return nil
}
