package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	domainconfig "conceptgraph/domain/config"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Environment string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	SourceIndex   string // GSI1 - edges by source, concepts by scope
	TargetIndex   string // GSI2 - edges by target
	EventBusName  string
	EventSource   string

	// Audit events expire after this long; zero keeps them
	EventRetention time.Duration

	// Scope lock
	LockTable string
	LockTTL   time.Duration

	// Embedded store for offline tooling
	BadgerDir string

	// Mastery collaborator
	MasteryCacheTTL int // seconds

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableEvents  bool
	WatchConfig   bool

	// Engine rules, overlaid from ConfigFile when set
	ConfigFile string
	Domain     *domainconfig.DomainConfig
}

// LoadConfig loads configuration from environment variables and the
// optional YAML file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServiceName:   getEnv("SERVICE_NAME", "conceptgraph"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "conceptgraph")),
		SourceIndex:   getEnv("INDEX_NAME", "GSI1"),
		TargetIndex:   getEnv("GSI2_INDEX_NAME", "GSI2"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "conceptgraph-events"),
		EventSource:   getEnv("EVENT_SOURCE", "conceptgraph.relationships"),

		EventRetention: getEnvDuration("EVENT_RETENTION", 90*24*time.Hour),

		LockTable: getEnv("LOCK_TABLE", ""),
		LockTTL:   getEnvDuration("LOCK_TTL", 30*time.Second),

		BadgerDir: getEnv("BADGER_DIR", ""),

		MasteryCacheTTL: getEnvInt("MASTERY_CACHE_TTL", 300),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableEvents:  getEnvBool("ENABLE_EVENTS", true),
		WatchConfig:   getEnvBool("WATCH_CONFIG", false),

		ConfigFile: getEnv("CONFIG_FILE", ""),
	}

	if cfg.LockTable == "" {
		cfg.LockTable = cfg.DynamoDBTable
	}

	domain, err := LoadDomainConfig(cfg.Environment, cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Domain = domain

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.EnableEvents && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if c.MasteryCacheTTL < 0 {
		return fmt.Errorf("MASTERY_CACHE_TTL must be non-negative, got %d", c.MasteryCacheTTL)
	}
	if c.Domain == nil {
		return fmt.Errorf("domain configuration missing")
	}
	return c.Domain.Validate()
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration parses values like "30s" or "2m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
