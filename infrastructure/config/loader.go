package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	domainconfig "conceptgraph/domain/config"
)

// LoadDomainConfig builds the engine rules for an environment. When path is
// non-empty the YAML file is decoded over the environment defaults, so a
// file only needs the keys it changes. A missing file is an error because
// the path was asked for explicitly.
//
// Loading order (lowest to highest priority):
//  1. Environment defaults (domain/config)
//  2. YAML file at path
//  3. Individual environment variables (MAX_DEPTH_THRESHOLD, ...)
func LoadDomainConfig(environment, path string) (*domainconfig.DomainConfig, error) {
	cfg := domainconfig.LoadDomainConfig(environment)

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
		}
		defer file.Close()

		if err := DecodeDomainConfig(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyDomainEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// DecodeDomainConfig overlays YAML from r onto cfg. Unknown keys are
// rejected so typos in threshold names do not silently fall back to defaults.
func DecodeDomainConfig(r io.Reader, cfg *domainconfig.DomainConfig) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(cfg)
}

// applyDomainEnv lets deployments tune the most common thresholds without a file
func applyDomainEnv(cfg *domainconfig.DomainConfig) {
	cfg.MaxDepthThreshold = getEnvInt("MAX_DEPTH_THRESHOLD", cfg.MaxDepthThreshold)
	cfg.DefaultTraversalDepth = getEnvInt("DEFAULT_TRAVERSAL_DEPTH", cfg.DefaultTraversalDepth)
	cfg.DefaultTraversalTimeout = getEnvDuration("DEFAULT_TRAVERSAL_TIMEOUT", cfg.DefaultTraversalTimeout)
	cfg.DefaultFanout = getEnvInt("DEFAULT_FANOUT", cfg.DefaultFanout)
	cfg.MaxRepairPasses = getEnvInt("MAX_REPAIR_PASSES", cfg.MaxRepairPasses)
}
