// Package config loads the file-based configuration surface and supports
// atomic hot reload.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/structcache/structcache/internal/cache"
	"github.com/structcache/structcache/internal/resilience"
)

// Config is the file-level configuration.
type Config struct {
	Cache        CacheConfig        `yaml:"cache"`
	Gate         GateConfig         `yaml:"gate"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// CacheConfig mirrors the recognized cache options.
type CacheConfig struct {
	DefaultTTLSeconds       int   `yaml:"default_ttl_seconds"`
	MaxEntries              int   `yaml:"max_entries"`
	MaxMemoryMB             int64 `yaml:"max_memory_mb"`
	EnableCompression       *bool `yaml:"enable_compression"`
	CompressionMinSizeBytes int   `yaml:"compression_min_size_bytes"`
}

// GateConfig mirrors the recognized resilience options.
type GateConfig struct {
	MaxFailures         int    `yaml:"max_failures"`
	ResetTimeoutSeconds int    `yaml:"reset_timeout_seconds"`
	BaseBackoffDelay    string `yaml:"base_backoff_delay"`
}

// OrchestratorConfig mirrors the recognized orchestrator options.
type OrchestratorConfig struct {
	MaxRetries *int `yaml:"max_retries"`
}

// Default returns a config matching the package defaults.
func Default() *Config {
	enabled := true
	return &Config{
		Cache: CacheConfig{
			DefaultTTLSeconds:       3600,
			MaxEntries:              1000,
			MaxMemoryMB:             100,
			EnableCompression:       &enabled,
			CompressionMinSizeBytes: 1024,
		},
		Gate: GateConfig{
			MaxFailures:         5,
			ResetTimeoutSeconds: 60,
			BaseBackoffDelay:    "1s",
		},
	}
}

// Load parses YAML config bytes and validates them.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads and parses a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied config.
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(data)
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Cache.DefaultTTLSeconds < 0 {
		return fmt.Errorf("cache.default_ttl_seconds must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if c.Cache.MaxMemoryMB < 0 {
		return fmt.Errorf("cache.max_memory_mb must not be negative")
	}
	if c.Gate.MaxFailures < 0 {
		return fmt.Errorf("gate.max_failures must not be negative")
	}
	if c.Gate.ResetTimeoutSeconds < 0 {
		return fmt.Errorf("gate.reset_timeout_seconds must not be negative")
	}
	if c.Gate.BaseBackoffDelay != "" {
		if _, err := time.ParseDuration(c.Gate.BaseBackoffDelay); err != nil {
			return fmt.Errorf("gate.base_backoff_delay: %w", err)
		}
	}
	if c.Orchestrator.MaxRetries != nil && *c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries must not be negative")
	}
	return nil
}

// CacheConfig converts the file form into the cache package's config.
func (c *Config) CacheConfig() cache.Config {
	out := cache.DefaultConfig()
	if c.Cache.DefaultTTLSeconds > 0 {
		out.DefaultTTL = time.Duration(c.Cache.DefaultTTLSeconds) * time.Second
	}
	out.MaxEntries = c.Cache.MaxEntries
	out.MaxMemoryBytes = c.Cache.MaxMemoryMB * 1024 * 1024
	if c.Cache.EnableCompression != nil {
		out.EnableCompression = *c.Cache.EnableCompression
	}
	if c.Cache.CompressionMinSizeBytes > 0 {
		out.CompressionMinSize = c.Cache.CompressionMinSizeBytes
	}
	return out
}

// GateConfig converts the file form into the resilience package's config.
func (c *Config) GateConfig() resilience.Config {
	out := resilience.DefaultConfig()
	if c.Gate.MaxFailures > 0 {
		out.MaxFailures = c.Gate.MaxFailures
	}
	if c.Gate.ResetTimeoutSeconds > 0 {
		out.ResetTimeout = time.Duration(c.Gate.ResetTimeoutSeconds) * time.Second
	}
	if c.Gate.BaseBackoffDelay != "" {
		if d, err := time.ParseDuration(c.Gate.BaseBackoffDelay); err == nil {
			out.BaseDelay = d
		}
	}
	return out
}
