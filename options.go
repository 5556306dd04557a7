package structcache

import (
	"log/slog"
	"time"

	"github.com/structcache/structcache/internal/cache"
	"github.com/structcache/structcache/internal/resilience"
	"github.com/structcache/structcache/pkg/invoker"
	"github.com/structcache/structcache/pkg/schema"
)

// ClientConfig holds all configuration for the structcache client.
type ClientConfig struct {
	// Invoker is the model-invocation collaborator. Required.
	Invoker invoker.Invoker

	// Validator parses and validates raw model output against the target
	// schema. Defaults to the reflection-based validator.
	Validator schema.Validator

	// Cache configures the response cache.
	Cache cache.Config

	// Gate configures the per-target circuit breaker and backoff schedule.
	Gate resilience.Config

	// MaxRetries is the default retry budget per request (0 = single
	// attempt). Requests may override it.
	MaxRetries int

	// MaxBackoff caps the exponential backoff between attempts.
	MaxBackoff time.Duration

	// KeyPrefix is prepended to all generated cache keys.
	KeyPrefix string

	// ConfigFile optionally points at a YAML config file layered over the
	// option values above.
	ConfigFile string

	// WatchConfig enables hot reload of the config file.
	WatchConfig bool

	// Logger
	Logger *slog.Logger
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

// defaultConfig returns sensible defaults.
func defaultConfig() *ClientConfig {
	return &ClientConfig{
		Cache:      cache.DefaultConfig(),
		Gate:       resilience.DefaultConfig(),
		MaxRetries: 2,
		MaxBackoff: 30 * time.Second,
		Logger:     slog.Default(),
	}
}

// WithInvoker sets the model-invocation collaborator. Required.
//
// Example:
//
//	client, err := structcache.New(
//	    structcache.WithInvoker(myInvoker),
//	)
func WithInvoker(inv invoker.Invoker) Option {
	return func(c *ClientConfig) {
		c.Invoker = inv
	}
}

// WithValidator sets a custom output validator.
// This overrides the default reflection-based validator.
func WithValidator(v schema.Validator) Option {
	return func(c *ClientConfig) {
		c.Validator = v
	}
}

// WithCacheConfig sets the response cache configuration.
func WithCacheConfig(cfg cache.Config) Option {
	return func(c *ClientConfig) {
		c.Cache = cfg
	}
}

// WithCacheTTL sets the default cache TTL.
// Task-type TTLs and per-request cache control take precedence.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) {
		c.Cache.DefaultTTL = ttl
	}
}

// WithCacheLimits bounds the cache by entry count and memory.
// Zero disables the corresponding bound.
func WithCacheLimits(maxEntries int, maxMemoryBytes int64) Option {
	return func(c *ClientConfig) {
		c.Cache.MaxEntries = maxEntries
		c.Cache.MaxMemoryBytes = maxMemoryBytes
	}
}

// WithCompression enables gzip compression for cached values at or above
// minSize bytes. minSize <= 0 keeps the default threshold.
func WithCompression(enabled bool, minSize int) Option {
	return func(c *ClientConfig) {
		c.Cache.EnableCompression = enabled
		if minSize > 0 {
			c.Cache.CompressionMinSize = minSize
		}
	}
}

// WithGateConfig sets the circuit breaker configuration.
func WithGateConfig(cfg resilience.Config) Option {
	return func(c *ClientConfig) {
		c.Gate = cfg
	}
}

// WithRetry configures the default retry behavior.
// retries: retry budget after the first attempt (0 = no retries)
// backoff: initial backoff duration (exponential backoff is applied)
func WithRetry(retries int, backoff time.Duration) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = retries
		if backoff > 0 {
			c.Gate.BaseDelay = backoff
		}
	}
}

// WithMaxBackoff sets the maximum backoff duration between attempts.
// Use 0 to disable the cap.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *ClientConfig) {
		c.MaxBackoff = d
	}
}

// WithKeyPrefix namespaces all cache keys, letting several clients share
// metrics without colliding on keys.
func WithKeyPrefix(prefix string) Option {
	return func(c *ClientConfig) {
		c.KeyPrefix = prefix
	}
}

// WithConfigFile layers a YAML config file over the option values.
// The cache, gate, and retry settings from the file take precedence.
func WithConfigFile(path string) Option {
	return func(c *ClientConfig) {
		c.ConfigFile = path
	}
}

// WithConfigReload enables hot reload of the config file. Only the retry
// budget is applied to a running client; cache and gate limits take effect
// on the next client.
func WithConfigReload(enabled bool) Option {
	return func(c *ClientConfig) {
		c.WatchConfig = enabled
	}
}

// WithLogger sets the logger for the client.
// The logger is used for debug, info, and error messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}
