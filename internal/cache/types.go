// Package cache provides the in-memory validated-response cache: TTL plus
// true-LRU eviction, a memory budget enforced before insert, optional gzip
// compression, and health reporting. State is process-lifetime only.
package cache

import "time"

// Config holds configuration for the response cache.
type Config struct {
	// DefaultTTL applies when a Set call passes a non-positive TTL.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxEntries bounds the entry count. Zero disables the bound.
	MaxEntries int `yaml:"max_entries"`

	// MaxMemoryBytes bounds total stored bytes. Zero disables the bound.
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`

	// EnableCompression turns on gzip for large values.
	EnableCompression bool `yaml:"enable_compression"`

	// CompressionMinSize is the minimum serialized size, in bytes, before
	// compression is attempted.
	CompressionMinSize int `yaml:"compression_min_size"`

	// SweepInterval is how often the background sweep removes expired
	// entries. Zero disables the sweep; expiry is still detected on read.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	Health HealthThresholds `yaml:"health"`
}

// HealthThresholds drive the Health() status derivation.
type HealthThresholds struct {
	// MemoryWarnPercent triggers an issue when memory usage exceeds it.
	MemoryWarnPercent float64 `yaml:"memory_warn_percent"`
	// EntryWarnPercent triggers an issue when entry usage exceeds it.
	EntryWarnPercent float64 `yaml:"entry_warn_percent"`
	// MinHitRate triggers an issue when the hit rate falls below it, once
	// MinSamples lookups have been observed.
	MinHitRate float64 `yaml:"min_hit_rate"`
	MinSamples int64   `yaml:"min_samples"`
	// MaxEvictionRate triggers an issue when evictions/sets exceeds it.
	MaxEvictionRate float64 `yaml:"max_eviction_rate"`
	// CriticalIssueCount is the number of simultaneous issues at which the
	// status becomes critical rather than warning.
	CriticalIssueCount int `yaml:"critical_issue_count"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:         time.Hour,
		MaxEntries:         1000,
		MaxMemoryBytes:     100 * 1024 * 1024,
		EnableCompression:  true,
		CompressionMinSize: 1024,
		SweepInterval:      time.Minute,
		Health: HealthThresholds{
			MemoryWarnPercent:  90,
			EntryWarnPercent:   90,
			MinHitRate:         0.1,
			MinSamples:         100,
			MaxEvictionRate:    0.5,
			CriticalIssueCount: 2,
		},
	}
}

// entry is a stored cache record. All metadata mutations happen under the
// cache mutex.
type entry struct {
	key          string
	value        []byte
	createdAt    time.Time
	ttl          time.Duration
	accessCount  int64
	lastAccess   time.Time
	compressed   bool
	originalSize int64
}

// size returns the bytes this entry charges against the memory budget.
func (e *entry) size() int64 {
	return int64(len(e.value))
}

func (e *entry) expiresAt() time.Time {
	return e.createdAt.Add(e.ttl)
}

// EntryInfo is a read-only snapshot of one entry's metadata.
type EntryInfo struct {
	Key          string        `json:"key"`
	CreatedAt    time.Time     `json:"created_at"`
	TTL          time.Duration `json:"ttl"`
	AccessCount  int64         `json:"access_count"`
	LastAccess   time.Time     `json:"last_access"`
	Compressed   bool          `json:"compressed"`
	OriginalSize int64         `json:"original_size"`
	StoredSize   int64         `json:"stored_size"`
}

// Stats holds cache counters for monitoring.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	TTLEvictions  int64   `json:"ttl_evictions"`
	SizeEvictions int64   `json:"size_evictions"`
	HitRate       float64 `json:"hit_rate"`
}

// SizeInfo describes current occupancy against the configured limits.
type SizeInfo struct {
	Entries        int     `json:"entries"`
	MaxEntries     int     `json:"max_entries"`
	MemoryBytes    int64   `json:"memory_bytes"`
	MaxMemoryBytes int64   `json:"max_memory_bytes"`
	MemoryPercent  float64 `json:"memory_percent"`
	EntryPercent   float64 `json:"entry_percent"`
}

// HealthStatus is the derived cache health level.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthReport combines the derived status with the issues that triggered
// it and the underlying numbers.
type HealthReport struct {
	Status HealthStatus `json:"status"`
	Issues []string     `json:"issues,omitempty"`
	Stats  Stats        `json:"stats"`
	Size   SizeInfo     `json:"size"`
}
