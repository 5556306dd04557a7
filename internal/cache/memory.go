package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/structcache/structcache/internal/metrics"
)

// ResponseCache is the in-memory store for validated results. All mutations
// (insert, evict, expire-on-read) are serialized by a single mutex so memory
// accounting can never race with the map.
type ResponseCache struct {
	mu sync.Mutex

	entries     map[string]*entry
	memoryBytes int64

	cfg Config

	hits          int64
	misses        int64
	sets          int64
	ttlEvictions  int64
	sizeEvictions int64

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	closeOnce   sync.Once

	logger *slog.Logger
}

// New creates a response cache and starts its background sweep when a sweep
// interval is configured.
func New(cfg Config, logger *slog.Logger) *ResponseCache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.CompressionMinSize <= 0 {
		cfg.CompressionMinSize = DefaultConfig().CompressionMinSize
	}
	if cfg.Health.CriticalIssueCount <= 0 {
		cfg.Health.CriticalIssueCount = DefaultConfig().Health.CriticalIssueCount
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &ResponseCache{
		entries:   make(map[string]*entry),
		cfg:       cfg,
		stopSweep: make(chan struct{}),
		logger:    logger,
	}

	if cfg.SweepInterval > 0 {
		c.sweepTicker = time.NewTicker(cfg.SweepInterval)
		go c.sweepLoop()
	}

	return c
}

func (c *ResponseCache) sweepLoop() {
	for {
		select {
		case <-c.sweepTicker.C:
			if n := c.ClearExpired(); n > 0 {
				c.logger.Debug("cache sweep removed expired entries", "count", n)
			}
		case <-c.stopSweep:
			return
		}
	}
}

// Get retrieves the value stored for key. The second return is false on a
// miss or when the entry was found expired (in which case it is removed and
// counted as both a miss and an eviction).
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}

	if time.Now().After(e.expiresAt()) {
		c.removeLocked(e)
		c.misses++
		c.ttlEvictions++
		metrics.CacheMisses.Inc()
		metrics.CacheEvictions.WithLabelValues("ttl").Inc()
		return nil, false
	}

	e.accessCount++
	e.lastAccess = time.Now()
	c.hits++
	metrics.CacheHits.Inc()

	return c.decode(e), true
}

// decode returns the entry's payload, decompressing when needed. A corrupt
// compressed payload degrades to the raw stored bytes rather than failing
// the read path.
func (c *ResponseCache) decode(e *entry) []byte {
	if !e.compressed {
		out := make([]byte, len(e.value))
		copy(out, e.value)
		return out
	}

	zr, err := gzip.NewReader(bytes.NewReader(e.value))
	if err == nil {
		if decoded, rerr := io.ReadAll(zr); rerr == nil {
			_ = zr.Close()
			return decoded
		}
		_ = zr.Close()
	}
	c.logger.Warn("cache decompression failed, returning raw bytes", "key", e.key)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out
}

// Set stores value under key with the given TTL (the default TTL when ttl
// is non-positive). Memory needed by the new entry is freed by evicting
// oldest-by-last-access entries before the insert.
func (c *ResponseCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	compressed := false

	if c.cfg.EnableCompression && len(value) >= c.cfg.CompressionMinSize {
		if packed, ok := compress(value); ok {
			stored = packed
			compressed = true
		}
	}

	now := time.Now()
	e := &entry{
		key:          key,
		value:        stored,
		createdAt:    now,
		ttl:          ttl,
		lastAccess:   now,
		compressed:   compressed,
		originalSize: int64(len(value)),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace any prior entry first so its size is released before the
	// budget check.
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	if c.cfg.MaxMemoryBytes > 0 {
		// Free space before inserting so the budget is not transiently
		// blown by the new entry. An entry larger than anything eviction
		// can free is still admitted.
		for c.memoryBytes+e.size() > c.cfg.MaxMemoryBytes && len(c.entries) > 0 {
			c.evictOldestLocked()
		}
	}

	c.entries[key] = e
	c.memoryBytes += e.size()
	c.sets++
	metrics.CacheSets.Inc()

	if c.cfg.MaxEntries > 0 {
		for len(c.entries) > c.cfg.MaxEntries {
			c.evictOldestLocked()
		}
	}
}

// evictOldestLocked removes the entry with the oldest last-access time and
// counts it as a size-limit eviction. Caller must hold the mutex.
func (c *ResponseCache) evictOldestLocked() {
	var victim *entry
	for _, e := range c.entries {
		if victim == nil || e.lastAccess.Before(victim.lastAccess) {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	c.removeLocked(victim)
	c.sizeEvictions++
	metrics.CacheEvictions.WithLabelValues("size").Inc()
}

// removeLocked deletes an entry and releases its memory accounting. Caller
// must hold the mutex.
func (c *ResponseCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.memoryBytes -= e.size()
}

// Invalidate removes key, reporting whether an entry was present.
func (c *ResponseCache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// ClearExpired removes every entry past its TTL and returns the count.
func (c *ResponseCache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, e := range c.entries {
		if now.After(e.expiresAt()) {
			c.removeLocked(e)
			c.ttlEvictions++
			metrics.CacheEvictions.WithLabelValues("ttl").Inc()
			removed++
		}
	}
	return removed
}

// CleanupStale removes entries whose last access (not creation) is older
// than maxAge. A non-positive maxAge defaults to twice the default TTL.
func (c *ResponseCache) CleanupStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = 2 * c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			c.removeLocked(e)
			c.ttlEvictions++
			metrics.CacheEvictions.WithLabelValues("stale").Inc()
			removed++
		}
	}
	return removed
}

// Flush removes all entries.
func (c *ResponseCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.memoryBytes = 0
}

// Len returns the number of stored entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Info returns a metadata snapshot for key without touching its access
// metadata.
func (c *ResponseCache) Info(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return EntryInfo{}, false
	}
	return EntryInfo{
		Key:          e.key,
		CreatedAt:    e.createdAt,
		TTL:          e.ttl,
		AccessCount:  e.accessCount,
		LastAccess:   e.lastAccess,
		Compressed:   e.compressed,
		OriginalSize: e.originalSize,
		StoredSize:   e.size(),
	}, true
}

// Stats returns a counter snapshot.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *ResponseCache) statsLocked() Stats {
	s := Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Sets:          c.sets,
		TTLEvictions:  c.ttlEvictions,
		SizeEvictions: c.sizeEvictions,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// SizeInfo returns occupancy against the configured limits.
func (c *ResponseCache) SizeInfo() SizeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeInfoLocked()
}

func (c *ResponseCache) sizeInfoLocked() SizeInfo {
	info := SizeInfo{
		Entries:        len(c.entries),
		MaxEntries:     c.cfg.MaxEntries,
		MemoryBytes:    c.memoryBytes,
		MaxMemoryBytes: c.cfg.MaxMemoryBytes,
	}
	if c.cfg.MaxMemoryBytes > 0 {
		info.MemoryPercent = 100 * float64(c.memoryBytes) / float64(c.cfg.MaxMemoryBytes)
	}
	if c.cfg.MaxEntries > 0 {
		info.EntryPercent = 100 * float64(len(c.entries)) / float64(c.cfg.MaxEntries)
	}
	return info
}

// Health derives a status from the configured thresholds. Each triggered
// threshold appends a human-readable issue; the status is critical once the
// issue count reaches the configured level, warning otherwise, healthy with
// no issues.
func (c *ResponseCache) Health() HealthReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.statsLocked()
	size := c.sizeInfoLocked()
	th := c.cfg.Health

	var issues []string
	if th.MemoryWarnPercent > 0 && size.MemoryPercent >= th.MemoryWarnPercent {
		issues = append(issues, fmt.Sprintf("memory usage at %.1f%% of budget", size.MemoryPercent))
	}
	if th.EntryWarnPercent > 0 && size.EntryPercent >= th.EntryWarnPercent {
		issues = append(issues, fmt.Sprintf("entry count at %.1f%% of limit", size.EntryPercent))
	}
	// A zero MinSamples means no sample floor; the check still waits for
	// the first lookup so an idle cache is not flagged.
	if lookups := stats.Hits + stats.Misses; th.MinHitRate > 0 && lookups > 0 && lookups >= th.MinSamples {
		if stats.HitRate < th.MinHitRate {
			issues = append(issues, fmt.Sprintf("hit rate %.2f below minimum %.2f", stats.HitRate, th.MinHitRate))
		}
	}
	if th.MaxEvictionRate > 0 && stats.Sets > 0 {
		rate := float64(stats.TTLEvictions+stats.SizeEvictions) / float64(stats.Sets)
		if rate > th.MaxEvictionRate {
			issues = append(issues, fmt.Sprintf("eviction rate %.2f above maximum %.2f", rate, th.MaxEvictionRate))
		}
	}

	status := HealthHealthy
	switch {
	case len(issues) >= th.CriticalIssueCount:
		status = HealthCritical
	case len(issues) > 0:
		status = HealthWarning
	}

	return HealthReport{Status: status, Issues: issues, Stats: stats, Size: size}
}

// Close stops the background sweep. Safe to call more than once.
func (c *ResponseCache) Close() {
	c.closeOnce.Do(func() {
		if c.sweepTicker != nil {
			c.sweepTicker.Stop()
		}
		close(c.stopSweep)
	})
}

// compress gzips data, reporting false when compression does not shrink it.
func compress(data []byte) ([]byte, bool) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, false
	}
	if err := zw.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(data) {
		return nil, false
	}
	return buf.Bytes(), true
}
