package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 3600, cfg.Cache.DefaultTTLSeconds)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, int64(100), cfg.Cache.MaxMemoryMB)
	assert.Equal(t, 5, cfg.Gate.MaxFailures)
	assert.Equal(t, 60, cfg.Gate.ResetTimeoutSeconds)
	assert.Nil(t, cfg.Orchestrator.MaxRetries)
}

func TestLoad_FullDocument(t *testing.T) {
	doc := `
cache:
  default_ttl_seconds: 120
  max_entries: 50
  max_memory_mb: 8
  enable_compression: false
  compression_min_size_bytes: 4096
gate:
  max_failures: 3
  reset_timeout_seconds: 30
  base_backoff_delay: 250ms
orchestrator:
  max_retries: 4
`
	cfg, err := Load([]byte(doc))
	require.NoError(t, err)

	cacheCfg := cfg.CacheConfig()
	assert.Equal(t, 2*time.Minute, cacheCfg.DefaultTTL)
	assert.Equal(t, 50, cacheCfg.MaxEntries)
	assert.Equal(t, int64(8*1024*1024), cacheCfg.MaxMemoryBytes)
	assert.False(t, cacheCfg.EnableCompression)
	assert.Equal(t, 4096, cacheCfg.CompressionMinSize)

	gateCfg := cfg.GateConfig()
	assert.Equal(t, 3, gateCfg.MaxFailures)
	assert.Equal(t, 30*time.Second, gateCfg.ResetTimeout)
	assert.Equal(t, 250*time.Millisecond, gateCfg.BaseDelay)

	require.NotNil(t, cfg.Orchestrator.MaxRetries)
	assert.Equal(t, 4, *cfg.Orchestrator.MaxRetries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", ":\n  - not yaml"},
		{"negative ttl", "cache:\n  default_ttl_seconds: -1"},
		{"negative failures", "gate:\n  max_failures: -2"},
		{"bad backoff", "gate:\n  base_backoff_delay: nonsense"},
		{"negative retries", "orchestrator:\n  max_retries: -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestManager_LoadAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  max_entries: 7\n"), 0o600))

	m, err := NewManager(path, nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 7, m.Get().Cache.MaxEntries)
}

func TestManager_MissingFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
