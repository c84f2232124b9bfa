package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()

	assert.NoError(t, config.Validate())
	assert.Equal(t, "localhost:6379", config.GetAddr())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips validation", func(c *Config) { c.Enabled = false; c.Host = "" }, ""},
		{"missing host", func(c *Config) { c.Host = "" }, "host is required"},
		{"bad port", func(c *Config) { c.Port = 0 }, "port must be positive"},
		{"bad ttl", func(c *Config) { c.DefaultTTL = 0 }, "default_ttl"},
		{"bad pool size", func(c *Config) { c.PoolSize = 0 }, "pool_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	_, err := NewManager(&Config{Enabled: true})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis config")
}

func TestDisabledManagerShortCircuits(t *testing.T) {
	manager, err := NewManager(&Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()

	assert.NoError(t, manager.Ping(ctx))
	assert.NoError(t, manager.Close())

	var dest string
	assert.True(t, IsCacheDisabled(manager.GetValue(ctx, "k", &dest)))
	assert.True(t, IsCacheDisabled(manager.SetValue(ctx, "k", "v")))
	assert.True(t, IsCacheDisabled(manager.Delete(ctx, "k")))
	assert.True(t, IsCacheDisabled(manager.InvalidatePattern(ctx, "k:*")))
	assert.True(t, IsCacheDisabled(manager.AddDependency(ctx, "departments", 1, "k")))
	assert.True(t, IsCacheDisabled(manager.InvalidateEntityDependencies(ctx, "departments", 1)))
}

func TestDependencyKeyFormat(t *testing.T) {
	manager, err := NewManager(&Config{Enabled: false})
	require.NoError(t, err)

	assert.Equal(t, "rel4go:deps:departments:7", manager.dependencyKey("departments", uint64(7)))
}

func TestMetricsSnapshot(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordCacheHit()
	metrics.RecordCacheHit()
	metrics.RecordCacheMiss()
	metrics.RecordCacheError()
	metrics.RecordGet(10 * time.Millisecond)
	metrics.RecordGet(20 * time.Millisecond)
	metrics.RecordSet(5 * time.Millisecond)
	metrics.RecordInvalidation()
	metrics.RecordDependency()

	snapshot := metrics.GetSnapshot()

	assert.Equal(t, uint64(2), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
	assert.Equal(t, uint64(1), snapshot.CacheErrors)
	assert.InDelta(t, 66.6, snapshot.CacheHitRate, 0.1)
	assert.Equal(t, uint64(2), snapshot.GetOperations)
	assert.Equal(t, 15*time.Millisecond, snapshot.AvgGetLatency)
	assert.Equal(t, 5*time.Millisecond, snapshot.AvgSetLatency)
	assert.Equal(t, time.Duration(0), snapshot.AvgDeleteLatency)
	assert.Equal(t, uint64(1), snapshot.InvalidationCount)
	assert.Equal(t, uint64(1), snapshot.DependencyCount)
}

func TestMetricsReset(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordCacheHit()
	metrics.RecordSet(time.Millisecond)

	metrics.Reset()

	snapshot := metrics.GetSnapshot()
	assert.Equal(t, uint64(0), snapshot.CacheHits)
	assert.Equal(t, uint64(0), snapshot.SetOperations)
	assert.Equal(t, float64(0), snapshot.CacheHitRate)
}
