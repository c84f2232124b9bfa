// Package redis provides the cache layer used by the repository: msgpack
// serialized values with TTL, pattern invalidation, and dependency sets
// that let a relationship update invalidate every cached read that
// touched the affected entities.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache key constants for consistent key generation across the library
const (
	cacheKeyPrefix        = "rel4go"
	cacheKeySeparator     = ":"
	cacheDependencyPrefix = "deps"
)

// Manager manages Redis connections and cache operations
type Manager struct {
	config  *Config
	client  *redis.Client
	metrics *Metrics
}

// NewManager creates a new Redis cache manager
func NewManager(config *Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{
		config:  config,
		metrics: NewMetrics(),
	}

	if config.Enabled {
		manager.client = redis.NewClient(&redis.Options{
			Addr:            config.GetAddr(),
			Password:        config.Password,
			DB:              config.Database,
			PoolSize:        config.PoolSize,
			MinIdleConns:    config.MinIdleConns,
			ConnMaxLifetime: config.MaxConnAge,
			PoolTimeout:     config.PoolTimeout,
			ConnMaxIdleTime: config.IdleTimeout,
			ReadTimeout:     config.ReadTimeout,
			WriteTimeout:    config.WriteTimeout,
			DialTimeout:     config.DialTimeout,
		})
	}

	return manager, nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Metrics returns a snapshot of cache performance counters
func (m *Manager) Metrics() MetricsSnapshot {
	return m.metrics.GetSnapshot()
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// GetValue retrieves a cached value into dest, msgpack-decoded
func (m *Manager) GetValue(ctx context.Context, key string, dest interface{}) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	start := time.Now()
	result := m.client.Get(ctx, key)
	m.metrics.RecordGet(time.Since(start))

	if result.Err() == redis.Nil {
		m.metrics.RecordCacheMiss()
		return ErrKeyNotFound
	}
	if result.Err() != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis get error: %w", result.Err())
	}

	data, err := result.Bytes()
	if err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("redis get error: %w", err)
	}
	if err := msgpack.Unmarshal(data, dest); err != nil {
		m.metrics.RecordCacheError()
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	m.metrics.RecordCacheHit()
	return nil
}

// SetValue stores a msgpack-encoded value with the default TTL
func (m *Manager) SetValue(ctx context.Context, key string, value interface{}) error {
	return m.SetValueWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetValueWithTTL stores a msgpack-encoded value with a custom TTL
func (m *Manager) SetValueWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	start := time.Now()
	result := m.client.Set(ctx, key, data, ttl)
	m.metrics.RecordSet(time.Since(start))

	return result.Err()
}

// Delete removes keys from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	result := m.client.Del(ctx, keys...)
	m.metrics.RecordDelete(time.Since(start))

	return result.Err()
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	var cursor uint64
	const scanBatchSize = 100

	for {
		batch, next, err := m.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		// Delete keys in batches to avoid large atomic operations
		if len(batch) > 0 {
			if err := m.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
			m.metrics.RecordInvalidation()
		}

		// cursor == 0 means we've iterated through all keys
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return nil
}

// AddDependency links a cache key to an entity, so a later change to
// that entity (including a relationship update that touches it) can
// invalidate every cached read the entity participated in.
func (m *Manager) AddDependency(ctx context.Context, entityType string, entityID interface{}, cacheKey string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	dependencyKey := m.dependencyKey(entityType, entityID)
	if err := m.client.SAdd(ctx, dependencyKey, cacheKey).Err(); err != nil {
		return fmt.Errorf("failed to add dependency: %w", err)
	}
	m.metrics.RecordDependency()

	// TTL on dependency sets prevents unbounded growth
	if err := m.client.Expire(ctx, dependencyKey, m.config.DefaultTTL*2).Err(); err != nil {
		m.metrics.RecordCacheError()
	}

	return nil
}

// InvalidateEntityDependencies removes every cache key registered as
// depending on the given entity, followed by the dependency set itself.
func (m *Manager) InvalidateEntityDependencies(ctx context.Context, entityType string, entityID interface{}) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	dependencyKey := m.dependencyKey(entityType, entityID)
	keys, err := m.client.SMembers(ctx, dependencyKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read dependencies: %w", err)
	}

	if len(keys) > 0 {
		if err := m.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete dependent keys: %w", err)
		}
		m.metrics.RecordInvalidation()
	}

	return m.client.Del(ctx, dependencyKey).Err()
}

// dependencyKey builds the set key tracking reads that depend on one entity
// Example: "rel4go:deps:departments:7"
func (m *Manager) dependencyKey(entityType string, entityID interface{}) string {
	return fmt.Sprintf("%s%s%s%s%s%s%v", cacheKeyPrefix, cacheKeySeparator,
		cacheDependencyPrefix, cacheKeySeparator, entityType, cacheKeySeparator, entityID)
}
