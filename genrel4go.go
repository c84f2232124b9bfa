// Package rel4go provides many-to-many relationship reconciliation over
// GORM: diff-driven membership updates with existence validation, scoped
// transactional sessions for concurrent fan-out, a classified error
// taxonomy, and a cache-aware generic repository to consume it all from.
package rel4go

import (
	"github.com/sirupsen/logrus"

	"github.com/ammar0144/rel4go/pkg/db"
	"github.com/ammar0144/rel4go/pkg/redis"
	"github.com/ammar0144/rel4go/pkg/relationship"
	"github.com/ammar0144/rel4go/pkg/repository"
	"github.com/ammar0144/rel4go/pkg/service"
)

// Config represents database configuration
type Config = db.Config

// RedisConfig represents Redis configuration
type RedisConfig = redis.Config

// Entity interface that all repository entities must implement
type Entity = repository.Entity

// Spec describes one relationship update on an owner entity
type Spec = relationship.Spec

// Reconciler updates relationship collections to match target ID lists
type Reconciler = relationship.Reconciler

// Repository provides the generic repository interface
type Repository[T Entity] interface {
	repository.Repository[T]
}

// NewManager creates a new database manager
func NewManager(config *Config) (*db.Manager, error) {
	return db.NewManager(config)
}

// NewRedisManager creates a new Redis manager
func NewRedisManager(config *RedisConfig) (*redis.Manager, error) {
	return redis.NewManager(config)
}

// NewReconciler creates a relationship reconciler over the manager's pool
func NewReconciler(manager *db.Manager) *Reconciler {
	return relationship.NewReconciler(manager)
}

// NewRunner creates the uniform error-handling wrapper services run
// their operations through. A nil logger falls back to the logrus
// standard logger.
func NewRunner(log *logrus.Logger) *service.Runner {
	return service.NewRunner(log)
}

// NewRepository creates a new repository instance.
// If redisManager is nil, operates in database-only mode.
// If runner is nil, a default one is constructed.
func NewRepository[T Entity](manager *db.Manager, redisManager *redis.Manager, runner *service.Runner) Repository[T] {
	return repository.NewGenericRepository[T](manager, redisManager, runner)
}
