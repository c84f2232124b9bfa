// Package repository provides the generic CRUD surface per-entity
// services build on: cache-first reads, write operations that run in a
// single unit of work with relationship reconciliation, and
// relationship-aware cache invalidation.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ammar0144/rel4go/pkg/db"
	"github.com/ammar0144/rel4go/pkg/errs"
	"github.com/ammar0144/rel4go/pkg/redis"
	"github.com/ammar0144/rel4go/pkg/relationship"
	"github.com/ammar0144/rel4go/pkg/service"
)

// Cache key constants for consistent key generation
const (
	cacheKeyPrefix     = "rel4go"
	cacheKeySeparator  = ":"
	cacheKeyHashLength = 12 // Balance between uniqueness and key length

	// defaultPageSize applies when FindAll is called without a limit
	defaultPageSize = 100
)

// GenericRepository provides CRUD operations with cache-first reads and
// reconciliation of many-to-many relationships on writes. Every public
// method runs through the service runner, so failures come back
// classified and units of work are always rolled back before the error
// reaches the caller.
type GenericRepository[T Entity] struct {
	manager    *db.Manager
	redis      *redis.Manager
	runner     *service.Runner
	reconciler *relationship.Reconciler
	tableName  string
	dbName     string
	primaryKey string
	preloads   []string
}

// NewGenericRepository creates a generic repository over the manager's
// connection pool. redisManager may be nil for database-only operation;
// runner may be nil to log through the logrus standard logger.
func NewGenericRepository[T Entity](manager *db.Manager, redisManager *redis.Manager, runner *service.Runner) Repository[T] {
	entityType := reflect.TypeOf((*T)(nil)).Elem()

	// Materialize a model instance so Entity methods are callable even
	// when T has pointer-receiver methods
	var model T
	if entityType.Kind() == reflect.Ptr {
		model = reflect.New(entityType.Elem()).Interface().(T)
	}

	tableName := model.TableName()
	if tableName == "" {
		panic(fmt.Sprintf("entity type %v returned empty TableName(), Entity interface not properly implemented", entityType))
	}

	if runner == nil {
		runner = service.NewRunner(nil)
	}

	dbName := "default"
	if cfg := manager.Config(); cfg != nil && cfg.Database != "" {
		dbName = cfg.Database
	}

	return &GenericRepository[T]{
		manager:    manager,
		redis:      redisManager,
		runner:     runner,
		reconciler: relationship.NewReconciler(manager),
		tableName:  tableName,
		dbName:     dbName,
		primaryKey: extractPrimaryKeyColumn(manager.DB(), model),
		preloads:   nil,
	}
}

// NewGenericRepositoryDBOnly creates a repository without Redis (database only)
func NewGenericRepositoryDBOnly[T Entity](manager *db.Manager) Repository[T] {
	return NewGenericRepository[T](manager, nil, nil)
}

// Preload returns a repository that eager-loads the given associations
// on subsequent reads. The receiver is unchanged.
func (r *GenericRepository[T]) Preload(associations ...string) Repository[T] {
	clone := *r
	clone.preloads = append(append([]string{}, r.preloads...), associations...)
	return &clone
}

// ============================================================================
// READ OPERATIONS - Cache-First Implementation
// ============================================================================

// FindByID finds a record by ID with cache-first strategy. A missing
// record is a classified NotFound, never a nil result.
func (r *GenericRepository[T]) FindByID(ctx context.Context, id uint64) (*T, error) {
	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	return service.RunValue(ctx, r.runner, r.opName("find_by_id"), nil, func(ctx context.Context) (*T, error) {
		cacheKey := r.cacheKey("find_by_id", fmt.Sprintf("%d%s", id, r.preloadSuffix()))

		if r.redis != nil {
			var entity T
			if err := r.redis.GetValue(ctx, cacheKey, &entity); err == nil {
				return &entity, nil // Cache hit
			}
			// Cache errors are best-effort; fall through to the database
		}

		var entity T
		result := r.query(ctx).First(&entity, id)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("%s with ID %d not found", r.tableName, id)
		}
		if result.Error != nil {
			return nil, result.Error
		}

		if r.redis != nil {
			if err := r.redis.SetValue(ctx, cacheKey, entity); err == nil {
				_ = r.redis.AddDependency(ctx, r.tableName, id, cacheKey)
			}
		}
		return &entity, nil
	})
}

// FindByIDs performs one bulk "ID in set" lookup. An empty input returns
// an empty result without touching the store. Missing IDs are not an
// error here; existence enforcement belongs to the validator.
func (r *GenericRepository[T]) FindByIDs(ctx context.Context, ids []uint64) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}

	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	return service.RunValue(ctx, r.runner, r.opName("find_by_ids"), nil, func(ctx context.Context) ([]T, error) {
		cacheKey := r.cacheKey("find_by_ids", hashIDs(ids)+r.preloadSuffix())

		if r.redis != nil {
			var entities []T
			if err := r.redis.GetValue(ctx, cacheKey, &entities); err == nil {
				return entities, nil // Cache hit
			}
		}

		var entities []T
		result := r.query(ctx).Where(r.primaryKey+" IN ?", ids).Find(&entities)
		if result.Error != nil {
			return nil, result.Error
		}

		if r.redis != nil {
			if err := r.redis.SetValue(ctx, cacheKey, entities); err == nil {
				// Any of the fetched entities changing must drop this read
				for _, id := range ids {
					_ = r.redis.AddDependency(ctx, r.tableName, id, cacheKey)
				}
			}
		}
		return entities, nil
	})
}

// FindAll finds records with pagination and caching. A non-positive
// limit falls back to the default page size.
func (r *GenericRepository[T]) FindAll(ctx context.Context, offset, limit int) ([]T, error) {
	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	return service.RunValue(ctx, r.runner, r.opName("find_all"), nil, func(ctx context.Context) ([]T, error) {
		cacheKey := r.cacheKey("find_all", fmt.Sprintf("%d%s%d%s", offset, cacheKeySeparator, limit, r.preloadSuffix()))

		if r.redis != nil {
			var entities []T
			if err := r.redis.GetValue(ctx, cacheKey, &entities); err == nil {
				return entities, nil // Cache hit
			}
		}

		var entities []T
		result := r.query(ctx).Offset(offset).Limit(limit).Find(&entities)
		if result.Error != nil {
			return nil, result.Error
		}

		if r.redis != nil {
			_ = r.redis.SetValue(ctx, cacheKey, entities)
		}
		return entities, nil
	})
}

// Count counts records with caching
func (r *GenericRepository[T]) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	return service.RunValue(ctx, r.runner, r.opName("count"), nil, func(ctx context.Context) (int64, error) {
		cacheKey := r.cacheKey("count", "")

		if r.redis != nil {
			var count int64
			if err := r.redis.GetValue(ctx, cacheKey, &count); err == nil {
				return count, nil // Cache hit
			}
		}

		var count int64
		var model T
		result := r.manager.DB().WithContext(ctx).Model(&model).Count(&count)
		if result.Error != nil {
			return 0, result.Error
		}

		if r.redis != nil {
			_ = r.redis.SetValue(ctx, cacheKey, count)
		}
		return count, nil
	})
}

// Exists checks if a record exists by ID without loading it
func (r *GenericRepository[T]) Exists(ctx context.Context, id uint64) (bool, error) {
	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	return service.RunValue(ctx, r.runner, r.opName("exists"), nil, func(ctx context.Context) (bool, error) {
		var count int64
		var model T
		result := r.manager.DB().WithContext(ctx).Model(&model).Where(r.primaryKey+" = ?", id).Count(&count)
		if result.Error != nil {
			return false, result.Error
		}
		return count > 0, nil
	})
}

// ============================================================================
// WRITE OPERATIONS - Unit of Work + Reconciliation + Cache Invalidation
// ============================================================================

// Create inserts a new record and establishes its relationships in one
// unit of work. If any relationship spec fails validation, nothing is
// persisted.
func (r *GenericRepository[T]) Create(ctx context.Context, entity *T, specs ...relationship.Spec) error {
	if entity == nil {
		return errs.Unexpected(nil, "entity cannot be nil")
	}

	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	err := r.runner.Transact(ctx, r.manager, r.opName("create"), func(ctx context.Context, tx *gorm.DB) error {
		// Association fields are owned by reconciliation, not Create
		if err := tx.Omit(clause.Associations).Create(entity).Error; err != nil {
			return err
		}
		if len(specs) > 0 {
			// A new row has no association rows yet; whatever the
			// caller left in the fields is not current membership
			if err := relationship.ResetCollections(entity, specs); err != nil {
				return err
			}
			return r.reconciler.ReconcileAll(ctx, tx, entity, specs)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidateAfterWrite(ctx, (*entity).GetPrimaryKeyValue(), specs)
	return nil
}

// Update saves the record's fields and reconciles its relationships in
// one unit of work. A spec with nil TargetIDs leaves that relationship
// untouched; the all-or-nothing policy holds across siblings because
// everything shares this single transaction. Current membership is
// re-read inside the transaction, so the entity does not need its
// associations eager-loaded.
func (r *GenericRepository[T]) Update(ctx context.Context, entity *T, specs ...relationship.Spec) error {
	if entity == nil {
		return errs.Unexpected(nil, "entity cannot be nil")
	}

	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	err := r.runner.Transact(ctx, r.manager, r.opName("update"), func(ctx context.Context, tx *gorm.DB) error {
		// Association fields are owned by reconciliation, not Save
		if err := tx.Omit(clause.Associations).Save(entity).Error; err != nil {
			return err
		}
		if len(specs) > 0 {
			// The entity may have been fetched without eager loading;
			// reconcile against the store's membership, not the field's
			if err := relationship.RefreshCollections(ctx, tx, entity, specs); err != nil {
				return err
			}
			return r.reconciler.ReconcileAll(ctx, tx, entity, specs)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidateAfterWrite(ctx, (*entity).GetPrimaryKeyValue(), specs)
	return nil
}

// Delete clears the record's relationships, then deletes it, in one
// unit of work. Deleting a missing record is a classified NotFound.
func (r *GenericRepository[T]) Delete(ctx context.Context, id uint64, specs ...relationship.Spec) error {
	ctx, cancel := r.manager.WithQueryTimeout(ctx)
	defer cancel()

	err := r.runner.Transact(ctx, r.manager, r.opName("delete"), func(ctx context.Context, tx *gorm.DB) error {
		// Collections must be loaded before they can be cleared
		query := tx
		for _, spec := range specs {
			query = query.Preload(spec.Name)
		}

		var entity T
		result := query.First(&entity, id)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return errs.NotFound("%s with ID %d not found", r.tableName, id)
		}
		if result.Error != nil {
			return result.Error
		}

		if len(specs) > 0 {
			if err := r.reconciler.ClearAll(ctx, tx, &entity, specs); err != nil {
				return err
			}
		}
		return tx.Delete(&entity).Error
	})
	if err != nil {
		return err
	}

	r.invalidateAfterWrite(ctx, id, specs)
	return nil
}

// ============================================================================
// CACHE MANAGEMENT
// ============================================================================

// InvalidateCache invalidates all caches for this entity type in this database
func (r *GenericRepository[T]) InvalidateCache(ctx context.Context) error {
	if r.redis == nil {
		return nil
	}
	pattern := strings.Join([]string{cacheKeyPrefix, r.dbName, r.tableName, "*"}, cacheKeySeparator)
	return r.redis.InvalidatePattern(ctx, pattern)
}

// invalidateAfterWrite drops every cached read the write could have
// made stale: the whole table's caches, the entity's dependency set,
// and the dependency sets of every related entity named by the specs.
// Best effort throughout; the write has already committed and a cold
// cache is still correct.
func (r *GenericRepository[T]) invalidateAfterWrite(ctx context.Context, id interface{}, specs []relationship.Spec) {
	if r.redis == nil {
		return
	}

	_ = r.InvalidateCache(ctx)
	_ = r.redis.InvalidateEntityDependencies(ctx, r.tableName, id)

	for _, spec := range specs {
		relatedTable := relatedTableName(spec.Model)
		for _, targetID := range spec.TargetIDs {
			_ = r.redis.InvalidateEntityDependencies(ctx, relatedTable, targetID)
		}
	}
}

// ============================================================================
// HELPER METHODS
// ============================================================================

// query builds the read query with context and configured preloads
func (r *GenericRepository[T]) query(ctx context.Context) *gorm.DB {
	query := r.manager.DB().WithContext(ctx)
	for _, association := range r.preloads {
		query = query.Preload(association)
	}
	return query
}

// opName qualifies an operation for logging, e.g. "process.update"
func (r *GenericRepository[T]) opName(op string) string {
	return r.tableName + "." + op
}

// cacheKey creates a cache key with database and table isolation
func (r *GenericRepository[T]) cacheKey(operation, suffix string) string {
	parts := []string{cacheKeyPrefix, r.dbName, r.tableName, operation}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, cacheKeySeparator)
}

// preloadSuffix distinguishes cache entries for the same query issued
// with different eager-loading
func (r *GenericRepository[T]) preloadSuffix() string {
	if len(r.preloads) == 0 {
		return ""
	}
	return cacheKeySeparator + strings.Join(r.preloads, ",")
}

// hashIDs produces a short, order-insensitive key fragment for an ID set
func hashIDs(ids []uint64) string {
	sorted := append([]uint64{}, ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sb strings.Builder
	for _, id := range sorted {
		fmt.Fprintf(&sb, "%d,", id)
	}
	hash := fmt.Sprintf("%016x", xxhash.Sum64String(sb.String()))
	return hash[:cacheKeyHashLength]
}

// extractPrimaryKeyColumn resolves the primary key column name via
// GORM's schema parser, defaulting to "id"
func extractPrimaryKeyColumn(gormDB *gorm.DB, model interface{}) string {
	if gormDB == nil {
		return "id"
	}
	stmt := &gorm.Statement{DB: gormDB}
	if err := stmt.Parse(model); err == nil && stmt.Schema != nil {
		if fields := stmt.Schema.PrimaryFields; len(fields) > 0 && fields[0] != nil {
			return fields[0].DBName
		}
	}
	return "id"
}

// relatedTableName derives the cache dependency key space for a related
// model: its declared table name when it implements Entity, the
// lower-cased struct name otherwise
func relatedTableName(model interface{}) string {
	if ent, ok := model.(Entity); ok {
		if name := ent.TableName(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "entity"
	}
	return strings.ToLower(t.Name())
}
