package repository

import (
	"context"

	"github.com/ammar0144/rel4go/pkg/relationship"
)

// Repository is the CRUD surface per-entity services build on. Every
// method returns a classified error on failure; write operations run in
// their own unit of work and roll back completely when any part fails,
// field update and relationship reconciliation alike.
type Repository[T any] interface {
	// Queries (Read Operations - Cache-First)
	FindByID(ctx context.Context, id uint64) (*T, error)
	FindByIDs(ctx context.Context, ids []uint64) ([]T, error)
	FindAll(ctx context.Context, offset, limit int) ([]T, error)
	Count(ctx context.Context) (int64, error)
	Exists(ctx context.Context, id uint64) (bool, error)

	// Preload specifies associations to eager-load on subsequent reads
	Preload(associations ...string) Repository[T]

	// Commands (Write Operations - one unit of work each, with
	// relationship reconciliation and cache invalidation)
	Create(ctx context.Context, entity *T, specs ...relationship.Spec) error
	Update(ctx context.Context, entity *T, specs ...relationship.Spec) error
	Delete(ctx context.Context, id uint64, specs ...relationship.Spec) error

	// Cache Management
	InvalidateCache(ctx context.Context) error
}
