package relationship

import (
	"context"

	"gorm.io/gorm"

	"github.com/ammar0144/rel4go/pkg/errs"
)

// Source answers the one question the existence validator asks of the
// store: of these candidate IDs, which exist? Implementations must
// tolerate an empty ID set by returning an empty result without a
// round trip.
type Source interface {
	// EntityName is the human-readable entity type name used in
	// classified error details
	EntityName() string

	// ExistingIDs returns the subset of ids present in the store,
	// resolved with a single bulk lookup
	ExistingIDs(ctx context.Context, ids []uint64) ([]uint64, error)
}

// GormSource resolves existence through one GORM handle. Bind it to a
// scoped unit of work when validating concurrently; the handle is not
// safe for shared concurrent use.
type GormSource struct {
	tx    *gorm.DB
	model interface{}
	name  string
}

// NewGormSource builds a Source for the entity type of model
// (a prototype such as &Department{}).
func NewGormSource(tx *gorm.DB, model interface{}) *GormSource {
	return &GormSource{
		tx:    tx,
		model: model,
		name:  entityTypeName(model),
	}
}

// EntityName returns the entity's struct name
func (s *GormSource) EntityName() string {
	return s.name
}

// ExistingIDs issues one "primary key IN set" query and returns the IDs
// that came back. Only IDs travel across sessions, never entity handles.
func (s *GormSource) ExistingIDs(ctx context.Context, ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pk := primaryKeyColumn(s.tx, s.model)
	var found []uint64
	result := s.tx.WithContext(ctx).Model(s.model).Where(pk+" IN ?", ids).Pluck(pk, &found)
	if result.Error != nil {
		return nil, errs.Classify(result.Error)
	}
	return found, nil
}
