package relationship

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"

	"github.com/ammar0144/rel4go/pkg/errs"
)

// Collection is the minimal surface the reconciler needs from one
// relationship collection: read the current membership, append members
// by ID, remove members by ID. Implementations keep the in-memory view
// and the association table in agreement after every successful call.
type Collection interface {
	// Name identifies the relationship for error details and logging
	Name() string

	// CurrentIDs returns the member IDs visible through the collection
	CurrentIDs(ctx context.Context) ([]uint64, error)

	// Append attaches the given (already validated) IDs to the collection
	Append(ctx context.Context, ids ...uint64) error

	// Remove detaches the given IDs from the collection
	Remove(ctx context.Context, ids ...uint64) error
}

// AssociationCollection adapts one GORM many2many association on an
// owner entity to the Collection interface. All mutations run through
// the owner's unit of work; the owner must have the association loaded
// (preloaded or refreshed) so that CurrentIDs reflects the association
// table as of the last refresh.
type AssociationCollection struct {
	tx    *gorm.DB
	owner interface{}
	name  string
	elem  reflect.Type
}

// NewAssociationCollection builds a Collection over the association
// named name (the Go field name, e.g. "Departments") of owner, bound to
// the owner's transactional handle tx.
func NewAssociationCollection(tx *gorm.DB, owner interface{}, name string) (*AssociationCollection, error) {
	ownerType := reflect.TypeOf(owner)
	if ownerType.Kind() == reflect.Ptr {
		ownerType = ownerType.Elem()
	}
	if ownerType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("owner must be a struct or pointer to struct, got %T", owner)
	}

	field, ok := ownerType.FieldByName(name)
	if !ok {
		return nil, fmt.Errorf("owner %s has no relationship field %q", ownerType, name)
	}
	if field.Type.Kind() != reflect.Slice {
		return nil, fmt.Errorf("relationship field %s.%s is not a slice", ownerType, name)
	}

	return &AssociationCollection{
		tx:    tx,
		owner: owner,
		name:  name,
		elem:  field.Type.Elem(),
	}, nil
}

// Name returns the association field name
func (c *AssociationCollection) Name() string {
	return c.name
}

// ElemType returns the related entity's struct type
func (c *AssociationCollection) ElemType() reflect.Type {
	return c.elem
}

// CurrentIDs reads the member IDs from the owner's loaded association
// field. No store access happens here.
func (c *AssociationCollection) CurrentIDs(_ context.Context) ([]uint64, error) {
	ownerValue := reflect.ValueOf(c.owner)
	if ownerValue.Kind() == reflect.Ptr {
		ownerValue = ownerValue.Elem()
	}
	members := ownerValue.FieldByName(c.name)

	ids := make([]uint64, 0, members.Len())
	for i := 0; i < members.Len(); i++ {
		id, err := entityID(members.Index(i))
		if err != nil {
			return nil, errs.Unexpected(err, "failed to read member ID of %s", c.name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Append inserts association rows for the given IDs and appends the
// matching references to the owner's loaded field. IDs must already be
// validated; the store's foreign keys are the backstop.
func (c *AssociationCollection) Append(ctx context.Context, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	refs, err := c.refs(ids)
	if err != nil {
		return err
	}
	assoc := c.tx.WithContext(ctx).Model(c.owner).Association(c.name)
	if err := assoc.Append(refs...); err != nil {
		return errs.Classify(err)
	}
	return nil
}

// Remove deletes association rows for the given IDs and drops the
// matching references from the owner's loaded field.
func (c *AssociationCollection) Remove(ctx context.Context, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	refs, err := c.refs(ids)
	if err != nil {
		return err
	}
	assoc := c.tx.WithContext(ctx).Model(c.owner).Association(c.name)
	if err := assoc.Delete(refs...); err != nil {
		return errs.Classify(err)
	}
	return nil
}

// RefreshCollections loads the current store membership of every
// relationship named by a spec (with a non-nil target) into the owner's
// association fields, through the owner's unit of work. Reconciliation
// reads current membership from those fields, so callers holding an
// owner fetched without eager loading must refresh before reconciling
// or stale members would never be removed.
func RefreshCollections(ctx context.Context, tx *gorm.DB, owner interface{}, specs []Spec) error {
	for _, spec := range specs {
		if spec.TargetIDs == nil {
			continue
		}
		field, err := collectionField(owner, spec.Name)
		if err != nil {
			return errs.Unexpected(err, "invalid relationship spec %q", spec.Name)
		}

		members := reflect.New(field.Type())
		if err := tx.WithContext(ctx).Model(owner).Association(spec.Name).Find(members.Interface()); err != nil {
			return errs.Classify(err)
		}
		field.Set(members.Elem())
	}
	return nil
}

// ResetCollections empties the owner's association fields named by the
// specs (with a non-nil target) without touching the store. For a
// freshly inserted owner the association table holds no rows yet, so an
// empty field is the correct current membership regardless of what the
// caller left in the struct.
func ResetCollections(owner interface{}, specs []Spec) error {
	for _, spec := range specs {
		if spec.TargetIDs == nil {
			continue
		}
		field, err := collectionField(owner, spec.Name)
		if err != nil {
			return errs.Unexpected(err, "invalid relationship spec %q", spec.Name)
		}
		field.Set(reflect.MakeSlice(field.Type(), 0, 0))
	}
	return nil
}

// collectionField resolves the addressable slice field holding one
// relationship collection on the owner.
func collectionField(owner interface{}, name string) (reflect.Value, error) {
	ownerValue := reflect.ValueOf(owner)
	if ownerValue.Kind() != reflect.Ptr || ownerValue.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("owner must be a pointer to struct, got %T", owner)
	}
	field := ownerValue.Elem().FieldByName(name)
	if !field.IsValid() {
		return reflect.Value{}, fmt.Errorf("owner %T has no relationship field %q", owner, name)
	}
	if field.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("relationship field %T.%s is not a slice", owner, name)
	}
	return field, nil
}

// refs materializes primary-key-only references for the given IDs
func (c *AssociationCollection) refs(ids []uint64) ([]interface{}, error) {
	refs := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		ref, err := newEntityRef(c.elem, id)
		if err != nil {
			return nil, errs.Unexpected(err, "failed to build %s reference", c.name)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
