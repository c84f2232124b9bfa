package relationship

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/ammar0144/rel4go/pkg/db"
	"github.com/ammar0144/rel4go/pkg/errs"
)

// Spec describes one relationship update on an owner entity.
type Spec struct {
	// Name is the association field name on the owner, e.g. "Departments"
	Name string

	// Model is a prototype of the related entity, e.g. &Department{}
	Model interface{}

	// TargetIDs is the desired final membership. nil leaves the
	// relationship untouched (field omitted); an empty non-nil slice
	// clears it. Duplicates are permitted and normalized away.
	TargetIDs []uint64
}

// Reconciler updates relationship collections to match target ID lists.
// Validation reads for concurrent updates run on scoped units of work
// begun against the base handle; every mutation runs through the owner's
// own unit of work, so one rollback undoes everything.
type Reconciler struct {
	base *gorm.DB
}

// NewReconciler creates a reconciler over the manager's connection pool
func NewReconciler(manager *db.Manager) *Reconciler {
	return &Reconciler{base: manager.DB()}
}

// NewReconcilerFromDB creates a reconciler over an arbitrary GORM handle
func NewReconcilerFromDB(base *gorm.DB) *Reconciler {
	return &Reconciler{base: base}
}

// Reconcile brings one collection in line with target: compute the diff,
// validate the additions against src, then remove and append. A nil
// target is a no-op, as is a target already equal to the current
// membership; neither issues any store call. Validation happens in full
// before any mutation, so a RelationshipViolation leaves the collection
// exactly as it was.
func Reconcile(ctx context.Context, coll Collection, src Source, target []uint64) error {
	if target == nil {
		return nil
	}

	current, err := coll.CurrentIDs(ctx)
	if err != nil {
		return err
	}

	diff := ComputeDiff(current, target)
	if diff.Empty() {
		return nil
	}

	if _, err := ValidateExistence(ctx, src, diff.ToAdd); err != nil {
		return err
	}

	return applyDiff(ctx, coll, diff)
}

// ReconcileRelationship applies one spec inside the owner's unit of
// work, validating against that same unit of work. Use ReconcileAll when
// several relationships change at once.
func (r *Reconciler) ReconcileRelationship(ctx context.Context, ownerTx *gorm.DB, owner interface{}, spec Spec) error {
	if spec.TargetIDs == nil {
		return nil
	}

	coll, err := NewAssociationCollection(ownerTx, owner, spec.Name)
	if err != nil {
		return errs.Unexpected(err, "invalid relationship spec %q", spec.Name)
	}
	return Reconcile(ctx, coll, NewGormSource(ownerTx, spec.Model), spec.TargetIDs)
}

// ReconcileAll runs the given relationship updates concurrently, one
// task per spec. Each task validates its additions on its own scoped
// unit of work; attachment into the owner's shared unit of work is
// serialized by a mutex. The first classified failure wins and cancels
// the remaining tasks, but every scope is released before that failure
// propagates.
//
// All-or-nothing across relationships holds as long as the caller rolls
// back ownerTx on error: no mutation here ever commits.
func (r *Reconciler) ReconcileAll(ctx context.Context, ownerTx *gorm.DB, owner interface{}, specs []Spec) error {
	updates := make([]update, 0, len(specs))
	for _, spec := range specs {
		if spec.TargetIDs == nil {
			continue
		}
		coll, err := NewAssociationCollection(ownerTx, owner, spec.Name)
		if err != nil {
			return errs.Unexpected(err, "invalid relationship spec %q", spec.Name)
		}
		model := spec.Model
		updates = append(updates, update{
			key:    spec.Name,
			coll:   coll,
			source: func(tx *gorm.DB) Source { return NewGormSource(tx, model) },
			target: spec.TargetIDs,
		})
	}
	return r.runConcurrent(ctx, updates)
}

// update is one relationship reconciliation prepared for concurrent
// execution: the source factory binds the validation lookup to the
// scoped unit of work the task receives.
type update struct {
	key    string
	coll   Collection
	source func(tx *gorm.DB) Source
	target []uint64
}

func (r *Reconciler) runConcurrent(ctx context.Context, updates []update) error {
	registry := db.NewScopeRegistry(r.base)

	group, groupCtx := errgroup.WithContext(ctx)
	var ownerMu sync.Mutex

	for _, u := range updates {
		u := u
		group.Go(func() error {
			// Each task reads only its own collection, so no lock here
			current, err := u.coll.CurrentIDs(groupCtx)
			if err != nil {
				return err
			}

			diff := ComputeDiff(current, u.target)
			if diff.Empty() {
				return nil
			}

			if len(diff.ToAdd) > 0 {
				// Scopes are begun on the outer context: the group
				// context is canceled once Wait returns, which would
				// end the transactions before CloseAll releases them.
				scope, err := registry.ScopeFor(ctx, u.key)
				if err != nil {
					return err
				}
				if _, err := ValidateExistence(groupCtx, u.source(scope.DB()), diff.ToAdd); err != nil {
					return err
				}
			}

			// Attachment is the only step that touches owner-shared
			// state; serialize it so concurrent tasks never interleave
			// on the shared transactional handle.
			ownerMu.Lock()
			defer ownerMu.Unlock()

			if err := groupCtx.Err(); err != nil {
				// A sibling already failed; skip the mutation
				return errs.Classify(err)
			}
			return applyDiff(groupCtx, u.coll, diff)
		})
	}

	waitErr := group.Wait()
	closeErr := registry.CloseAll()

	// Cleanup happens either way; the first task failure is the result
	if waitErr != nil {
		return errs.Classify(waitErr)
	}
	return closeErr
}

// ClearAll empties every listed relationship on the owner, the step a
// CRUD service runs before deleting the owner itself. Clearing needs no
// validation lookups, so the specs run sequentially on the owner's unit
// of work.
func (r *Reconciler) ClearAll(ctx context.Context, ownerTx *gorm.DB, owner interface{}, specs []Spec) error {
	for _, spec := range specs {
		spec.TargetIDs = []uint64{}
		if err := r.ReconcileRelationship(ctx, ownerTx, owner, spec); err != nil {
			return err
		}
	}
	return nil
}

// applyDiff removes then appends; both sides no-op on an empty set
func applyDiff(ctx context.Context, coll Collection, diff Diff[uint64]) error {
	if err := coll.Remove(ctx, diff.ToRemove...); err != nil {
		return err
	}
	return coll.Append(ctx, diff.ToAdd...)
}
