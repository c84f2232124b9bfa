// Package service provides the uniform failure-handling wrapper every
// domain service runs its public operations through: classify the error,
// roll the unit of work back, log, re-raise. Services get the guarantee
// by construction: they embed a Runner and route every public method
// through it instead of hand-writing the same recovery block per method.
package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ammar0144/rel4go/pkg/db"
	"github.com/ammar0144/rel4go/pkg/errs"
)

// UnitOfWork is the slice of the transactional handle the runner needs:
// the ability to undo. *db.Scope satisfies it directly.
type UnitOfWork interface {
	Rollback() error
}

// Runner wraps service operations with classification, rollback and
// structured logging.
type Runner struct {
	log *logrus.Logger
}

// NewRunner creates a runner logging through log. A nil log falls back
// to the logrus standard logger.
func NewRunner(log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{log: log}
}

// Run executes fn and, on failure, rolls back uow (if any), classifies
// the error, logs it, and returns the classified error. The error is
// re-raised, not swallowed, but never before the unit of work is undone.
func (r *Runner) Run(ctx context.Context, op string, uow UnitOfWork, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}

	classified := errs.Classify(err)

	if uow != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			r.log.WithError(rbErr).WithField("operation", op).Warn("rollback failed after operation error")
		}
	}

	r.log.WithError(classified).WithFields(logrus.Fields{
		"operation": op,
		"kind":      classified.Kind,
	}).Error("service operation failed")

	return classified
}

// RunValue is Run for operations that return a value. Declared as a
// function because Go methods cannot carry their own type parameters.
func RunValue[T any](ctx context.Context, r *Runner, op string, uow UnitOfWork, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Run(ctx, op, uow, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Transact runs fn inside a fresh unit of work on manager: begin, run,
// commit, with the usual rollback-classify-log treatment on any
// failure, commit included.
func (r *Runner) Transact(ctx context.Context, manager *db.Manager, op string, fn func(ctx context.Context, tx *gorm.DB) error) error {
	registry := manager.NewScopeRegistry()
	defer func() {
		// Releases the scope on every path; a no-op after commit
		if err := registry.CloseAll(); err != nil {
			r.log.WithError(err).WithField("operation", op).Warn("scope teardown failed")
		}
	}()

	scope, err := registry.ScopeFor(ctx, op)
	if err != nil {
		return r.Run(ctx, op, nil, func(context.Context) error { return err })
	}

	return r.Run(ctx, op, scope, func(ctx context.Context) error {
		if err := fn(ctx, scope.DB()); err != nil {
			return err
		}
		return scope.Commit()
	})
}

// LogEvent records a successful business event with structured fields
func (r *Runner) LogEvent(event string, fields logrus.Fields) {
	r.log.WithFields(fields).Info(event)
}
