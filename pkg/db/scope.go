package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/ammar0144/rel4go/pkg/errs"
)

// Scope is a unit of work: one transactional handle bound to exactly one
// logical task. It must be finished exactly once (Commit, Rollback or
// Close) and releases its underlying transaction even on the failure
// path. All methods are safe for concurrent use, but a Scope is meant to
// be driven by the single task that acquired it.
type Scope struct {
	tx   *gorm.DB
	mu   sync.Mutex
	done bool
}

// DB returns the transactional GORM handle owned by this scope
func (s *Scope) DB() *gorm.DB {
	return s.tx
}

// Commit commits the scope's transaction. Calling Commit on an already
// finished scope is a no-op.
func (s *Scope) Commit() error {
	return s.finish(func() error { return s.tx.Commit().Error })
}

// Rollback rolls the scope's transaction back. Calling Rollback on an
// already finished scope is a no-op.
func (s *Scope) Rollback() error {
	return s.finish(func() error { return s.tx.Rollback().Error })
}

// Close releases the scope, rolling back any work that was not committed.
// Safe to call multiple times; only the first call does anything.
func (s *Scope) Close() error {
	return s.Rollback()
}

func (s *Scope) finish(end func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true

	if err := end(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		// sql.ErrTxDone means the driver already ended the transaction,
		// typically because its context was canceled
		return errs.StorageFailure(err, "failed to finish unit of work")
	}
	return nil
}

// open reports whether the scope still holds its transaction
func (s *Scope) open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// ScopeRegistry hands out units of work keyed by task identity for the
// lifetime of one inbound request. Scopes are created lazily; repeated
// calls with the same key return the same scope, distinct keys get
// distinct scopes. The registry's lifetime is the request's lifetime:
// create one per request, defer CloseAll, never share across requests.
type ScopeRegistry struct {
	db     *gorm.DB
	mu     sync.Mutex
	scopes map[string]*Scope
}

// NewScopeRegistry creates a registry that begins transactions on the
// manager's connection pool.
func (m *Manager) NewScopeRegistry() *ScopeRegistry {
	return NewScopeRegistry(m.db)
}

// NewScopeRegistry creates a registry over an arbitrary GORM handle
func NewScopeRegistry(gormDB *gorm.DB) *ScopeRegistry {
	return &ScopeRegistry{
		db:     gormDB,
		scopes: make(map[string]*Scope),
	}
}

// ScopeFor returns the unit of work bound to key, beginning a new
// transaction on first use. Each concurrent task must use its own key:
// the underlying handle is not safe for concurrent use by two tasks.
func (r *ScopeRegistry) ScopeFor(ctx context.Context, key string) (*Scope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if scope, ok := r.scopes[key]; ok {
		return scope, nil
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errs.StorageFailure(tx.Error, "failed to begin unit of work")
	}

	scope := &Scope{tx: tx}
	r.scopes[key] = scope
	return scope, nil
}

// OpenCount returns the number of scopes created under this registry
// that have not yet been committed, rolled back or closed.
func (r *ScopeRegistry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, scope := range r.scopes {
		if scope.open() {
			count++
		}
	}
	return count
}

// CloseAll releases every scope ever created under this registry. All
// closures are issued concurrently and all are attempted even if some
// fail; the individual failures are aggregated into one StorageFailure.
// Call it at request teardown, success or failure.
func (r *ScopeRegistry) CloseAll() error {
	r.mu.Lock()
	snapshot := make([]*Scope, 0, len(r.scopes))
	for _, scope := range r.scopes {
		snapshot = append(snapshot, scope)
	}
	r.mu.Unlock()

	closeErrs := make([]error, len(snapshot))
	var wg sync.WaitGroup
	for i, scope := range snapshot {
		wg.Add(1)
		go func(i int, scope *Scope) {
			defer wg.Done()
			closeErrs[i] = scope.Close()
		}(i, scope)
	}
	wg.Wait()

	if err := errors.Join(closeErrs...); err != nil {
		return errs.StorageFailure(err, "failed to close all units of work")
	}
	return nil
}
