package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/rel4go/pkg/errs"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	return gormDB, mock
}

func TestScopeForSameKeyReturnsSameScope(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()

	registry := NewScopeRegistry(gormDB)

	first, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)
	second, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, registry.OpenCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeForDistinctKeysGetDistinctScopes(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectBegin()

	registry := NewScopeRegistry(gormDB)

	departments, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)
	tags, err := registry.ScopeFor(context.Background(), "Tags")
	require.NoError(t, err)

	assert.NotSame(t, departments, tags)
	assert.NotSame(t, departments.DB(), tags.DB())
	assert.Equal(t, 2, registry.OpenCount())
}

func TestScopeForBeginFailure(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	registry := NewScopeRegistry(gormDB)

	_, err := registry.ScopeFor(context.Background(), "Departments")

	require.Error(t, err)
	assert.True(t, errs.IsStorageFailure(err))
	assert.Equal(t, 0, registry.OpenCount())
}

func TestScopeFinishesExactlyOnce(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	registry := NewScopeRegistry(gormDB)
	scope, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)

	require.NoError(t, scope.Commit())
	// Later finishes are no-ops, whichever form they take
	require.NoError(t, scope.Commit())
	require.NoError(t, scope.Rollback())
	require.NoError(t, scope.Close())

	assert.Equal(t, 0, registry.OpenCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeCloseRollsBack(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	registry := NewScopeRegistry(gormDB)
	scope, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)

	require.NoError(t, scope.Close())

	assert.Equal(t, 0, registry.OpenCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseAllReleasesEveryScope(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	registry := NewScopeRegistry(gormDB)
	for _, key := range []string{"Departments", "Tags", "Groups"} {
		_, err := registry.ScopeFor(context.Background(), key)
		require.NoError(t, err)
	}
	require.Equal(t, 3, registry.OpenCount())

	require.NoError(t, registry.CloseAll())

	assert.Equal(t, 0, registry.OpenCount())
	assert.NoError(t, mock.ExpectationsWereMet())

	// Second teardown finds nothing left to do
	require.NoError(t, registry.CloseAll())
}

func TestCloseAllSkipsCommittedScopes(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	registry := NewScopeRegistry(gormDB)
	scope, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)
	require.NoError(t, scope.Commit())

	require.NoError(t, registry.CloseAll())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseAllReportsFailures(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection gone"))

	registry := NewScopeRegistry(gormDB)
	_, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)

	err = registry.CloseAll()

	require.Error(t, err)
	assert.True(t, errs.IsStorageFailure(err))
	// The scope is finished even though its rollback failed
	assert.Equal(t, 0, registry.OpenCount())
}

func TestManagerNewScopeRegistry(t *testing.T) {
	gormDB, mock := newMockGorm(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	manager := NewManagerFromDB(gormDB, &Config{Database: "app"})
	registry := manager.NewScopeRegistry()

	scope, err := registry.ScopeFor(context.Background(), "Departments")
	require.NoError(t, err)
	require.NotNil(t, scope.DB())

	require.NoError(t, registry.CloseAll())
	assert.NoError(t, mock.ExpectationsWereMet())
}
