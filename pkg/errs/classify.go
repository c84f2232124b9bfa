package errs

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL server error numbers that signal a constraint violation rather
// than a storage-level fault.
const (
	mysqlErrDuplicateEntry   = 1062
	mysqlErrRowIsReferenced  = 1451
	mysqlErrNoReferencedRow  = 1452
	mysqlErrNoReferencedRow2 = 1216
	mysqlErrRowIsReferenced2 = 1217
)

// Classify maps an arbitrary error onto the closed taxonomy.
//
// Already-classified errors pass through unchanged, so NotFound and
// RelationshipViolation raised inside this library keep their identity
// across wrapping layers. Constraint violations from the store become
// RelationshipViolation, connectivity and transaction-state faults become
// StorageFailure, and everything else becomes UnexpectedFailure.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Detail: "record not found", Err: err}
	}

	if errors.Is(err, gorm.ErrForeignKeyViolated) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return &Error{Kind: KindRelationshipViolation, Detail: "constraint violated", Err: err}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry, mysqlErrRowIsReferenced, mysqlErrNoReferencedRow,
			mysqlErrRowIsReferenced2, mysqlErrNoReferencedRow2:
			return &Error{Kind: KindRelationshipViolation, Detail: "constraint violated", Err: err}
		default:
			return &Error{Kind: KindStorageFailure, Detail: "database error", Err: err}
		}
	}

	if isConnectivityError(err) {
		return &Error{Kind: KindStorageFailure, Detail: "database not reachable", Err: err}
	}

	if errors.Is(err, gorm.ErrInvalidTransaction) || errors.Is(err, gorm.ErrInvalidDB) {
		return &Error{Kind: KindStorageFailure, Detail: "invalid transaction state", Err: err}
	}

	return &Error{Kind: KindUnexpectedFailure, Detail: "unexpected error", Err: err}
}

// isConnectivityError reports whether err indicates the store is
// unreachable or the connection has gone away. Timeouts surfaced by the
// store count; they are never retried here.
func isConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
