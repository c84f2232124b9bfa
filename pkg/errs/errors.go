// Package errs defines the closed set of classified errors surfaced by
// every public rel4go operation, plus the mapping from raw store errors
// into that set. Callers branch on the Kind to pick a response class or
// retry policy instead of inspecting driver errors themselves.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable failure category carried by a classified error.
// Exactly four kinds exist; there are no ad hoc variants.
type Kind string

const (
	// KindNotFound means a directly addressed entity does not exist.
	KindNotFound Kind = "not_found"

	// KindRelationshipViolation means a relationship target ID does not
	// exist, or the store rejected a foreign-key/uniqueness constraint.
	KindRelationshipViolation Kind = "relationship_violation"

	// KindStorageFailure means the store reported an error or is unreachable.
	KindStorageFailure Kind = "storage_failure"

	// KindUnexpectedFailure covers everything else.
	KindUnexpectedFailure Kind = "unexpected_failure"
)

// HTTPStatus returns the response class a CRUD boundary should use for
// this kind. Detail for server-side kinds belongs in logs, not responses.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindRelationshipViolation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a human-readable detail string and
// an optional underlying cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound creates a classified not-found error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// RelationshipViolation creates a classified relationship error
func RelationshipViolation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindRelationshipViolation, Detail: fmt.Sprintf(format, args...)}
}

// StorageFailure creates a classified storage error wrapping its cause
func StorageFailure(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStorageFailure, Detail: fmt.Sprintf(format, args...), Err: err}
}

// Unexpected creates a classified catch-all error wrapping its cause
func Unexpected(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnexpectedFailure, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classified kind of err, or KindUnexpectedFailure
// if err carries no classification.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnexpectedFailure
}

// IsNotFound checks whether err is classified as NotFound
func IsNotFound(err error) bool {
	return isKind(err, KindNotFound)
}

// IsRelationshipViolation checks whether err is classified as RelationshipViolation
func IsRelationshipViolation(err error) bool {
	return isKind(err, KindRelationshipViolation)
}

// IsStorageFailure checks whether err is classified as StorageFailure
func IsStorageFailure(err error) bool {
	return isKind(err, KindStorageFailure)
}

// IsUnexpected checks whether err is classified as UnexpectedFailure
func IsUnexpected(err error) bool {
	return isKind(err, KindUnexpectedFailure)
}

func isKind(err error, kind Kind) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.Kind == kind
}
