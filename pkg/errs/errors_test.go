package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindRelationshipViolation.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindStorageFailure.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindUnexpectedFailure.HTTPStatus())
}

func TestErrorFormatting(t *testing.T) {
	withCause := StorageFailure(errors.New("conn reset"), "query %s failed", "departments")
	assert.Equal(t, "storage_failure: query departments failed: conn reset", withCause.Error())

	withoutCause := NotFound("process with ID %d not found", 42)
	assert.Equal(t, "not_found: process with ID 42 not found", withoutCause.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("duplicate entry")
	err := Unexpected(cause, "save failed")

	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, NotFound("gone").Unwrap())
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{NotFound("x"), KindNotFound},
		{RelationshipViolation("x"), KindRelationshipViolation},
		{StorageFailure(nil, "x"), KindStorageFailure},
		{Unexpected(nil, "x"), KindUnexpectedFailure},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.kind == KindNotFound, IsNotFound(tt.err))
			assert.Equal(t, tt.kind == KindRelationshipViolation, IsRelationshipViolation(tt.err))
			assert.Equal(t, tt.kind == KindStorageFailure, IsStorageFailure(tt.err))
			assert.Equal(t, tt.kind == KindUnexpectedFailure, IsUnexpected(tt.err))
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	inner := NotFound("department with ID 7 not found")
	wrapped := fmt.Errorf("loading owner: %w", inner)

	require.True(t, IsNotFound(wrapped))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindUnexpectedFailure, KindOf(errors.New("plain")))
	assert.False(t, IsNotFound(errors.New("plain")))
}
