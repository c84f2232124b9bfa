package relationship

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/rel4go/pkg/errs"
)

func TestValidateExistenceAllFound(t *testing.T) {
	src := newFakeSource("department", 1, 2, 3)

	found, err := ValidateExistence(context.Background(), src, []uint64{1, 3})

	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1, 3}, found)
	assert.Equal(t, 1, src.queryCount())
}

func TestValidateExistenceReportsMissingIDsSorted(t *testing.T) {
	src := newFakeSource("department", 2)

	_, err := ValidateExistence(context.Background(), src, []uint64{9, 2, 4})

	require.Error(t, err)
	assert.True(t, errs.IsRelationshipViolation(err))
	assert.Contains(t, err.Error(), "department")
	assert.Contains(t, err.Error(), "[4 9]")
}

func TestValidateExistenceEmptyInputSkipsStore(t *testing.T) {
	src := newFakeSource("department", 1)

	found, err := ValidateExistence(context.Background(), src, nil)

	require.NoError(t, err)
	assert.Nil(t, found)
	assert.Equal(t, 0, src.queryCount())
}

func TestValidateExistencePropagatesLookupFailure(t *testing.T) {
	src := newFakeSource("department", 1)
	src.err = errs.StorageFailure(errors.New("conn refused"), "lookup failed")

	_, err := ValidateExistence(context.Background(), src, []uint64{1})

	require.Error(t, err)
	assert.True(t, errs.IsStorageFailure(err))
}
