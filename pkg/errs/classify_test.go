package errs

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassifyPassesThroughClassifiedErrors(t *testing.T) {
	original := RelationshipViolation("some department IDs not found: [4]")

	classified := Classify(fmt.Errorf("reconciling: %w", original))

	assert.Same(t, original, classified)
}

func TestClassifyRecordNotFound(t *testing.T) {
	classified := Classify(gorm.ErrRecordNotFound)

	require.NotNil(t, classified)
	assert.Equal(t, KindNotFound, classified.Kind)
	assert.True(t, errors.Is(classified, gorm.ErrRecordNotFound))
}

func TestClassifyConstraintSentinels(t *testing.T) {
	assert.Equal(t, KindRelationshipViolation, Classify(gorm.ErrForeignKeyViolated).Kind)
	assert.Equal(t, KindRelationshipViolation, Classify(gorm.ErrDuplicatedKey).Kind)
}

func TestClassifyMySQLErrorNumbers(t *testing.T) {
	tests := []struct {
		number uint16
		want   Kind
	}{
		{1062, KindRelationshipViolation},
		{1216, KindRelationshipViolation},
		{1217, KindRelationshipViolation},
		{1451, KindRelationshipViolation},
		{1452, KindRelationshipViolation},
		{1205, KindStorageFailure},
		{1040, KindStorageFailure},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("number_%d", tt.number), func(t *testing.T) {
			err := &mysql.MySQLError{Number: tt.number, Message: "server said no"}
			assert.Equal(t, tt.want, Classify(err).Kind)
		})
	}
}

func TestClassifyConnectivityErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad conn", driver.ErrBadConn},
		{"invalid conn", mysql.ErrInvalidConn},
		{"deadline", context.DeadlineExceeded},
		{"canceled", context.Canceled},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			assert.Equal(t, KindStorageFailure, classified.Kind)
		})
	}
}

func TestClassifyInvalidTransactionState(t *testing.T) {
	assert.Equal(t, KindStorageFailure, Classify(gorm.ErrInvalidTransaction).Kind)
	assert.Equal(t, KindStorageFailure, Classify(gorm.ErrInvalidDB).Kind)
}

func TestClassifyUnknownError(t *testing.T) {
	cause := errors.New("something odd")

	classified := Classify(cause)

	assert.Equal(t, KindUnexpectedFailure, classified.Kind)
	assert.True(t, errors.Is(classified, cause))
}
