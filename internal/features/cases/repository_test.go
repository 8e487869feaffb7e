package cases

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestConflictFromTx(t *testing.T) {
	writeConflict := mongo.CommandError{
		Code:   112,
		Name:   "WriteConflict",
		Labels: []string{transientTxError},
	}

	err := conflictFromTx(writeConflict)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Contains(t, err.Error(), "WriteConflict")

	wrapped := conflictFromTx(fmt.Errorf("update case c1: %w", writeConflict))
	assert.ErrorIs(t, wrapped, sentinel.ErrConflict)

	invalid := fmt.Errorf("no transition: %w", sentinel.ErrInvalidAction)
	assert.Same(t, invalid, conflictFromTx(invalid))
	assert.NotErrorIs(t, conflictFromTx(errors.New("connection reset")), sentinel.ErrConflict)

	assert.True(t, hasErrorLabel(mongo.CommandError{Labels: []string{unknownCommitResult}}, unknownCommitResult))
	assert.False(t, hasErrorLabel(writeConflict, unknownCommitResult))
}
