package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_IsValid(t *testing.T) {
	for _, op := range Operations {
		assert.True(t, op.IsValid(), op)
		assert.NotEqual(t, string(op), op.Label(), "every operation has a label")
	}

	assert.False(t, Operation("").IsValid())
	assert.False(t, Operation("create").IsValid())
	assert.Equal(t, "PURGE", Operation("PURGE").Label())
}

func TestOperation_IsBulk(t *testing.T) {
	tests := []struct {
		op       Operation
		expected bool
	}{
		{OpCreate, false},
		{OpUpdate, false},
		{OpDelete, false},
		{OpBulkCreate, true},
		{OpBulkUpdate, true},
		{OpBulkDelete, true},
		{OpRevert, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.op.IsBulk())
		})
	}
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("BULK_DELETE")
	require.NoError(t, err)
	assert.Equal(t, OpBulkDelete, op)

	_, err = ParseOperation("bulk_delete")
	assert.Error(t, err)
}
