package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchInserter_Query(t *testing.T) {
	bi := NewBatchInserter(nil, "INSERT INTO t (a, b)", 2, 10).OnConflict("ON CONFLICT (a) DO NOTHING")
	require.NoError(t, bi.Add(context.Background(), 1, "x"))
	require.NoError(t, bi.Add(context.Background(), 2, "y"))

	assert.Equal(t, 2, bi.Pending())
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4) ON CONFLICT (a) DO NOTHING", bi.Query())
}

func TestBatchInserter_FieldMismatch(t *testing.T) {
	bi := NewBatchInserter(nil, "INSERT INTO t (a, b)", 2, 0)
	err := bi.Add(context.Background(), 1)
	assert.ErrorIs(t, err, ErrFieldMismatch)
	assert.Zero(t, bi.Pending())
}

func TestBatchInserter_EmptyFlushIsNoop(t *testing.T) {
	bi := NewBatchInserter(nil, "INSERT INTO t (a)", 1, 5)
	assert.NoError(t, bi.Flush(context.Background()))
}
