package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
)

type fixedRowsTx struct {
	result *backend.Result
}

func (f *fixedRowsTx) Execute(context.Context, string, []any) (*backend.Result, error) {
	return f.result, nil
}
func (f *fixedRowsTx) Commit(context.Context) error   { return nil }
func (f *fixedRowsTx) Rollback(context.Context) error { return nil }

func TestStateHistoryMapsRows(t *testing.T) {
	tx := &fixedRowsTx{result: &backend.Result{
		Rows: [][]backend.Cell{
			{"change-1", "entity-1", "schema-a", "file-1", []byte(`{"a":1}`), int64(0), "commit-1", int64(0)},
			{"change-2", "entity-1", "schema-a", "file-1", nil, int64(1), "commit-2", int64(1)},
		},
	}}
	rows, err := StateHistory(context.Background(), tx, false, "commit-1", "", -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "change-1", rows[0].ChangeID)
	assert.False(t, rows[0].IsTombstone)
	assert.True(t, rows[1].IsTombstone)
	assert.Equal(t, 1, rows[1].Depth)
}

func TestFileHistoryMapsRows(t *testing.T) {
	tx := &fixedRowsTx{result: &backend.Result{
		Rows: [][]backend.Cell{
			{"change-1", "commit-1", int64(0)},
		},
	}}
	rows, err := FileHistory(context.Background(), tx, false, "file-1", "commit-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "commit-1", rows[0].CommitID)
}
