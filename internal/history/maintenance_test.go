package history

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/contracts"
)

type countingTx struct {
	execCount atomic.Int64
}

func (f *countingTx) Execute(_ context.Context, sql string, _ []any) (*backend.Result, error) {
	f.execCount.Add(1)
	return &backend.Result{}, nil
}
func (f *countingTx) Commit(context.Context) error   { return nil }
func (f *countingTx) Rollback(context.Context) error { return nil }

func TestSatisfyNoopOnZeroRequirements(t *testing.T) {
	m := NewMaintainer()
	tx := &countingTx{}
	err := m.Satisfy(context.Background(), tx, false, contracts.HistoryRequirements{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, tx.execCount.Load())
}

func TestSatisfyRunsCommitGraphMaterialization(t *testing.T) {
	m := NewMaintainer()
	tx := &countingTx{}
	err := m.Satisfy(context.Background(), tx, false, contracts.HistoryRequirements{RootCommitID: "c1", MaxDepth: -1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, tx.execCount.Load())
}

func TestSatisfyRunsBothCommitGraphAndFileHistory(t *testing.T) {
	m := NewMaintainer()
	tx := &countingTx{}
	err := m.Satisfy(context.Background(), tx, false, contracts.HistoryRequirements{
		RootCommitID: "c1", MaxDepth: 5, RefreshFileHistoryCache: true, FileID: "f1",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, tx.execCount.Load()) // commit graph + cache clear + cache rebuild
}

func TestMaterializeCommitGraphBoundsDepthInline(t *testing.T) {
	var captured string
	tx := &capturingTx{onExecute: func(sql string) { captured = sql }}
	require.NoError(t, materializeCommitGraph(context.Background(), tx, false, "root1", 3))
	assert.True(t, strings.Contains(captured, "depth <= 3"))
}

type capturingTx struct {
	onExecute func(sql string)
}

func (c *capturingTx) Execute(_ context.Context, sql string, _ []any) (*backend.Result, error) {
	c.onExecute(sql)
	return &backend.Result{}, nil
}
func (c *capturingTx) Commit(context.Context) error   { return nil }
func (c *capturingTx) Rollback(context.Context) error { return nil }
