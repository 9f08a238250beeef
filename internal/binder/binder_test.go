package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/contracts"
)

func TestBindRenumbersForEmbedded(t *testing.T) {
	stmt := &contracts.PlannedStatement{
		SQL: "SELECT * FROM t WHERE a = ?1 AND b = ?2",
		Placeholders: []contracts.PlaceholderRef{
			{Kind: contracts.PlaceholderNum, Token: "?1", HostParamIdx: 0},
			{Kind: contracts.PlaceholderNum, Token: "?2", HostParamIdx: 1},
		},
	}
	b := New([]any{"x", 42})
	ps, err := b.Bind(stmt, backend.DialectEmbedded)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", ps.SQL)
	assert.Equal(t, []any{"x", 42}, ps.Args)
	assert.True(t, b.AllConsumed())
}

func TestBindRenumbersForServer(t *testing.T) {
	stmt := &contracts.PlannedStatement{
		SQL: "SELECT * FROM t WHERE a = $1",
		Placeholders: []contracts.PlaceholderRef{
			{Kind: contracts.PlaceholderDoll, Token: "$1", HostParamIdx: 0},
		},
	}
	b := New([]any{"x"})
	ps, err := b.Bind(stmt, backend.DialectServer)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1", ps.SQL)
}

func TestBindRejectsDoubleConsumption(t *testing.T) {
	stmt := &contracts.PlannedStatement{
		SQL: "SELECT * FROM t WHERE a = ?1 AND b = ?1",
		Placeholders: []contracts.PlaceholderRef{
			{Kind: contracts.PlaceholderNum, Token: "?1", HostParamIdx: 0},
		},
	}
	b := New([]any{"x"})
	_, err := b.Bind(stmt, backend.DialectEmbedded)
	require.Error(t, err)
	var ee *contracts.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, contracts.KindPlannerInvariant, ee.Kind)
}
