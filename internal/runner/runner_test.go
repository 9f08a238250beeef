package runner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/schema"
)

// fakeTx and fakeBackend give the runner a recording, canned-response
// backend, mirroring internal/history/timeline_test.go's fixedRowsTx but
// keyed by SQL substring so several distinct queries in one test can each
// get a distinct canned answer.
type recordedCall struct {
	sql  string
	args []any
}

type fakeTx struct {
	calls     *[]recordedCall
	responses map[string]*backend.Result
	committed *bool
	rolledBack *bool
}

func (f *fakeTx) Execute(_ context.Context, sql string, args []any) (*backend.Result, error) {
	*f.calls = append(*f.calls, recordedCall{sql, args})
	for substr, res := range f.responses {
		if strings.Contains(sql, substr) {
			return res, nil
		}
	}
	return &backend.Result{}, nil
}
func (f *fakeTx) Commit(context.Context) error   { *f.committed = true; return nil }
func (f *fakeTx) Rollback(context.Context) error { *f.rolledBack = true; return nil }

type fakeBackend struct {
	dialect   backend.Dialect
	calls     []recordedCall
	responses map[string]*backend.Result
	txs       []*fakeTx
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		dialect: backend.DialectEmbedded,
		responses: map[string]*backend.Result{
			"lix_internal_state_untracked WHERE entity_id": {
				Rows: [][]backend.Cell{{`{"value":"v-main"}`}},
			},
		},
	}
}

func (f *fakeBackend) Dialect() backend.Dialect { return f.dialect }

func (f *fakeBackend) Execute(_ context.Context, sql string, args []any) (*backend.Result, error) {
	f.calls = append(f.calls, recordedCall{sql, args})
	for substr, res := range f.responses {
		if strings.Contains(sql, substr) {
			return res, nil
		}
	}
	return &backend.Result{}, nil
}

func (f *fakeBackend) Begin(context.Context) (backend.Tx, error) {
	committed, rolledBack := false, false
	tx := &fakeTx{calls: &f.calls, responses: f.responses, committed: &committed, rolledBack: &rolledBack}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) callsContaining(substr string) int {
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.sql, substr) {
			n++
		}
	}
	return n
}

func permissiveRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Load(&schema.StoredSchema{
		SchemaKey: "todo.item",
		Version:   "1",
		Document:  json.RawMessage(`{"type":"object"}`),
	}))
	return reg
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestExecuteReadOnlyDoesNotOpenTransaction(t *testing.T) {
	fb := newFakeBackend()
	reg := permissiveRegistry(t)
	r := New(fb, reg, nil, fixedClock(time.Unix(0, 0)), nil)

	res, err := r.Execute(context.Background(), "SELECT COUNT(*) FROM lix_state WHERE schema_key = ?", []any{"todo.item"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, fb.txs, "a pure read with no history requirements must not open a transaction")
}

func TestExecuteInsertGeneratesCommitInsideTransaction(t *testing.T) {
	fb := newFakeBackend()
	reg := permissiveRegistry(t)
	r := New(fb, reg, nil, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil)

	_, err := r.Execute(context.Background(),
		"INSERT INTO lix_state (entity_id, schema_key, title) VALUES (?, ?, ?)",
		[]any{"e1", "todo.item", "buy milk"})
	require.NoError(t, err)

	require.Len(t, fb.txs, 1, "a tracked write must run inside exactly one transaction")
	tx := fb.txs[0]
	assert.True(t, *tx.committed)
	assert.False(t, *tx.rolledBack)

	assert.Equal(t, 1, fb.callsContaining("INSERT INTO lix_internal_snapshot"))
	assert.Equal(t, 1, fb.callsContaining("INSERT INTO lix_internal_change"))
	assert.Equal(t, 1, fb.callsContaining("lix_internal_state_materialized_v1_todo_item"))
	assert.Equal(t, 1, fb.callsContaining("INSERT INTO lix_commit "))
	assert.Equal(t, 1, fb.callsContaining("INSERT INTO lix_commit_change"))
	assert.Equal(t, 1, fb.callsContaining("INSERT INTO lix_version_pointer"))
}

func TestExecuteUnknownViewReturnsPlannerError(t *testing.T) {
	fb := newFakeBackend()
	reg := permissiveRegistry(t)
	r := New(fb, reg, nil, fixedClock(time.Unix(0, 0)), nil)

	_, err := r.Execute(context.Background(), "SELECT * FROM not_a_lix_view", nil)
	require.Error(t, err)
}

func TestBuildChainStopsAtCycle(t *testing.T) {
	parent := map[string]string{"a": "b", "b": "a"}
	chain := buildChain("a", parent)
	assert.Equal(t, []string{"a", "b"}, chain)
}

func TestExtractJSONStringFieldIgnoresMalformedInput(t *testing.T) {
	assert.Equal(t, "", extractJSONStringField("not json", "value"))
	assert.Equal(t, "v-main", extractJSONStringField(`{"value":"v-main"}`, "value"))
}
