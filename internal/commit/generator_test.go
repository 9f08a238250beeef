package commit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/schema"
)

func TestSnapshotIDIsContentAddressedAndIdempotent(t *testing.T) {
	a := SnapshotID([]byte(`{"a":1}`))
	b := SnapshotID([]byte(`{"a":1}`))
	c := SnapshotID([]byte(`{"a":2}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSnapshotIDSentinelForEmpty(t *testing.T) {
	assert.Equal(t, NoContentSnapshotID, SnapshotID(nil))
	assert.Equal(t, NoContentSnapshotID, SnapshotID([]byte{}))
}

func TestCanonicalizeJSONIsKeyOrderStable(t *testing.T) {
	a, err := canonicalizeJSON(map[string]any{"b": 1, "a": 2})
	assert.NoError(t, err)
	b, err := canonicalizeJSON(map[string]any{"a": 2, "b": 1})
	assert.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestUpsertIgnoreSqliteVsPostgres(t *testing.T) {
	sqliteSQL := upsertIgnore(false, "t", []string{"id", "v"}, []string{"id"})
	assert.Contains(t, sqliteSQL, "excluded.v")
	pgSQL := upsertIgnore(true, "t", []string{"id", "v"}, []string{"id"})
	assert.Contains(t, pgSQL, "EXCLUDED.v")
	assert.Contains(t, pgSQL, "$1")
}

// TestApplyPartialUpdateMergesWithPriorRow exercises spec.md §4.4's
// documented UPDATE boundary directly: a partial SET-clause must preserve
// columns it doesn't name, not null them out (the bug this test guards
// against silently dropped "lang" after "SET theme = ?").
func TestApplyPartialUpdateMergesWithPriorRow(t *testing.T) {
	store, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	table := schema.MaterializedTableName("prefs")
	stored := &schema.StoredSchema{SchemaKey: "prefs", Version: "1"}
	_, err = store.Execute(ctx, schema.CreateTableSQL(stored, false), nil)
	require.NoError(t, err)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Load(stored))

	g := NewGenerator(registry, nil, func() time.Time { return time.Unix(1700000000, 0).UTC() })

	insert := func(content map[string]any, op MutationOp, versionChain []string) string {
		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		batch, err := g.Apply(ctx, tx, false, []ResolvedMutation{{
			EntityID:     "doc-1",
			SchemaKey:    "prefs",
			VersionID:    "main",
			VersionChain: versionChain,
			Op:           op,
			Content:      content,
		}})
		require.NoError(t, err)
		require.NoError(t, tx.Commit(ctx))
		require.Len(t, batch.ChangeIDs, 1)
		return batch.ChangeIDs[0]
	}

	insert(map[string]any{"theme": "dark", "lang": "en"}, OpInsert, nil)
	insert(map[string]any{"theme": "light"}, OpUpdate, []string{"main"})

	res, err := store.Execute(ctx, "SELECT snapshot_content FROM "+table+" WHERE entity_id = 'doc-1'", nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Rows[0][0].(string)), &got))
	assert.Equal(t, "light", got["theme"])
	assert.Equal(t, "en", got["lang"])
}
