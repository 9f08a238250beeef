package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/contracts"
)

type fakeCatalog struct {
	active  string
	chains  map[string][]string
	tips    map[string]string
	schemas map[string]string // schemaKey -> materialized table
}

func (c *fakeCatalog) ActiveVersionID() string { return c.active }
func (c *fakeCatalog) VersionChain(versionID string) []string {
	if chain, ok := c.chains[versionID]; ok {
		return chain
	}
	return []string{versionID}
}
func (c *fakeCatalog) HasSchema(schemaKey string) bool { _, ok := c.schemas[schemaKey]; return ok }
func (c *fakeCatalog) MaterializedTable(schemaKey string) string {
	if schemaKey == fileSchemaKey {
		return "lix_internal_state_materialized_v1_lix_file_descriptor"
	}
	return c.schemas[schemaKey]
}
func (c *fakeCatalog) VersionTip(versionID string) string { return c.tips[versionID] }

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		active:  "v-main",
		chains:  map[string][]string{"v-main": {"v-main", "v-global"}, "v-global": {"v-global"}},
		tips:    map[string]string{"v-main": "c-tip"},
		schemas: map[string]string{"todo.item": "lix_internal_state_materialized_v1_todo_item", fileSchemaKey: "lix_internal_state_materialized_v1_lix_file_descriptor"},
	}
}

func TestPlanRecognizesStateView(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`SELECT * FROM lix_state WHERE schema_key = ? AND entity_id = ?`, []any{"todo.item", "e1"})
	require.NoError(t, err)
	require.Len(t, plan.Statements, 1)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "lix_internal_state_materialized_v1_todo_item")
	assert.Contains(t, sql, "entity_id = 'e1'")
	assert.True(t, plan.Statements[0].ReadIntent)
}

func TestPlanRejectsUnrecognizedTable(t *testing.T) {
	p := New(newFakeCatalog())
	_, err := p.Plan(`SELECT * FROM some_other_table`, nil)
	require.Error(t, err)
	var ee *contracts.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, contracts.KindPlannerInvariant, ee.Kind)
}

func TestPlanStateByVersionRequiresVersionID(t *testing.T) {
	p := New(newFakeCatalog())
	_, err := p.Plan(`SELECT * FROM lix_state_by_version WHERE schema_key = ?`, []any{"todo.item"})
	require.Error(t, err)
}

func TestPlanStateByVersionUsesExplicitVersion(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`SELECT * FROM lix_state_by_version WHERE schema_key = ? AND version_id = ?`,
		[]any{"todo.item", "v-global"})
	require.NoError(t, err)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "version_id = 'v-global'")
	assert.NotContains(t, sql, "version_id = 'v-main'")
}

func TestPlanCountProjectionFastPath(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`SELECT COUNT(*) FROM lix_state WHERE schema_key = ?`, []any{"todo.item"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plan.Statements[0].SQL, "SELECT COUNT(*) FROM"))
}

func TestPlanEntityRequiresEntityIDAndSchemaKey(t *testing.T) {
	p := New(newFakeCatalog())
	_, err := p.Plan(`SELECT * FROM entity WHERE entity_id = ?`, []any{"e1"})
	require.Error(t, err)
}

func TestPlanStateHistoryDefaultsRootFromActiveTip(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`SELECT * FROM lix_state_history WHERE schema_key = ?`, []any{"todo.item"})
	require.NoError(t, err)
	assert.Equal(t, "c-tip", plan.Requirements.RootCommitID)
	assert.Contains(t, plan.Statements[0].SQL, "'c-tip'")
}

func TestPlanFileHistoryRequiresFileID(t *testing.T) {
	p := New(newFakeCatalog())
	_, err := p.Plan(`SELECT * FROM lix_file_history WHERE root_commit_id = ?`, []any{"c-tip"})
	require.Error(t, err)
}

func TestPlanInsertProducesPendingMutation(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`INSERT INTO lix_state (entity_id, schema_key, title) VALUES (?, ?, ?)`,
		[]any{"e1", "todo.item", "buy milk"})
	require.NoError(t, err)
	require.Len(t, plan.Statements[0].Mutations, 1)
	mut := plan.Statements[0].Mutations[0]
	assert.Equal(t, "e1", mut.EntityID)
	assert.Equal(t, "todo.item", mut.SchemaKey)
	assert.Equal(t, "v-main", mut.VersionID)
	assert.Equal(t, "insert", mut.Op)
	assert.Equal(t, "buy milk", mut.Content["title"])
	assert.False(t, plan.Statements[0].ReadIntent)
}

func TestPlanUpdateProducesPartialContentMutation(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`UPDATE lix_state SET theme = ? WHERE entity_id = ? AND schema_key = ?`,
		[]any{"light", "e1", "todo.item"})
	require.NoError(t, err)
	require.Len(t, plan.Statements[0].Mutations, 1)
	mut := plan.Statements[0].Mutations[0]
	assert.Equal(t, "e1", mut.EntityID)
	assert.Equal(t, "update", mut.Op)
	// Only the SET-clause column travels in the plan: the planner never
	// touches a backend.Tx, so it cannot read the prior row to merge
	// unspecified columns itself — internal/commit.Generator does that
	// merge once it has a transaction.
	assert.Equal(t, map[string]any{"theme": "light"}, mut.Content)
}

func TestPlanDeleteProducesTombstoneMutation(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`DELETE FROM lix_state WHERE entity_id = ? AND schema_key = ?`, []any{"e1", "todo.item"})
	require.NoError(t, err)
	mut := plan.Statements[0].Mutations[0]
	assert.Equal(t, "delete", mut.Op)
	assert.Nil(t, mut.Content)
}

func TestPlanFileInsertNormalizesPath(t *testing.T) {
	p := New(newFakeCatalog())
	plan, err := p.Plan(`INSERT INTO lix_file (path) VALUES (?)`, []any{"/docs/readme.md"})
	require.NoError(t, err)
	mut := plan.Statements[0].Mutations[0]
	require.NotNil(t, mut.Filesystem)
	assert.Equal(t, "/docs", mut.Filesystem.DirPath)
	assert.Equal(t, "readme", mut.Filesystem.Name)
	assert.Equal(t, "md", mut.Filesystem.Extension)
}

func TestPlanFileInsertRejectsBadPath(t *testing.T) {
	p := New(newFakeCatalog())
	_, err := p.Plan(`INSERT INTO lix_file (path) VALUES (?)`, []any{"relative/path.md"})
	require.Error(t, err)
}

func TestFingerprintForIsStableAndOrderSensitive(t *testing.T) {
	a := fingerprintFor("state", "todo.item", "full")
	b := fingerprintFor("state", "todo.item", "full")
	c := fingerprintFor("state", "full", "todo.item")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
