package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaterializedTableName(t *testing.T) {
	assert.Equal(t, "lix_internal_state_materialized_v1_lix_key_value", MaterializedTableName("lix_key_value"))
}

func TestProjectColumnsDeduplicates(t *testing.T) {
	s := &StoredSchema{
		PrimaryKey: []string{"id"},
		Unique:     [][]string{{"id"}, {"name"}},
		ForeignKeys: []ForeignKey{
			{Columns: []string{"parent_id"}, RefSchema: "lix_directory", RefColumns: []string{"id"}},
		},
	}
	cols := ProjectColumns(s)
	names := map[string]bool{}
	for _, c := range cols {
		names[c.Name] = true
	}
	assert.Len(t, cols, 3)
	assert.True(t, names["proj_id"])
	assert.True(t, names["proj_name"])
	assert.True(t, names["proj_parent_id"])
}

func TestCreateTableSQLSqlite(t *testing.T) {
	s := &StoredSchema{SchemaKey: "lix_key_value", PrimaryKey: []string{"key"}}
	ddl := CreateTableSQL(s, false)
	assert.Contains(t, ddl, "json_extract(snapshot_content")
	assert.Contains(t, ddl, "lix_internal_state_materialized_v1_lix_key_value")
}
