package schema

import (
	"fmt"
	"strings"
)

// MaterializedTableName returns the per-schema materialized table name
// (spec.md §3 "Materialized State (per schema)", §6.1
// "lix_internal_state_materialized_v1_*").
func MaterializedTableName(schemaKey string) string {
	return "lix_internal_state_materialized_v1_" + sanitizeIdent(schemaKey)
}

func sanitizeIdent(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// ProjectedColumn is one generated/stored column the materialized table
// carries in addition to the fixed (entity_id, file_id, version_id,
// snapshot_content, change_id, is_tombstone, created_at, updated_at)
// envelope, derived from a schema's x-lix-primary-key/x-lix-unique/
// x-lix-foreign-key extensions (spec.md §4.8).
type ProjectedColumn struct {
	Name     string
	JSONPath string // e.g. "$.title"
	Type     string // SQL type: TEXT, INTEGER, REAL
}

// ProjectColumns derives the set of generated columns a materialized table
// needs to enforce s's constraints, deduplicating across primary key,
// unique sets, and foreign keys.
func ProjectColumns(s *StoredSchema) []ProjectedColumn {
	seen := map[string]bool{}
	var out []ProjectedColumn
	add := func(col string) {
		if seen[col] {
			return
		}
		seen[col] = true
		out = append(out, ProjectedColumn{
			Name:     "proj_" + sanitizeIdent(col),
			JSONPath: "$." + col,
			Type:     "TEXT",
		})
	}
	for _, c := range s.PrimaryKey {
		add(c)
	}
	for _, set := range s.Unique {
		for _, c := range set {
			add(c)
		}
	}
	for _, fk := range s.ForeignKeys {
		for _, c := range fk.Columns {
			add(c)
		}
	}
	return out
}

// CreateTableSQL emits the DDL for s's materialized table, including
// generated-column projections. The only table-level constraint it emits is
// the (entity_id, file_id, version_id) primary key; x-lix-primary-key,
// x-lix-unique and x-lix-foreign-key columns are projected but not declared
// as PRIMARY KEY, UNIQUE or FOREIGN KEY constraints. dialect controls
// generated-column syntax (SQLite's
// GENERATED ALWAYS AS (...) STORED vs Postgres's GENERATED ALWAYS AS (...)
// STORED — both engines share this syntax, but JSON extraction differs:
// SQLite uses json_extract, Postgres uses ->>).
func CreateTableSQL(s *StoredSchema, isPostgres bool) string {
	table := MaterializedTableName(s.SchemaKey)
	cols := ProjectColumns(s)

	jsonExtract := func(path string) string {
		if isPostgres {
			return fmt.Sprintf("(snapshot_content #>> '{%s}')", jsonPathToPostgresPath(path))
		}
		return fmt.Sprintf("json_extract(snapshot_content, '%s')", path)
	}

	ddl := "CREATE TABLE IF NOT EXISTS " + table + " (\n"
	ddl += "  entity_id TEXT NOT NULL,\n"
	ddl += "  file_id TEXT,\n"
	ddl += "  version_id TEXT NOT NULL,\n"
	ddl += "  snapshot_content TEXT,\n"
	ddl += "  change_id TEXT NOT NULL,\n"
	ddl += "  is_tombstone INTEGER NOT NULL DEFAULT 0,\n"
	ddl += "  created_at TEXT NOT NULL,\n"
	ddl += "  updated_at TEXT NOT NULL,\n"
	for _, c := range cols {
		ddl += fmt.Sprintf("  %s TEXT GENERATED ALWAYS AS (%s) STORED,\n", c.Name, jsonExtract(c.JSONPath))
	}
	ddl += "  PRIMARY KEY (entity_id, file_id, version_id)\n"
	ddl += ")"
	return ddl
}

func jsonPathToPostgresPath(path string) string {
	// "$.title" -> "title" ; "$.a.b" -> "a,b" for Postgres's #>> path array.
	parts := strings.Split(strings.TrimPrefix(path, "$."), ".")
	return strings.Join(parts, ",")
}
