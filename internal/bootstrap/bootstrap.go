// Package bootstrap creates the fixed set of tables every lix handle needs
// before the first statement can run: the version model (§3), the
// content-addressed change/snapshot/commit tables (§3, §4.4), the untracked
// overlay, maintenance caches (§4.6), and the CAS tables for binary file
// content (§4.11) — plus registers the built-in schemas (lix_directory,
// lix_file_descriptor, lix_binary_blob_ref) and seeds the initial "main"
// version.
//
// Grounded on the teacher's internal/storage/dolt/migrations.go: an ordered
// list of named, idempotent steps run in sequence at open time. Here every
// step is a CREATE TABLE IF NOT EXISTS, so "idempotent" falls out of the SQL
// itself rather than needing a column-existence probe first.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/schema"
)

// step is one named DDL statement, run in order. Order matters only for
// readability here (every statement is independently idempotent), the same
// way the teacher's migrations list orders by when each concern was added.
type step struct {
	name string
	sql  string
}

func coreSteps(isPostgres bool) []step {
	text := "TEXT"
	ts := "TEXT"
	if isPostgres {
		text = "TEXT"
		ts = "TIMESTAMPTZ"
	}
	return []step{
		{"version_descriptor", `CREATE TABLE IF NOT EXISTS lix_version_descriptor (
			id ` + text + ` PRIMARY KEY,
			name ` + text + `,
			parent_version_id ` + text + `,
			created_at ` + ts + ` NOT NULL
		)`},
		{"version_pointer", `CREATE TABLE IF NOT EXISTS lix_version_pointer (
			version_id ` + text + ` PRIMARY KEY,
			tip_commit_id ` + text + `,
			parent_commit_id ` + text + `
		)`},
		{"commit", `CREATE TABLE IF NOT EXISTS lix_commit (
			id ` + text + ` PRIMARY KEY,
			created_at ` + ts + ` NOT NULL
		)`},
		{"commit_change", `CREATE TABLE IF NOT EXISTS lix_commit_change (
			commit_id ` + text + ` NOT NULL,
			change_id ` + text + ` NOT NULL,
			PRIMARY KEY (commit_id, change_id)
		)`},
		{"internal_snapshot", `CREATE TABLE IF NOT EXISTS lix_internal_snapshot (
			id ` + text + ` PRIMARY KEY,
			payload ` + text + `
		)`},
		{"internal_change", `CREATE TABLE IF NOT EXISTS lix_internal_change (
			id ` + text + ` PRIMARY KEY,
			entity_id ` + text + ` NOT NULL,
			schema_key ` + text + ` NOT NULL,
			schema_version ` + text + `,
			file_id ` + text + `,
			plugin_key ` + text + `,
			snapshot_id ` + text + `,
			created_at ` + ts + ` NOT NULL
		)`},
		{"internal_state_untracked", `CREATE TABLE IF NOT EXISTS lix_internal_state_untracked (
			entity_id ` + text + ` NOT NULL,
			schema_key ` + text + ` NOT NULL,
			file_id ` + text + `,
			version_id ` + text + ` NOT NULL,
			snapshot_content ` + text + `,
			change_id ` + text + `,
			is_tombstone INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL,
			PRIMARY KEY (entity_id, schema_key, version_id)
		)`},
		{"materialization_commit_graph", `CREATE TABLE IF NOT EXISTS lix_internal_materialization_commit_graph (
			root_commit_id ` + text + ` NOT NULL,
			commit_id ` + text + ` NOT NULL,
			depth INTEGER NOT NULL,
			PRIMARY KEY (root_commit_id, commit_id)
		)`},
		{"file_history_cache", `CREATE TABLE IF NOT EXISTS lix_file_history_cache (
			file_id ` + text + ` NOT NULL,
			root_commit_id ` + text + ` NOT NULL,
			change_id ` + text + ` NOT NULL,
			commit_id ` + text + ` NOT NULL,
			depth INTEGER NOT NULL,
			PRIMARY KEY (file_id, root_commit_id, change_id)
		)`},
		{"binary_chunk_store", `CREATE TABLE IF NOT EXISTS lix_internal_binary_chunk_store (
			chunk_hash ` + text + ` PRIMARY KEY,
			codec ` + text + ` NOT NULL,
			payload BLOB,
			raw_size INTEGER NOT NULL
		)`},
		{"binary_blob_manifest", `CREATE TABLE IF NOT EXISTS lix_internal_binary_blob_manifest (
			blob_hash ` + text + ` PRIMARY KEY,
			size_bytes INTEGER NOT NULL
		)`},
		{"binary_blob_manifest_chunk", `CREATE TABLE IF NOT EXISTS lix_internal_binary_blob_manifest_chunk (
			blob_hash ` + text + ` NOT NULL,
			chunk_hash ` + text + ` NOT NULL,
			ordinal INTEGER NOT NULL,
			PRIMARY KEY (blob_hash, ordinal)
		)`},
		{"binary_file_version_ref", `CREATE TABLE IF NOT EXISTS lix_internal_binary_file_version_ref (
			file_id ` + text + ` NOT NULL,
			version_id ` + text + ` NOT NULL,
			blob_hash ` + text + ` NOT NULL,
			PRIMARY KEY (file_id, version_id)
		)`},
		// lix_directory is a built-in schema whose materialized table is
		// hand-written with real (not JSON-generated) columns: internal/fsx
		// reads and writes it directly with typed id/parent_id/name
		// predicates for path-collision resolution, bypassing the generic
		// commit.Generator materialization path lix_file_descriptor uses.
		{"materialized_lix_directory", `CREATE TABLE IF NOT EXISTS lix_internal_state_materialized_v1_lix_directory (
			entity_id ` + text + ` NOT NULL,
			id ` + text + ` NOT NULL,
			parent_id ` + text + `,
			name ` + text + ` NOT NULL,
			file_id ` + text + `,
			version_id ` + text + ` NOT NULL,
			snapshot_content ` + text + `,
			change_id ` + text + ` NOT NULL,
			is_tombstone INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL,
			PRIMARY KEY (entity_id, version_id)
		)`},
	}
}

// builtinSchemas are the schema_key documents every lix handle carries
// without the host registering them, mirroring spec.md §3's fixed entities
// (directories, file descriptors, binary blob refs) and §5's
// active-version/active-account kv rows (schema_key "lix_internal_kv",
// validated as a permissive object since its shape varies per key).
func builtinSchemas() []*schema.StoredSchema {
	return []*schema.StoredSchema{
		{
			SchemaKey: "lix_internal_kv",
			Version:   "1",
			Document:  json.RawMessage(`{"type":"object"}`),
		},
		{
			SchemaKey: "lix_directory",
			Version:   "1",
			Document: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"parent_id": {"type": ["string", "null"]},
					"name": {"type": "string"}
				},
				"required": ["id", "name"]
			}`),
			PrimaryKey: []string{"id"},
			Unique:     [][]string{{"parent_id", "name"}},
		},
		{
			SchemaKey: "lix_file_descriptor",
			Version:   "1",
			Document: json.RawMessage(`{
				"type": "object",
				"properties": {
					"directory_id": {"type": ["string", "null"]},
					"name": {"type": "string"},
					"extension": {"type": ["string", "null"]}
				},
				"required": ["name"]
			}`),
			Unique: [][]string{{"directory_id", "name", "extension"}},
			ForeignKeys: []schema.ForeignKey{
				{Columns: []string{"directory_id"}, RefSchema: "lix_directory", RefColumns: []string{"id"}},
			},
		},
		{
			// lix_binary_blob_ref is the single metadata entity spec.md §4.11's
			// binary fallback writes per file version: one row pointing at the
			// CAS manifest that reconstructs that file's bytes.
			SchemaKey: "lix_binary_blob_ref",
			Version:   "1",
			Document: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"blob_hash": {"type": "string"},
					"size_bytes": {"type": "integer"}
				},
				"required": ["id", "blob_hash", "size_bytes"]
			}`),
			PrimaryKey: []string{"id"},
		},
	}
}

func ph(isPostgres bool, n int) string {
	if isPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Run creates every core table (idempotently), registers the built-in
// schemas (creating their materialized tables), and seeds a "main" version
// plus its active-version kv row if no version exists yet. Safe to call on
// every Open: every statement either already exists or targets an empty
// table.
func Run(ctx context.Context, b backend.Backend, registry *schema.Registry, now string) error {
	isPostgres := b.Dialect() == backend.DialectServer

	for _, s := range coreSteps(isPostgres) {
		if _, err := b.Execute(ctx, s.sql, nil); err != nil {
			return fmt.Errorf("bootstrap: %s: %w", s.name, err)
		}
	}

	for _, s := range builtinSchemas() {
		if err := registry.Load(s); err != nil {
			return fmt.Errorf("bootstrap: load schema %s: %w", s.SchemaKey, err)
		}
		if s.SchemaKey == "lix_internal_kv" {
			continue // the kv overlay table is created above, not per-schema
		}
		if _, err := b.Execute(ctx, schema.CreateTableSQL(s, isPostgres), nil); err != nil {
			return fmt.Errorf("bootstrap: create table for %s: %w", s.SchemaKey, err)
		}
	}

	return seedInitialVersion(ctx, b, isPostgres, now)
}

// seedInitialVersion creates the "main" version descriptor, an empty
// version pointer row, and the active-version kv row, but only if no
// version descriptor exists yet — a fresh database needs exactly one
// version to make any write meaningful (spec.md §3 "a version always points
// somewhere"), but re-opening an existing one must never reset it.
func seedInitialVersion(ctx context.Context, b backend.Backend, isPostgres bool, now string) error {
	res, err := b.Execute(ctx, "SELECT COUNT(*) FROM lix_version_descriptor", nil)
	if err != nil {
		return fmt.Errorf("bootstrap: count versions: %w", err)
	}
	if len(res.Rows) > 0 {
		if n, ok := asInt64(res.Rows[0][0]); ok && n > 0 {
			return nil
		}
	}

	const mainVersionID = "main"
	if _, err := b.Execute(ctx,
		"INSERT INTO lix_version_descriptor (id, name, parent_version_id, created_at) VALUES ("+ph(isPostgres, 1)+","+ph(isPostgres, 2)+",NULL,"+ph(isPostgres, 3)+")",
		[]any{mainVersionID, mainVersionID, now}); err != nil {
		return fmt.Errorf("bootstrap: seed main version: %w", err)
	}
	if _, err := b.Execute(ctx,
		"INSERT INTO lix_version_pointer (version_id, tip_commit_id, parent_commit_id) VALUES ("+ph(isPostgres, 1)+",NULL,NULL)",
		[]any{mainVersionID}); err != nil {
		return fmt.Errorf("bootstrap: seed version pointer: %w", err)
	}

	changeID := uuid.NewString()
	content := `{"value":"` + mainVersionID + `"}`
	if _, err := b.Execute(ctx,
		`INSERT INTO lix_internal_state_untracked (entity_id, schema_key, file_id, version_id, snapshot_content, change_id, is_tombstone, created_at, updated_at)
		 VALUES (`+ph(isPostgres, 1)+`,'lix_internal_kv',NULL,`+ph(isPostgres, 2)+`,`+ph(isPostgres, 3)+`,`+ph(isPostgres, 4)+`,0,`+ph(isPostgres, 5)+`,`+ph(isPostgres, 6)+`)`,
		[]any{"active_version", mainVersionID, content, changeID, now, now}); err != nil {
		return fmt.Errorf("bootstrap: seed active version kv: %w", err)
	}
	return nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
