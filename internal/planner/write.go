package planner

import (
	"fmt"

	vsql "github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/ast"
	"github.com/lixdb/lix/internal/contracts"
)

// columnValues resolves an ordered list of (column, value) pairs from
// either an INSERT's column/value-tuple pair or an UPDATE's SET-expression
// list, in left-to-right appearance order, consuming placeholder tokens
// from allTokens in lockstep — the same single-pass, order-preserving
// assumption extractPushdown makes (spec.md §4.4's vtable writes are always
// single-row, so a statement never interleaves two rows' placeholders).
func columnValues(cols []string, exprs []vsql.Expr, allTokens []string, tokenIdx *int, hostParams []any) (map[string]any, error) {
	if len(cols) != len(exprs) {
		return nil, plannerErr("column list and value list length mismatch")
	}
	anonCounter := 0
	out := map[string]any{}
	for i, col := range cols {
		e := exprs[i]
		if sqlVal, ok := e.(*vsql.SQLVal); ok && sqlVal.Type == vsql.ValArg {
			if *tokenIdx >= len(allTokens) {
				return nil, plannerErr("more placeholders than tokens found while resolving column values")
			}
			token := allTokens[*tokenIdx]
			*tokenIdx++
			kind, n, ok := ast.ClassifyPlaceholder(token)
			if !ok {
				return nil, plannerErr(fmt.Sprintf("unrecognized placeholder token %q", token))
			}
			var idx int
			if kind == contracts.PlaceholderAnon {
				idx = anonCounter
				anonCounter++
			} else {
				idx = n - 1
			}
			if idx < 0 || idx >= len(hostParams) {
				return nil, plannerErr(fmt.Sprintf("placeholder %q refers to out-of-range host param", token))
			}
			out[col] = hostParams[idx]
		} else {
			out[col] = literalValue(e)
		}
	}
	return out, nil
}

func insertColumnsAndValues(ins *vsql.Insert) ([]string, []vsql.Expr, error) {
	cols := make([]string, len(ins.Columns))
	for i, c := range ins.Columns {
		cols[i] = c.String()
	}
	values, ok := ins.Rows.(vsql.Values)
	if !ok || len(values) != 1 {
		return nil, nil, plannerErr("lix view/vtable writes must supply exactly one VALUES row")
	}
	return cols, []vsql.Expr(values[0]), nil
}

func updateColumnsAndValues(upd *vsql.Update) ([]string, []vsql.Expr) {
	cols := make([]string, len(upd.Exprs))
	vals := make([]vsql.Expr, len(upd.Exprs))
	for i, e := range upd.Exprs {
		cols[i] = e.Name.Name.String()
		vals[i] = e.Expr
	}
	return cols, vals
}

// planStateWrite handles INSERT/UPDATE/DELETE against lix_state or
// lix_state_by_version: each resolves to exactly one tracked mutation
// (spec.md §4.4 "vtable write flow"), fully described as a PendingMutation
// for internal/runner to hand to internal/commit.Generator inside its own
// transaction — the planner itself never writes anything.
func (p *Planner) planStateWrite(stmt *ast.Statement, active bool, hostParams []any) (*contracts.ExecutionPlan, error) {
	allTokens := ast.FindPlaceholders(stmt.String())
	tokenIdx := 0

	var cols []string
	var vals []vsql.Expr
	var where vsql.Expr
	var op string

	switch n := stmt.Node.(type) {
	case *vsql.Insert:
		var err error
		cols, vals, err = insertColumnsAndValues(n)
		if err != nil {
			return nil, err
		}
		op = "insert"
	case *vsql.Update:
		cols, vals = updateColumnsAndValues(n)
		if n.Where != nil {
			where = n.Where.Expr
		}
		op = "update"
	case *vsql.Delete:
		if n.Where != nil {
			where = n.Where.Expr
		}
		op = "delete"
	}

	values, err := columnValues(cols, vals, allTokens, &tokenIdx, hostParams)
	if err != nil {
		return nil, err
	}

	var whereValues map[string]any
	if where != nil {
		pd, err := extractPushdownFrom(where, stmt.String(), hostParams, tokenIdx)
		if err != nil {
			return nil, err
		}
		whereValues = pd.Values
	}

	entityID, _ := values["entity_id"].(string)
	if entityID == "" {
		entityID, _ = whereValues["entity_id"].(string)
	}
	if entityID == "" {
		return nil, plannerErr("lix_state write requires an entity_id")
	}
	schemaKey, _ := values["schema_key"].(string)
	if schemaKey == "" {
		schemaKey, _ = whereValues["schema_key"].(string)
	}
	if schemaKey == "" {
		return nil, plannerErr("lix_state write requires a schema_key")
	}
	if !p.catalog.HasSchema(schemaKey) {
		return nil, plannerErr(fmt.Sprintf("unknown schema_key %q", schemaKey))
	}

	var versionID string
	if active {
		versionID = p.catalog.ActiveVersionID()
	} else {
		versionID, _ = values["version_id"].(string)
		if versionID == "" {
			versionID, _ = whereValues["version_id"].(string)
		}
		if versionID == "" {
			return nil, plannerErr("lix_state_by_version write must carry an explicit version_id")
		}
	}

	mut := contracts.PendingMutation{
		EntityID:  entityID,
		SchemaKey: schemaKey,
		FileID:    stringVal(values["file_id"]),
		VersionID: versionID,
		PluginKey: stringVal(values["plugin_key"]),
		Op:        op,
	}
	if op != "delete" {
		mut.Content = snapshotContentFrom(values)
	}

	planned := contracts.PlannedStatement{
		Mutations:   []contracts.PendingMutation{mut},
		Fingerprint: fingerprintFor("state_write", op, schemaKey, versionID),
		ReadIntent:  false,
	}
	return &contracts.ExecutionPlan{
		Statements:  []contracts.PlannedStatement{planned},
		Fingerprint: planned.Fingerprint,
	}, nil
}

func stringVal(v any) string {
	s, _ := v.(string)
	return s
}

// snapshotContentFrom drops the identifying columns (entity_id, schema_key,
// file_id, version_id, plugin_key) and treats every remaining column as
// part of the entity's JSON payload — the same shape
// internal/schema.Registry.Validate expects (spec.md §4.1 "schema_key +
// arbitrary JSON payload"). For an UPDATE this is only the SET-clause
// columns; the planner has no backend.Tx to read the prior row with, so
// commit.Generator merges this partial map onto the entity's existing
// materialized content before hashing (spec.md §4.4 "partial updates merge
// with the prior row view, preserving unspecified columns").
func snapshotContentFrom(values map[string]any) map[string]any {
	skip := map[string]bool{"entity_id": true, "schema_key": true, "file_id": true, "version_id": true, "plugin_key": true}
	out := map[string]any{}
	for k, v := range values {
		if !skip[k] {
			out[k] = v
		}
	}
	return out
}
