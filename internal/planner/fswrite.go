package planner

import (
	vsql "github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/ast"
	"github.com/lixdb/lix/internal/contracts"
	"github.com/lixdb/lix/internal/fsx"
)

// planFileWrite handles INSERT/UPDATE/DELETE against lix_file or
// lix_file_by_version. It normalizes the incoming `path` column (pure text
// processing, spec.md §4.7) into a FilesystemIntent and wraps it in a
// PendingMutation targeting the file descriptor schema; internal/runner
// finishes the job by resolving the directory id (auto-creating ancestors)
// and checking for a name/extension collision before generating the
// commit, since both of those require a backend.Tx the planner never
// touches.
func (p *Planner) planFileWrite(stmt *ast.Statement, active bool, hostParams []any) (*contracts.ExecutionPlan, error) {
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

	var versionID string
	if active {
		versionID = p.catalog.ActiveVersionID()
	} else {
		versionID, _ = values["version_id"].(string)
		if versionID == "" {
			versionID, _ = whereValues["version_id"].(string)
		}
		if versionID == "" {
			return nil, plannerErr("lix_file_by_version write must carry an explicit version_id")
		}
	}

	mut := contracts.PendingMutation{
		EntityID:  entityID,
		SchemaKey: fileSchemaKey,
		VersionID: versionID,
		Op:        op,
	}

	if op == "delete" {
		if entityID == "" {
			return nil, plannerErr("lix_file delete requires an entity_id")
		}
		mut.Filesystem = &contracts.FilesystemIntent{IsDelete: true}
	} else {
		rawPath, _ := values["path"].(string)
		if rawPath == "" {
			return nil, plannerErr("lix_file write requires a path")
		}
		norm, err := fsx.Normalize(rawPath)
		if err != nil {
			return nil, plannerErr("invalid path: " + err.Error())
		}
		// mut.EntityID stays "" for an insert with no explicit entity_id;
		// internal/runner assigns a fresh one before calling the generator.
		mut.Content = map[string]any{
			"name":      norm.Name,
			"extension": norm.Extension,
		}
		mut.Filesystem = &contracts.FilesystemIntent{DirPath: norm.Dir, Name: norm.Name, Extension: norm.Extension}
	}

	planned := contracts.PlannedStatement{
		Mutations:   []contracts.PendingMutation{mut},
		Fingerprint: fingerprintFor("file_write", op, versionID),
		ReadIntent:  false,
	}
	return &contracts.ExecutionPlan{
		Statements:  []contracts.PlannedStatement{planned},
		Fingerprint: planned.Fingerprint,
	}, nil
}
