package history

import (
	"context"
	"fmt"

	"github.com/lixdb/lix/internal/backend"
)

// StateHistoryRow is one row of the state-history timeline (spec.md §4.3.3):
// a change visible from rootCommitID's ancestry, annotated with the depth
// at which its owning commit sits.
type StateHistoryRow struct {
	ChangeID        string
	EntityID        string
	SchemaKey       string
	FileID          string
	SnapshotContent []byte
	IsTombstone     bool
	CommitID        string
	Depth           int
}

// FileHistoryRow is the file-scoped counterpart, read from
// lix_file_history_cache once Maintainer.Satisfy has populated it for the
// requested scope.
type FileHistoryRow struct {
	ChangeID string
	CommitID string
	Depth    int
}

// StateHistory reads the materialized commit-ancestry projection for
// rootCommitID, optionally filtered to schemaKey, up to maxDepth (-1 for
// unbounded). Callers must have already called Maintainer.Satisfy for this
// (rootCommitID, maxDepth) pair in the same transaction — this function
// only reads, it never materializes.
func StateHistory(ctx context.Context, tx backend.Tx, isPostgres bool, rootCommitID, schemaKey string, maxDepth int) ([]StateHistoryRow, error) {
	schemaPredicate := ""
	args := []any{rootCommitID}
	if schemaKey != "" {
		schemaPredicate = "AND ch.schema_key = " + ph(isPostgres, 2)
		args = append(args, schemaKey)
	}
	depthPredicate := ""
	if maxDepth >= 0 {
		depthPredicate = fmt.Sprintf("AND g.depth <= %d", maxDepth)
	}

	res, err := tx.Execute(ctx, `
		SELECT ch.id, ch.entity_id, ch.schema_key, ch.file_id, sn.payload,
		       ch.snapshot_id = 'lix_no_content', g.commit_id, g.depth
		FROM lix_internal_materialization_commit_graph g
		JOIN lix_commit_change cc ON cc.commit_id = g.commit_id
		JOIN lix_internal_change ch ON ch.id = cc.change_id
		LEFT JOIN lix_internal_snapshot sn ON sn.id = ch.snapshot_id
		WHERE g.root_commit_id = `+ph(isPostgres, 1)+`
		  `+schemaPredicate+`
		  `+depthPredicate+`
		ORDER BY g.depth ASC`,
		args)
	if err != nil {
		return nil, fmt.Errorf("history: read state history for %s: %w", rootCommitID, err)
	}

	out := make([]StateHistoryRow, 0, len(res.Rows))
	for _, row := range res.Rows {
		var r StateHistoryRow
		r.ChangeID, _ = row[0].(string)
		r.EntityID, _ = row[1].(string)
		r.SchemaKey, _ = row[2].(string)
		r.FileID, _ = row[3].(string)
		r.SnapshotContent, _ = row[4].([]byte)
		r.IsTombstone = asBool(row[5])
		r.CommitID, _ = row[6].(string)
		depth, _ := row[7].(int64)
		r.Depth = int(depth)
		out = append(out, r)
	}
	return out, nil
}

// FileHistory reads the materialized lix_file_history_cache rows for
// (fileID, rootCommitID), populated by Maintainer.Satisfy's
// RefreshFileHistoryCache path.
func FileHistory(ctx context.Context, tx backend.Tx, isPostgres bool, fileID, rootCommitID string) ([]FileHistoryRow, error) {
	res, err := tx.Execute(ctx,
		`SELECT change_id, commit_id, depth FROM lix_file_history_cache
		 WHERE file_id = `+ph(isPostgres, 1)+` AND root_commit_id = `+ph(isPostgres, 2)+`
		 ORDER BY depth ASC`,
		[]any{fileID, rootCommitID})
	if err != nil {
		return nil, fmt.Errorf("history: read file history for %s: %w", fileID, err)
	}
	out := make([]FileHistoryRow, 0, len(res.Rows))
	for _, row := range res.Rows {
		changeID, _ := row[0].(string)
		commitID, _ := row[1].(string)
		depth, _ := row[2].(int64)
		out = append(out, FileHistoryRow{ChangeID: changeID, CommitID: commitID, Depth: int(depth)})
	}
	return out, nil
}

func asBool(v any) bool {
	switch t := v.(type) {
	case int64:
		return t != 0
	case bool:
		return t
	default:
		return false
	}
}
