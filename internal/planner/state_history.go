package planner

import (
	"fmt"

	"github.com/lixdb/lix/internal/contracts"
)

// planStateHistorySelect rewrites a SELECT against lix_state_history into a
// change-log projection over an explicit (root_commit_id, max_depth) scope
// (spec.md §4.3.3). When neither is present in the WHERE clause, the
// planner fills in the active version's tip as root and an unbounded
// depth, and emits HistoryRequirements demanding that ancestry be
// materialized before execution — the one place a read query requires
// maintenance, and it does so through typed Requirements, never an
// implicit SQL substring heuristic (spec.md §4.10).
func (p *Planner) planStateHistorySelect(pd *pushdownResult) (contracts.PlannedStatement, error) {
	rootCommitID, _ := pd.Values["root_commit_id"].(string)
	maxDepth := -1
	if d, ok := pd.Values["depth"]; ok {
		switch v := d.(type) {
		case int:
			maxDepth = v
		case string:
			fmt.Sscanf(v, "%d", &maxDepth)
		}
	}
	if rootCommitID == "" {
		rootCommitID = p.catalog.VersionTip(p.catalog.ActiveVersionID())
	}

	schemaPredicate := ""
	if schemaKey, ok := pd.Values["schema_key"].(string); ok {
		schemaPredicate = " AND ch.schema_key = " + sqlQuote(schemaKey)
	}
	extraWhere := pd.LeftoverSQL
	if extraWhere != "" {
		extraWhere = " AND (" + extraWhere + ")"
	}

	depthClause := ""
	if maxDepth >= 0 {
		depthClause = fmt.Sprintf(" AND g.depth <= %d", maxDepth)
	}

	sql := fmt.Sprintf(`
SELECT ch.id AS change_id, ch.entity_id, ch.schema_key, ch.file_id,
       sn.payload AS snapshot_content, ch.snapshot_id = 'lix_no_content' AS is_tombstone,
       g.commit_id, g.depth
FROM lix_internal_materialization_commit_graph g
JOIN lix_commit_change cc ON cc.commit_id = g.commit_id
JOIN lix_internal_change ch ON ch.id = cc.change_id
LEFT JOIN lix_internal_snapshot sn ON sn.id = ch.snapshot_id
WHERE g.root_commit_id = %s%s%s%s
ORDER BY g.depth ASC`, sqlQuote(rootCommitID), depthClause, schemaPredicate, extraWhere)

	return contracts.PlannedStatement{
		SQL:          sql,
		Placeholders: pd.LeftoverRefs,
		Requirements: contracts.HistoryRequirements{RootCommitID: rootCommitID, MaxDepth: maxDepth},
		Fingerprint:  fingerprintFor("state_history", rootCommitID, fmt.Sprint(maxDepth)),
		ReadIntent:   true,
	}, nil
}
