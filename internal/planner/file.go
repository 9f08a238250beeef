package planner

import (
	"fmt"

	"github.com/lixdb/lix/internal/contracts"
)

// fileSchemaKey is the fixed schema_key every lix_file* alias reads under:
// file descriptor rows live in one materialized table regardless of which
// file is being queried (spec.md §4.3.4).
const fileSchemaKey = "lix_file_descriptor"

// planFileSelect rewrites lix_file/lix_file_by_version the same way
// planStateSelect rewrites lix_state/lix_state_by_version, fixed to the file
// descriptor schema and adding an optional file_id/entity_id pushdown
// (directory_id and path stay in the leftover WHERE). The on-demand `data`
// column is never part of the emitted SQL: file bytes are rebuilt outside
// the planner by Handle.ReadFile (lix.go), through internal/plugin.Runtime
// (ApplyRead) or internal/cas (binary reassembly).
func (p *Planner) planFileSelect(pd *pushdownResult, active bool, projection contracts.Projection) (contracts.PlannedStatement, error) {
	var versionID string
	if active {
		versionID = p.catalog.ActiveVersionID()
	} else {
		versionID, _ = pd.Values["version_id"].(string)
		if versionID == "" {
			return contracts.PlannedStatement{}, plannerErr("lix_file_by_version read requires an explicit version_id equality predicate")
		}
	}
	chain := p.catalog.VersionChain(versionID)

	extraWhere := ""
	if fileID, ok := pd.Values["file_id"].(string); ok {
		extraWhere = appendAnd(extraWhere, fmt.Sprintf("file_id = %s", sqlQuote(fileID)))
	}
	if entityID, ok := pd.Values["entity_id"].(string); ok {
		extraWhere = appendAnd(extraWhere, fmt.Sprintf("entity_id = %s", sqlQuote(entityID)))
	}
	if pd.LeftoverSQL != "" {
		extraWhere = appendAnd(extraWhere, pd.LeftoverSQL)
	}

	sql := buildEffectiveSelect(p.catalog.MaterializedTable(fileSchemaKey), fileSchemaKey, chain, projection, extraWhere)
	return contracts.PlannedStatement{
		SQL:          sql,
		Placeholders: pd.LeftoverRefs,
		Fingerprint:  fingerprintFor("file", fmt.Sprint(active), string(projection)),
		ReadIntent:   true,
	}, nil
}

// planFileHistorySelect rewrites lix_file_history into the same change-log
// shape as lix_state_history, scoped to the file descriptor schema and
// requiring an explicit file_id (spec.md §4.3.4 "history of one file's
// descriptor row across a commit ancestry").
func (p *Planner) planFileHistorySelect(pd *pushdownResult) (contracts.PlannedStatement, error) {
	fileID, _ := pd.Values["file_id"].(string)
	if fileID == "" {
		return contracts.PlannedStatement{}, plannerErr("lix_file_history read requires an explicit file_id equality predicate")
	}
	rootCommitID, _ := pd.Values["root_commit_id"].(string)
	if rootCommitID == "" {
		rootCommitID = p.catalog.VersionTip(p.catalog.ActiveVersionID())
	}

	sql := fmt.Sprintf(`
SELECT fhc.change_id, fhc.commit_id, fhc.depth
FROM lix_file_history_cache fhc
WHERE fhc.file_id = %s AND fhc.root_commit_id = %s
ORDER BY fhc.depth ASC`, sqlQuote(fileID), sqlQuote(rootCommitID))

	return contracts.PlannedStatement{
		SQL:          sql,
		Placeholders: pd.LeftoverRefs,
		Requirements: contracts.HistoryRequirements{RootCommitID: rootCommitID, MaxDepth: -1, RefreshFileHistoryCache: true, FileID: fileID},
		Fingerprint:  fingerprintFor("file_history", fileID, rootCommitID),
		ReadIntent:   true,
	}, nil
}
