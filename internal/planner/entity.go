package planner

import (
	"fmt"

	"github.com/lixdb/lix/internal/contracts"
)

// planEntitySelect rewrites entity/entity_by_version: the same shared
// effective-state builder as lix_state, but with schema_key sourced from an
// explicit pushdown (never fixed, since "entity" spans every registered
// schema) and always filtered to one entity_id (spec.md §4.3.5 "a single
// logical record viewed across its own schema, independent of file
// framing").
func (p *Planner) planEntitySelect(pd *pushdownResult, active bool, projection contracts.Projection) (contracts.PlannedStatement, error) {
	entityID, _ := pd.Values["entity_id"].(string)
	if entityID == "" {
		return contracts.PlannedStatement{}, plannerErr("entity read requires an explicit entity_id equality predicate")
	}
	schemaKey, _ := pd.Values["schema_key"].(string)
	if schemaKey == "" {
		return contracts.PlannedStatement{}, plannerErr("entity read requires an explicit schema_key equality predicate")
	}
	if !p.catalog.HasSchema(schemaKey) {
		return contracts.PlannedStatement{}, plannerErr(fmt.Sprintf("unknown schema_key %q", schemaKey))
	}

	var versionID string
	if active {
		versionID = p.catalog.ActiveVersionID()
	} else {
		versionID, _ = pd.Values["version_id"].(string)
		if versionID == "" {
			return contracts.PlannedStatement{}, plannerErr("entity_by_version read requires an explicit version_id equality predicate")
		}
	}
	chain := p.catalog.VersionChain(versionID)

	extraWhere := appendAnd("", fmt.Sprintf("entity_id = %s", sqlQuote(entityID)))
	if pd.LeftoverSQL != "" {
		extraWhere = appendAnd(extraWhere, pd.LeftoverSQL)
	}

	sql := buildEffectiveSelect(p.catalog.MaterializedTable(schemaKey), schemaKey, chain, projection, extraWhere)
	return contracts.PlannedStatement{
		SQL:          sql,
		Placeholders: pd.LeftoverRefs,
		Fingerprint:  fingerprintFor("entity", schemaKey, entityID, string(projection)),
		ReadIntent:   true,
	}, nil
}

// planEntityHistorySelect rewrites entity_history into the same change-log
// shape as lix_state_history, filtered to one entity_id.
func (p *Planner) planEntityHistorySelect(pd *pushdownResult) (contracts.PlannedStatement, error) {
	entityID, _ := pd.Values["entity_id"].(string)
	if entityID == "" {
		return contracts.PlannedStatement{}, plannerErr("entity_history read requires an explicit entity_id equality predicate")
	}
	rootCommitID, _ := pd.Values["root_commit_id"].(string)
	if rootCommitID == "" {
		rootCommitID = p.catalog.VersionTip(p.catalog.ActiveVersionID())
	}

	sql := fmt.Sprintf(`
SELECT ch.id AS change_id, ch.entity_id, ch.schema_key, ch.file_id,
       sn.payload AS snapshot_content, ch.snapshot_id = 'lix_no_content' AS is_tombstone,
       g.commit_id, g.depth
FROM lix_internal_materialization_commit_graph g
JOIN lix_commit_change cc ON cc.commit_id = g.commit_id
JOIN lix_internal_change ch ON ch.id = cc.change_id
LEFT JOIN lix_internal_snapshot sn ON sn.id = ch.snapshot_id
WHERE g.root_commit_id = %s AND ch.entity_id = %s
ORDER BY g.depth ASC`, sqlQuote(rootCommitID), sqlQuote(entityID))

	return contracts.PlannedStatement{
		SQL:          sql,
		Placeholders: pd.LeftoverRefs,
		Requirements: contracts.HistoryRequirements{RootCommitID: rootCommitID, MaxDepth: -1},
		Fingerprint:  fingerprintFor("entity_history", entityID, rootCommitID),
		ReadIntent:   true,
	}, nil
}
