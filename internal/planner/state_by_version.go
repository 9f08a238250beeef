package planner

import (
	"fmt"
	"strings"

	"github.com/lixdb/lix/internal/contracts"
)

// planStateSelect rewrites a SELECT against lix_state or lix_state_by_version
// into the canonical ranked-union shape (spec.md §4.3.1/§4.3.2). active
// selects ScopeActive (lix_state: version id comes from the catalog, not
// the WHERE clause); otherwise the statement must carry an explicit
// version_id equality predicate (spec.md §4.3.1 "INSERT/UPDATE/DELETE...
// must carry an explicit version_id" — the same requirement holds for
// reads, since there is no other way to know which version to scan).
func (p *Planner) planStateSelect(pd *pushdownResult, active bool, projection contracts.Projection) (contracts.PlannedStatement, error) {
	schemaKey, _ := pd.Values["schema_key"].(string)
	if schemaKey == "" {
		return contracts.PlannedStatement{}, plannerErr("lix_state read requires an explicit schema_key equality predicate")
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
			return contracts.PlannedStatement{}, plannerErr("lix_state_by_version read requires an explicit version_id equality predicate")
		}
	}
	chain := p.catalog.VersionChain(versionID)

	extraWhere := ""
	if entityID, ok := pd.Values["entity_id"].(string); ok {
		extraWhere = appendAnd(extraWhere, fmt.Sprintf("entity_id = %s", sqlQuote(entityID)))
	}
	if fileID, ok := pd.Values["file_id"].(string); ok {
		extraWhere = appendAnd(extraWhere, fmt.Sprintf("file_id = %s", sqlQuote(fileID)))
	}
	if pd.LeftoverSQL != "" {
		extraWhere = appendAnd(extraWhere, pd.LeftoverSQL)
	}

	sql := buildEffectiveSelect(p.catalog.MaterializedTable(schemaKey), schemaKey, chain, projection, extraWhere)
	return contracts.PlannedStatement{
		SQL:          sql,
		Placeholders: pd.LeftoverRefs,
		Fingerprint:  fingerprintFor("state", schemaKey, string(projection), strings.Join(chain, ",")),
		ReadIntent:   true,
	}, nil
}

func appendAnd(existing, clause string) string {
	if existing == "" {
		return clause
	}
	return existing + " AND " + clause
}

func plannerErr(reason string) error {
	return &contracts.EngineError{Kind: contracts.KindPlannerInvariant, Reason: reason}
}
