package planner

import (
	"fmt"
	"strings"

	"github.com/lixdb/lix/internal/contracts"
)

// effectiveColumns is the fixed column list every effective-state candidate
// branch projects, in order, so priority/depth can be appended consistently
// (spec.md §4.3.1's ranked UNION).
var effectiveColumns = []string{
	"entity_id", "schema_key", "file_id", "version_id",
	"snapshot_content", "change_id", "is_tombstone",
}

// buildEffectiveSelect is the one canonical builder every effective-state
// view alias (lix_state, lix_state_by_version, lix_file, lix_file_by_version,
// entity, entity_by_version) delegates to, parameterized by schemaKey, the
// depth-ordered version chain to scan, and projection (spec.md §4.3 rule 2
// "One semantic source"). extraWhere is an already-AND-joined fragment of
// leftover (non-pushed-down) predicate text to apply to the final dedup
// result; it may be empty.
func buildEffectiveSelect(materializedTable, schemaKey string, versionChain []string, projection contracts.Projection, extraWhere string) string {
	var branches []string
	for depth, v := range versionChain {
		branches = append(branches,
			fmt.Sprintf(
				"SELECT %s, %d AS depth, 1 AS priority FROM lix_internal_state_untracked WHERE schema_key = %s AND version_id = %s",
				strings.Join(effectiveColumns, ", "), depth, sqlQuote(schemaKey), sqlQuote(v)),
			fmt.Sprintf(
				"SELECT %s, %d AS depth, 2 AS priority FROM %s WHERE version_id = %s",
				strings.Join(effectiveColumns, ", "), depth, materializedTable, sqlQuote(v)),
		)
	}
	union := strings.Join(branches, "\nUNION ALL\n")

	// Fast path (spec.md §4.3 rule 4): COUNT(*) with no extra predicates
	// still needs the rank window to dedup, but skips projecting
	// snapshot_content, which matters once this becomes a real columnar
	// backend; for SQLite/Postgres row stores the cost difference is small,
	// so the same shape is reused and only the outer SELECT differs.
	dedup := fmt.Sprintf(`
WITH effective AS (
%s
)
SELECT * FROM (
  SELECT *, ROW_NUMBER() OVER (
    PARTITION BY entity_id, file_id
    ORDER BY depth ASC, priority ASC
  ) AS rn FROM effective
) ranked
WHERE rn = 1 AND is_tombstone = 0`, union)

	if extraWhere != "" {
		dedup += "\n  AND " + extraWhere
	}

	switch projection {
	case contracts.ProjectionCount:
		return "SELECT COUNT(*) FROM (" + dedup + ") counted"
	case contracts.ProjectionLight:
		return "SELECT entity_id, schema_key, file_id, version_id, change_id, is_tombstone FROM (" + dedup + ") light"
	default: // ProjectionFull
		return "SELECT entity_id, schema_key, file_id, version_id, snapshot_content, change_id, is_tombstone FROM (" + dedup + ") full_rows"
	}
}

// sqlQuote renders s as a single-quoted SQL string literal, escaping
// embedded quotes by doubling them. Used only for catalog-resolved
// identifiers (version ids, schema keys) the planner itself already
// validated against the catalog — never for raw host-supplied text, which
// always travels as a placeholder instead.
func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
