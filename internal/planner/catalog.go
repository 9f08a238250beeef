// Package planner implements the SQL rewrite pipeline from spec.md §4.3:
// parse → recognize a canonical view name → rewrite through one of a small
// set of shared builders parameterized by {Mode, Scope, Projection} →
// lower to backend-native-shaped (but still typed-placeholder) SQL. The
// planner is pure: it never touches a backend.Tx or a plugin.Runtime.
//
// Grounded on the teacher's internal/storage/dolt/versioned.go (a single
// version-scoped query builder reused across every dolt-backed read/write
// path, generalized here from "one store, one version model" to "one
// builder per Mode/Scope/Projection combination, reused across nine view
// aliases").
package planner

// Catalog is the read-only engine state the planner consults while
// rewriting: which schemas are registered, and how a version's inheritance
// chain resolves. The planner never mutates a Catalog; callers (the
// runner) own its lifecycle and invalidation.
type Catalog interface {
	// ActiveVersionID returns the single cached active-version value
	// (spec.md §4.3.2), looked up once per execute by the runner and handed
	// to the planner as part of the catalog snapshot.
	ActiveVersionID() string

	// VersionChain returns the inheritance chain for versionID, depth 0
	// first (versionID itself), followed by its parent, grandparent, and so
	// on (spec.md §4.3.1 "parent version chain at depth 0..D").
	VersionChain(versionID string) []string

	// HasSchema reports whether schemaKey names a registered schema with a
	// materialized table — used to validate predicate pushdowns that name a
	// schema_key literal.
	HasSchema(schemaKey string) bool

	// MaterializedTable returns the materialized table name for schemaKey
	// (schema.MaterializedTableName, surfaced here to avoid an import cycle
	// between planner and schema).
	MaterializedTable(schemaKey string) string

	// VersionTip returns the current head commit id for versionID, used as
	// the default root_commit_id when a lix_state_history read omits one.
	VersionTip(versionID string) string
}
