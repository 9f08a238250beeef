package contracts

// Mode is the canonical-builder mode a logical view is lowered under
// (spec.md §9 "Polymorphism across views"). Every view alias
// (lix_state/_by_version/_history, lix_file/_by_version/_history,
// entity/_by_version/_history) delegates to one shared builder parameterized
// by Mode + Scope + Projection; no builder inspects the incoming SQL text to
// decide its own mode.
type Mode string

const (
	ModeRaw       Mode = "raw"       // direct vtable/materialized access, no dedup
	ModeEffective Mode = "effective" // ranked-union dedup over untracked+materialized
	ModeHistory   Mode = "history"   // change-log projection over a root commit
)

// Scope pins how a statement resolves its version/history window.
type Scope string

const (
	ScopeActive      Scope = "active"       // the single active-version untracked row
	ScopeVersionList Scope = "version_list" // an explicit IN (...) list of version ids
	ScopeRootDepth   Scope = "root_depth"   // explicit (root_commit_id, max_depth)
)

// Projection controls which columns/shape the builder emits.
type Projection string

const (
	ProjectionLight Projection = "light" // id + scalar columns only
	ProjectionFull  Projection = "full"  // snapshot_content included
	ProjectionCount Projection = "count" // COUNT(*) over the same ranked dedup; the rank window is still evaluated
)

// PlannedStatement is one backend-ready statement plus everything the runner
// needs to execute it safely and effectfully.
type PlannedStatement struct {
	// SQL is the canonical, lowered backend SQL text. Placeholders are still
	// the typed form from Placeholders, not yet bound to backend positions.
	SQL string

	// Placeholders maps each placeholder token encountered in SQL to its
	// resolved host parameter slot. Consumed exactly once by the binder.
	Placeholders []PlaceholderRef

	// Requirements describes history/maintenance work the runner must ensure
	// completes before this statement executes.
	Requirements HistoryRequirements

	// Postprocess lists in-transaction SQL follow-ups and post-commit
	// runtime effects this statement implies.
	Postprocess []PostprocessAction

	// Fingerprint is a stable hash of (view, mode, scope, projection,
	// pushed-down predicate shape) used by tests to assert rewrite stability
	// (spec.md §8 property 9) and surfaced on errors for debugging.
	Fingerprint string

	// ReadIntent is true for SELECT-shaped statements; false for
	// INSERT/UPDATE/DELETE. The runner uses this, not a text scan, to decide
	// whether a transaction is required.
	ReadIntent bool

	// Mutations is non-empty for a tracked write: one fully-resolved mutation
	// per affected entity, ready for internal/commit.Generator to turn into
	// snapshot/change/commit/materialized rows. The planner only resolves and
	// describes these (spec.md §4.3 rule 1, "never touches a backend.Tx");
	// internal/runner owns calling the generator inside its transaction.
	Mutations []PendingMutation

	// UntrackedWrite is set for a write against the untracked overlay: no
	// commit, no change row, no materialized involvement, no schema
	// validation (spec.md §4.4 "untracked bypass").
	UntrackedWrite *UntrackedMutation
}

// PendingMutation mirrors internal/commit.ResolvedMutation without an
// import cycle (commit imports contracts, not the reverse).
type PendingMutation struct {
	EntityID  string
	SchemaKey string
	FileID    string
	VersionID string
	PluginKey string
	Op        string // "insert" | "update" | "delete", matches commit.MutationOp values
	Content   map[string]any

	// Filesystem is non-nil for a file descriptor mutation that arrived as a
	// path rather than a resolved directory_id (see FilesystemIntent).
	Filesystem *FilesystemIntent
}

// UntrackedMutation describes one write to lix_internal_state_untracked.
type UntrackedMutation struct {
	EntityID  string
	SchemaKey string
	FileID    string
	VersionID string
	Delete    bool // true for a physical DELETE, false for an upsert
	Content   map[string]any
}

// FilesystemIntent is attached to a PendingMutation against the file
// descriptor schema when the write came in as a path rather than a raw
// directory_id (spec.md §4.7). The planner only normalizes and validates
// the path text (pure, no backend.Tx); internal/runner resolves DirPath to
// a directory id (creating ancestors as needed) and performs the collision
// check via internal/fsx.DirectoryResolver before handing the completed
// mutation to internal/commit.Generator. A delete never needs to know
// whether the visible row is its own or inherited from a parent version:
// commit.Generator's tombstone write is an upsert, so it scopes the
// tombstone to this version either way.
type FilesystemIntent struct {
	DirPath   string
	Name      string
	Extension string
	IsDelete  bool
}

// PlaceholderRef names one placeholder occurrence inside PlannedStatement.SQL
// and which host parameter (by original position in the caller's param list)
// it must bind to. Kind distinguishes the three tolerated placeholder forms
// to tell the binder how the token was written in the lowered SQL.
type PlaceholderRef struct {
	Kind         PlaceholderKind
	Token        string // e.g. "?", "?3", "$3"
	HostParamIdx int    // index into the original, caller-supplied parameter slice
	PushedDown   bool   // true if consumed by a predicate pushdown (must not also appear in outer WHERE)
}

type PlaceholderKind string

const (
	PlaceholderAnon PlaceholderKind = "anon"   // ?
	PlaceholderNum  PlaceholderKind = "num"    // ?N
	PlaceholderDoll PlaceholderKind = "dollar" // $N
)

// PreparedStatement is a PlannedStatement after the binder has materialized
// concrete backend-native placeholder positions and values. It is what the
// runner actually sends to the backend adapter.
type PreparedStatement struct {
	SQL    string // backend-native placeholder form
	Args   []any  // positional argument values, in backend order
	Source *PlannedStatement
}

// ExecutionPlan is the full output of planning one host statement: one or
// more PlannedStatements (a script may lower to several) plus the
// aggregate requirements/postprocess actions across all of them.
type ExecutionPlan struct {
	Statements      []PlannedStatement
	Requirements    HistoryRequirements
	Postprocess     []PostprocessAction
	Fingerprint     string
}
