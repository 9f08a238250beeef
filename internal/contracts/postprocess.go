package contracts

// PostprocessActionKind distinguishes in-transaction SQL follow-ups from
// post-commit runtime effects. The runner enforces the ordering guarantee
// from spec.md §4.6: postprocess_sql (in-tx) → apply_effects_tx (in-tx) →
// commit boundary → apply_effects_post_commit.
type PostprocessActionKind string

const (
	// PostprocessSQL runs inside the same transaction as the owning
	// statement, immediately after it. (Ancestor-directory inserts do not
	// use it: internal/runner creates them through fsx.DirectoryResolver
	// before the commit is generated.)
	PostprocessSQL PostprocessActionKind = "sql"

	// PostprocessTxEffect runs a Go callback inside the transaction (no SQL
	// of its own), after all PostprocessSQL actions for the statement.
	PostprocessTxEffect PostprocessActionKind = "tx_effect"

	// PostprocessCommitEffect runs a Go callback exactly once after the
	// surrounding transaction commits successfully (plugin cache refresh,
	// file-path/file-data cache invalidation). Dropped entirely on rollback.
	PostprocessCommitEffect PostprocessActionKind = "commit_effect"
)

// PostprocessAction is one queued follow-up. Effect is nil for
// PostprocessSQL actions (SQL is executed by the runner directly) and set
// for the two effect kinds. Effects must be idempotent (spec.md §5): a
// retried flush must be safe to run twice.
type PostprocessAction struct {
	Kind  PostprocessActionKind
	SQL   string
	Args  []any
	Effect func() error

	// Label is a short, stable description used in error messages and the
	// EngineError.Reason when an effect fails post-commit.
	Label string
}
