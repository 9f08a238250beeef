// Package backend defines the thin capability surface the core executes
// dialect-normalized SQL through (spec.md §4.1). It never contains planning
// or rewrite logic — only "run this statement, report what happened".
//
// Two concrete adapters live in sqlitebackend (the "embedded single-file
// engine") and pgbackend (the "server engine"), grounded on the embedded-vs-
// server split in the teacher's internal/storage/dolt package
// (store_embedded.go / server.go), generalized from Dolt's MySQL dialect to
// SQLite and Postgres respectively.
package backend

import "context"

// Dialect identifies which backend a Backend implementation talks to. The
// planner normalizes placeholder syntax and a handful of SQL constructs
// (e.g. RETURNING support, upsert syntax) against this value; it never
// string-sniffs the connection.
type Dialect string

const (
	DialectEmbedded Dialect = "embedded" // SQLite
	DialectServer   Dialect = "server"   // Postgres
)

// Cell is one column value from a result row. The concrete Go type is one of
// nil, int64, float64, string, or []byte, matching spec.md §4.1's
// "null, int, float, text, blob" cell taxonomy.
type Cell = any

// Result is the outcome of executing one statement.
type Result struct {
	Columns  []string
	Rows     [][]Cell
	Affected int64
	// LastInsertID is set when the backend supports it (SQLite); zero value
	// on backends where it is meaningless (Postgres relies on RETURNING).
	LastInsertID int64
}

// Backend is the capability surface a host's chosen engine exposes to the
// core. Implementations must be safe for concurrent use by distinct Tx
// instances, but the core itself only ever drives one Tx at a time per
// handle (spec.md §5, single-threaded cooperative scheduling).
type Backend interface {
	// Dialect reports which of the two dialects this backend speaks.
	Dialect() Dialect

	// Execute runs a single statement outside of any transaction. Used for
	// read-only statements that do not require transactional isolation
	// beyond what the backend already gives a single statement.
	Execute(ctx context.Context, sql string, args []any) (*Result, error)

	// Begin starts a new transaction scope. Nested transactions are not
	// supported (spec.md §4.1). The embedded backend's Begin blocks until the
	// outstanding Tx for this handle commits or rolls back; the server
	// backend's Begin opens an independent transaction on another pooled
	// connection.
	Begin(ctx context.Context) (Tx, error)

	// Close releases any resources (connections, file locks) held by this
	// backend. Safe to call more than once.
	Close() error
}

// Tx is a scoped transaction. Exactly one of Commit or Rollback must be
// called; the scope is not reusable afterward. Per spec.md §9 "Scoped
// acquisition", every caller must guarantee release on all exit paths —
// internal/runner enforces this with defer.
type Tx interface {
	Execute(ctx context.Context, sql string, args []any) (*Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
