// Package sqlitebackend implements backend.Backend over a single-file
// SQLite database via github.com/mattn/go-sqlite3, the "embedded" dialect
// from spec.md §4.1. Grounded on the connection-lifecycle shape of the
// teacher's internal/storage/dolt/embedded_uow.go (open → use → close, no
// background reconnect loop) since embedded SQLite, like embedded Dolt,
// never needs the server adapter's retry/watchdog machinery.
package sqlitebackend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lixdb/lix/internal/backend"
)

// Store is the embedded SQLite adapter. One Store maps to one open *sql.DB;
// the core serializes statements through it (spec.md §5), but the mutex
// below additionally prevents two Tx values from being open concurrently on
// the same handle, mirroring DoltStore's mu sync.RWMutex guard.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if necessary) a SQLite database file at path. Pass
// ":memory:" for an ephemeral in-process database (used heavily in tests).
func Open(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: open %s: %w", path, err)
	}
	// A single-file engine serializes writers at the OS/file-lock level;
	// keep exactly one connection so database/sql's pool never races two
	// goroutines against one SQLite handle.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitebackend: ping %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// ExportFile returns a portable database image by VACUUM INTO-ing the live
// database to a temp file and reading it back (spec.md §6.2
// "export_snapshot() -> bytes"). Unlike copying the live file directly, this
// flushes the WAL and produces a single self-contained file regardless of
// journal mode.
func (s *Store) ExportFile(ctx context.Context) ([]byte, error) {
	if s.path == ":memory:" {
		return nil, fmt.Errorf("sqlitebackend: export_snapshot is not supported for an in-memory database")
	}
	tmp, err := os.CreateTemp("", "lix-export-*.db")
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: create export temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	s.mu.Lock()
	_, err = s.db.ExecContext(ctx, "VACUUM INTO ?", tmpPath)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: vacuum into: %w", err)
	}
	return os.ReadFile(tmpPath)
}

func (s *Store) Dialect() backend.Dialect { return backend.DialectEmbedded }

func (s *Store) Execute(ctx context.Context, query string, args []any) (*backend.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return execOn(ctx, s.db, query, args)
}

func (s *Store) Begin(ctx context.Context) (backend.Tx, error) {
	s.mu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("sqlitebackend: begin: %w", err)
	}
	return &sqliteTx{tx: tx, release: s.mu.Unlock}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx      *sql.Tx
	release func()
	done    bool
}

func (t *sqliteTx) Execute(ctx context.Context, query string, args []any) (*backend.Result, error) {
	return execOnTx(ctx, t.tx, query, args)
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("sqlitebackend: tx already finished")
	}
	t.done = true
	defer t.release()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlitebackend: commit: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("sqlitebackend: rollback: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execOn(ctx context.Context, db *sql.DB, query string, args []any) (*backend.Result, error) {
	return execGeneric(ctx, db, query, args)
}

func execOnTx(ctx context.Context, tx *sql.Tx, query string, args []any) (*backend.Result, error) {
	return execGeneric(ctx, tx, query, args)
}

func execGeneric(ctx context.Context, e execer, query string, args []any) (*backend.Result, error) {
	if isSelect(query) {
		rows, err := e.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlitebackend: query: %w", err)
		}
		defer rows.Close()
		return scanRows(rows)
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: exec: %w", err)
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &backend.Result{Affected: affected, LastInsertID: lastID}, nil
}

func scanRows(rows *sql.Rows) (*backend.Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: columns: %w", err)
	}
	res := &backend.Result{Columns: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlitebackend: scan: %w", err)
		}
		res.Rows = append(res.Rows, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitebackend: rows: %w", err)
	}
	res.Affected = int64(len(res.Rows))
	return res, nil
}

// isSelect is a crude but sufficient read/write classification for choosing
// Query vs Exec. It is NOT used for any planning/rewrite decision — those
// are always made from typed PlannedStatement.ReadIntent, never from
// inspecting SQL text here (spec.md §9 "String-matched control flow").
func isSelect(query string) bool {
	for _, r := range query {
		switch r {
		case ' ', '\t', '\n', '(':
			continue
		default:
			return r == 'S' || r == 's' || r == 'W' || r == 'w'
		}
	}
	return false
}
