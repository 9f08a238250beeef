package lix

import (
	"log/slog"
	"time"
)

// Config describes how to open a handle (spec.md §6.2 "open(config) ->
// handle. Config: backend descriptor (embedded file path or server
// connection), initial key-values").
type Config struct {
	// EmbeddedPath opens the single-file SQLite backend at this path. Pass
	// ":memory:" for an ephemeral in-process database. Mutually exclusive
	// with ServerConnString.
	EmbeddedPath string

	// ServerConnString opens the Postgres server backend using this libpq/
	// pgx connection string. Mutually exclusive with EmbeddedPath.
	ServerConnString string

	// Deterministic switches the handle's clock to a seeded sequence
	// derived from Seed and records the setting in the
	// lix_deterministic_mode row, so commit timestamps are reproducible
	// across runs. Commit, change and file ids are still random UUIDs.
	Deterministic bool

	// Seed drives the deterministic UUID/timestamp sequence when
	// Deterministic is true. Ignored otherwise.
	Seed int64

	// Clock overrides the wall clock used for commit/untracked-write
	// timestamps. Tests needing a fixed instant may set this directly
	// instead of going through Deterministic/Seed. A nil Clock with
	// Deterministic true derives a seeded clock from Seed.
	Clock func() time.Time

	// Logger receives statement-level backend failures (Debug), maintenance
	// runs (Info), and plugin failures (Warn). A nil Logger falls back to
	// slog.Default(), the same convention the teacher's packages follow.
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) clock() func() time.Time {
	if c.Clock != nil {
		return c.Clock
	}
	if c.Deterministic {
		return deterministicClock(c.Seed)
	}
	return time.Now
}

// deterministicModeEntityID and internalKVSchemaKey name the untracked kv
// row lix_deterministic_mode lives at, the same singleton shape
// internal/runner/catalog.go uses for the active_version row (spec.md §6.4
// "a single untracked key").
const (
	deterministicModeEntityID = "deterministic_mode"
	internalKVSchemaKey       = "lix_internal_kv"
	deterministicModeScope    = "global"
)

// deterministicModeContent is the lix_deterministic_mode row's JSON shape
// (spec.md §6.2 "initial key-values", §6.4 "{enabled, seed?}").
func deterministicModeContent(c Config) map[string]any {
	return map[string]any{"enabled": c.Deterministic, "seed": c.Seed}
}

// deterministicClock returns a clock that advances by one second per call,
// starting from a seed-derived epoch offset, so two handles opened with the
// same seed produce byte-identical commit timestamps (spec.md §6.4).
func deterministicClock(seed int64) func() time.Time {
	base := time.Unix(seed, 0).UTC()
	var n int64
	return func() time.Time {
		t := base.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}
