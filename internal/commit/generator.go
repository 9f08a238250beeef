package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/contracts"
	"github.com/lixdb/lix/internal/schema"
)

// ResolvedMutation is one fully-resolved, tracked write the planner has
// already scoped to a concrete (entity, schema, file, version) — i.e. the
// output of the vtable write flow's per-row resolution (spec.md §4.4),
// ready to be turned into snapshot/change/materialized rows.
type ResolvedMutation struct {
	EntityID  string
	SchemaKey string
	FileID    string // empty for non-file entities
	VersionID string
	PluginKey string

	// VersionChain is VersionID followed by its ancestors, depth-ordered,
	// the same chain internal/planner's effective-state views scan. An
	// OpUpdate uses it to find the prior row to merge against when the
	// entity is only materialized in an ancestor version (spec.md §4.4
	// "partial updates merge with the prior row view"). Empty means
	// "just VersionID" (no inheritance to walk).
	VersionChain []string

	// Op distinguishes insert/update/delete handling below.
	Op MutationOp

	// Content is the new JSON payload for insert/update, nil for delete
	// (delete always writes the no-content sentinel snapshot).
	Content map[string]any
}

type MutationOp string

const (
	OpInsert MutationOp = "insert"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// Batch is the result of generating one commit: every change row created,
// the commit id, and which versions had their pointer moved.
type Batch struct {
	CommitID       string
	ChangeIDs      []string
	ParentCommitID map[string]string // version_id -> its previous tip, for rollback/debugging
}

// Generator creates snapshots, changes, commits, version-pointer updates,
// and materialized upserts for a batch of ResolvedMutations, atomically
// within the caller's transaction (spec.md §4.4's three phases plus the
// commit-boundary step).
type Generator struct {
	registry *schema.Registry
	defaults *schema.DefaultsContext
	now      func() time.Time
}

// Now returns the Generator's configured clock, so internal/runner can stamp
// non-commit writes (the untracked overlay) with the same time source used
// for commits — both respect spec.md §6.4's deterministic-mode override.
func (g *Generator) Now() time.Time { return g.now() }

// NewGenerator builds a Generator bound to a schema registry (for
// validation/defaults) and a clock (overridable for deterministic-mode
// tests; spec.md §6.4).
func NewGenerator(registry *schema.Registry, defaults *schema.DefaultsContext, now func() time.Time) *Generator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Generator{registry: registry, defaults: defaults, now: now}
}

// Apply runs the full commit-generation flow for muts inside tx: validate
// against stored schemas, apply CEL defaults, write snapshots/changes,
// upsert materialized rows, then append one commit row and move each
// touched version's pointer. All-or-nothing: any error rolls the caller's
// transaction back with no partial effect (spec.md §4.12, §8 property 7).
func (g *Generator) Apply(ctx context.Context, tx backend.Tx, isPostgres bool, muts []ResolvedMutation) (*Batch, error) {
	if len(muts) == 0 {
		return &Batch{}, nil
	}

	batch := &Batch{ParentCommitID: map[string]string{}}
	touchedVersions := map[string]bool{}

	for _, m := range muts {
		changeID, err := g.applyOne(ctx, tx, isPostgres, m)
		if err != nil {
			return nil, err
		}
		if changeID != "" {
			batch.ChangeIDs = append(batch.ChangeIDs, changeID)
			touchedVersions[m.VersionID] = true
		}
	}

	if len(batch.ChangeIDs) == 0 {
		// Empty updates (no column change) produce no change row and thus
		// no commit (spec.md §8 "Boundaries").
		return batch, nil
	}

	commitID := uuid.NewString()
	batch.CommitID = commitID
	now := g.now().Format(time.RFC3339Nano)

	if _, err := tx.Execute(ctx, `INSERT INTO lix_commit (id, created_at) VALUES (`+ph(isPostgres, 1)+`, `+ph(isPostgres, 2)+`)`,
		[]any{commitID, now}); err != nil {
		return nil, contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("insert lix_commit: %w", err))
	}

	for _, changeID := range batch.ChangeIDs {
		if _, err := tx.Execute(ctx,
			`INSERT INTO lix_commit_change (commit_id, change_id) VALUES (`+ph(isPostgres, 1)+`, `+ph(isPostgres, 2)+`)`,
			[]any{commitID, changeID}); err != nil {
			return nil, contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("insert lix_commit_change: %w", err))
		}
	}

	versionIDs := make([]string, 0, len(touchedVersions))
	for v := range touchedVersions {
		versionIDs = append(versionIDs, v)
	}
	sort.Strings(versionIDs)
	for _, v := range versionIDs {
		var prevTip *string
		row, err := tx.Execute(ctx, `SELECT tip_commit_id FROM lix_version_pointer WHERE version_id = `+ph(isPostgres, 1), []any{v})
		if err != nil {
			return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("read version pointer %s: %w", v, err))
		}
		if len(row.Rows) > 0 {
			if s, ok := row.Rows[0][0].(string); ok {
				prevTip = &s
			}
			if _, err := tx.Execute(ctx,
				`UPDATE lix_version_pointer SET tip_commit_id = `+ph(isPostgres, 1)+`, parent_commit_id = `+ph(isPostgres, 2)+` WHERE version_id = `+ph(isPostgres, 3),
				[]any{commitID, prevTip, v}); err != nil {
				return nil, contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("update version pointer %s: %w", v, err))
			}
		} else {
			if _, err := tx.Execute(ctx,
				`INSERT INTO lix_version_pointer (version_id, tip_commit_id, parent_commit_id) VALUES (`+ph(isPostgres, 1)+`, `+ph(isPostgres, 2)+`, NULL)`,
				[]any{v, commitID}); err != nil {
				return nil, contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("insert version pointer %s: %w", v, err))
			}
		}
		if prevTip != nil {
			batch.ParentCommitID[v] = *prevTip
		}
	}

	return batch, nil
}

func (g *Generator) applyOne(ctx context.Context, tx backend.Tx, isPostgres bool, m ResolvedMutation) (string, error) {
	table := schema.MaterializedTableName(m.SchemaKey)
	now := g.now().Format(time.RFC3339Nano)

	switch m.Op {
	case OpDelete:
		changeID := uuid.NewString()
		if err := g.insertChange(ctx, tx, isPostgres, changeID, m, NoContentSnapshotID); err != nil {
			return "", err
		}
		// An upsert, not a plain UPDATE: an entity visible at m.VersionID only
		// through parent-version inheritance has no row of its own yet, and
		// deleting it must still write an effective tombstone scoped to this
		// version without touching the parent's row (spec.md §4.7 "Inherited-
		// delete semantics").
		_, err := tx.Execute(ctx,
			upsertIgnore(isPostgres, table,
				[]string{"entity_id", "file_id", "version_id", "snapshot_content", "change_id", "is_tombstone", "created_at", "updated_at"},
				[]string{"entity_id", "file_id", "version_id"}),
			[]any{m.EntityID, nullable(m.FileID), m.VersionID, nil, changeID, 1, now, now})
		if err != nil {
			return "", contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("tombstone %s: %w", m.EntityID, err))
		}
		return changeID, nil

	case OpInsert, OpUpdate:
		content := m.Content
		if m.Op == OpUpdate {
			prior, err := g.priorContent(ctx, tx, isPostgres, table, m.EntityID, m.VersionChain, m.VersionID)
			if err != nil {
				return "", err
			}
			if prior != nil {
				merged := make(map[string]any, len(prior)+len(content))
				for k, v := range prior {
					merged[k] = v
				}
				for k, v := range content {
					merged[k] = v
				}
				content = merged
			}
		}

		canonical, err := canonicalizeJSON(content)
		if err != nil {
			return "", contracts.PlannerError(contracts.KindValidation, fmt.Sprintf("canonicalize entity %s: %v", m.EntityID, err))
		}

		if g.registry != nil {
			if verr := g.registry.Validate(m.EntityID, m.SchemaKey, canonical); verr != nil {
				return "", verr
			}
		}

		snapID := SnapshotID(canonical)
		if err := g.ensureSnapshot(ctx, tx, isPostgres, snapID, canonical); err != nil {
			return "", err
		}

		if m.Op == OpUpdate {
			unchanged, err := g.contentUnchanged(ctx, tx, isPostgres, table, m.EntityID, m.VersionID, snapID)
			if err != nil {
				return "", err
			}
			if unchanged {
				return "", nil // no change row for a no-op update (spec.md §8 "Boundaries")
			}
		}

		changeID := uuid.NewString()
		if err := g.insertChange(ctx, tx, isPostgres, changeID, m, snapID); err != nil {
			return "", err
		}
		if err := g.upsertMaterialized(ctx, tx, isPostgres, table, m, changeID, string(canonical), now); err != nil {
			return "", err
		}
		return changeID, nil
	}
	return "", fmt.Errorf("commit: unknown mutation op %q", m.Op)
}

func (g *Generator) ensureSnapshot(ctx context.Context, tx backend.Tx, isPostgres bool, snapID string, payload []byte) error {
	_, err := tx.Execute(ctx,
		upsertIgnore(isPostgres, "lix_internal_snapshot", []string{"id", "payload"}, []string{"id"}),
		[]any{snapID, string(payload)})
	if err != nil {
		return contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("insert snapshot %s: %w", snapID, err))
	}
	return nil
}

func (g *Generator) insertChange(ctx context.Context, tx backend.Tx, isPostgres bool, changeID string, m ResolvedMutation, snapID string) error {
	now := g.now().Format(time.RFC3339Nano)
	_, err := tx.Execute(ctx,
		`INSERT INTO lix_internal_change (id, entity_id, schema_key, schema_version, file_id, plugin_key, snapshot_id, created_at)
		 VALUES (`+ph(isPostgres, 1)+`,`+ph(isPostgres, 2)+`,`+ph(isPostgres, 3)+`,`+ph(isPostgres, 4)+`,`+ph(isPostgres, 5)+`,`+ph(isPostgres, 6)+`,`+ph(isPostgres, 7)+`,`+ph(isPostgres, 8)+`)`,
		[]any{changeID, m.EntityID, m.SchemaKey, "1", nullable(m.FileID), nullable(m.PluginKey), snapID, now})
	if err != nil {
		return contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("insert change for %s: %w", m.EntityID, err))
	}
	return nil
}

func (g *Generator) upsertMaterialized(ctx context.Context, tx backend.Tx, isPostgres bool, table string, m ResolvedMutation, changeID, content, now string) error {
	_, err := tx.Execute(ctx,
		upsertIgnore(isPostgres, table,
			[]string{"entity_id", "file_id", "version_id", "snapshot_content", "change_id", "is_tombstone", "created_at", "updated_at"},
			[]string{"entity_id", "file_id", "version_id"}),
		[]any{m.EntityID, nullable(m.FileID), m.VersionID, content, changeID, 0, now, now})
	if err != nil {
		return contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("upsert materialized %s: %w", m.EntityID, err))
	}
	return nil
}

// priorContent reads the closest materialized row for entityID along
// versionChain (self first, then ancestors nearest-first), decoding its
// snapshot_content so an UPDATE's SET-clause columns can be merged on top
// of it (spec.md §4.4 step 3, "partial updates merge with the prior row
// view, preserving unspecified columns"). Returns nil, nil if the entity
// has no materialized row anywhere in the chain (e.g. an update racing a
// delete, or a malformed statement) — the caller then canonicalizes
// m.Content unmerged, same as before this existed.
func (g *Generator) priorContent(ctx context.Context, tx backend.Tx, isPostgres bool, table, entityID string, versionChain []string, fallbackVersionID string) (map[string]any, error) {
	chain := versionChain
	if len(chain) == 0 {
		chain = []string{fallbackVersionID}
	}
	for _, v := range chain {
		res, err := tx.Execute(ctx,
			`SELECT snapshot_content FROM `+table+` WHERE entity_id = `+ph(isPostgres, 1)+` AND version_id = `+ph(isPostgres, 2)+` AND is_tombstone = 0`,
			[]any{entityID, v})
		if err != nil {
			return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("read prior content for %s: %w", entityID, err))
		}
		if len(res.Rows) == 0 {
			continue
		}
		raw, _ := res.Rows[0][0].(string)
		if raw == "" {
			continue
		}
		var prior map[string]any
		if err := json.Unmarshal([]byte(raw), &prior); err != nil {
			return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("decode prior content for %s: %w", entityID, err))
		}
		return prior, nil
	}
	return nil, nil
}

func (g *Generator) contentUnchanged(ctx context.Context, tx backend.Tx, isPostgres bool, table, entityID, versionID, snapID string) (bool, error) {
	res, err := tx.Execute(ctx,
		`SELECT change_id FROM lix_internal_change c
		 JOIN `+table+` m ON m.change_id = c.id
		 WHERE m.entity_id = `+ph(isPostgres, 1)+` AND m.version_id = `+ph(isPostgres, 2)+` AND c.snapshot_id = `+ph(isPostgres, 3),
		[]any{entityID, versionID, snapID})
	if err != nil {
		return false, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("check unchanged %s: %w", entityID, err))
	}
	return len(res.Rows) > 0, nil
}

func canonicalizeJSON(content map[string]any) ([]byte, error) {
	if content == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(content[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CanonicalizeJSON exposes canonicalizeJSON for internal/runner, which needs
// the same deterministic key-sorted encoding for untracked-overlay writes
// (spec.md §4.4 "untracked bypass") even though those never go through
// Generator.Apply.
func CanonicalizeJSON(content map[string]any) ([]byte, error) { return canonicalizeJSON(content) }

// UpsertSQL exposes upsertIgnore for internal/runner's untracked-overlay
// upserts, which need the same ON CONFLICT DO UPDATE shape as a materialized
// table upsert but against lix_internal_state_untracked instead.
func UpsertSQL(isPostgres bool, table string, cols, keyCols []string) string {
	return upsertIgnore(isPostgres, table, cols, keyCols)
}

// Ph exposes ph for internal/runner's own hand-written SQL against tables
// commit.Generator doesn't own (lix_commit/lix_version_pointer bookkeeping,
// the untracked overlay), so every package shares one placeholder-syntax
// rule instead of each re-deriving it.
func Ph(isPostgres bool, n int) string { return ph(isPostgres, n) }

func ph(isPostgres bool, n int) string {
	if isPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// upsertIgnore builds an INSERT ... ON CONFLICT DO NOTHING / ON CONFLICT DO
// UPDATE statement appropriate to dialect: DO NOTHING when every column is a
// key column, otherwise DO UPDATE on every non-key column. Snapshot inserts
// ({id, payload} keyed on id) therefore take the DO UPDATE form, which
// rewrites the same content-addressed payload on a repeat insert.
func upsertIgnore(isPostgres bool, table string, cols, keyCols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = ph(isPostgres, i+1)
	}
	base := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, join(cols), join(placeholders))

	isKey := map[string]bool{}
	for _, k := range keyCols {
		isKey[k] = true
	}
	var updates []string
	for _, c := range cols {
		if isKey[c] {
			continue
		}
		if isPostgres {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	conflictTarget := join(keyCols)
	if len(updates) == 0 {
		return base + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", conflictTarget)
	}
	return base + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", conflictTarget, join(updates))
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
