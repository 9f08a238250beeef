package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/commit"
	"github.com/lixdb/lix/internal/contracts"
	"github.com/lixdb/lix/internal/fsx"
)

// resolveMutations turns the planner's PendingMutations into fully-resolved
// commit.ResolvedMutations inside tx. This is the one place a
// contracts.FilesystemIntent actually touches a backend.Tx (spec.md §4.7) —
// the planner only ever describes the intent; directory auto-create,
// collision checking, and entity-id assignment for a path-addressed insert
// all happen here, one layer above the pure rewrite.
func resolveMutations(ctx context.Context, tx backend.Tx, isPostgres bool, cat *dbCatalog, muts []contracts.PendingMutation) ([]commit.ResolvedMutation, error) {
	out := make([]commit.ResolvedMutation, 0, len(muts))
	for i := range muts {
		m := muts[i]
		if m.Filesystem != nil {
			if err := resolveFilesystemIntent(ctx, tx, isPostgres, cat, &m); err != nil {
				return nil, err
			}
		}
		out = append(out, commit.ResolvedMutation{
			EntityID:     m.EntityID,
			SchemaKey:    m.SchemaKey,
			FileID:       m.FileID,
			VersionID:    m.VersionID,
			PluginKey:    m.PluginKey,
			VersionChain: cat.VersionChain(m.VersionID),
			Op:           commit.MutationOp(m.Op),
			Content:      m.Content,
		})
	}
	return out, nil
}

// resolveFilesystemIntent completes a file descriptor mutation in place: it
// assigns a fresh entity id for a path-addressed insert with none given,
// sets FileID = EntityID (the file descriptor's own materialized row is
// self-referencing, spec.md §3 "file_id is null for non-file entities"
// implies the reverse holds for the descriptor row itself), and — for a
// non-delete — resolves the path's directory id and checks for a
// name/extension collision before the write proceeds.
func resolveFilesystemIntent(ctx context.Context, tx backend.Tx, isPostgres bool, cat *dbCatalog, m *contracts.PendingMutation) error {
	fi := m.Filesystem
	if fi.IsDelete {
		if m.EntityID == "" {
			return contracts.PlannerError(contracts.KindPlannerInvariant, "file delete resolved with no entity_id")
		}
		m.FileID = m.EntityID
		return nil
	}

	if m.EntityID == "" {
		m.EntityID = uuid.NewString()
	}
	m.FileID = m.EntityID

	resolver := fsx.NewDirectoryResolver(tx, isPostgres, m.VersionID, cat.VersionChain(m.VersionID))
	dirID, err := resolver.EnsureDirectory(ctx, fi.DirPath)
	if err != nil {
		return contracts.ExecutorError(contracts.KindIO, fmt.Errorf("resolve directory %s: %w", fi.DirPath, err))
	}

	collision, err := resolver.CheckCollision(ctx, dirID, fi.Name, fi.Extension)
	if err != nil {
		return contracts.ExecutorError(contracts.KindIO, fmt.Errorf("check collision for %s: %w", fi.DirPath, err))
	}
	if collision {
		return contracts.PlannerError(contracts.KindConstraint,
			fmt.Sprintf("a file named %q already exists in %q", fi.Name, fi.DirPath))
	}

	if m.Content == nil {
		m.Content = map[string]any{}
	}
	if dirID == "" {
		m.Content["directory_id"] = nil
	} else {
		m.Content["directory_id"] = dirID
	}
	return nil
}

// resolveUntracked turns an UntrackedMutation into the direct read-modify-
// write against lix_internal_state_untracked the planner's untracked bypass
// implies (spec.md §4.4 "no commit, no change row"). Unlike resolveMutations
// this never calls into internal/commit: the untracked overlay is a plain
// keyed table, not part of the content-addressed history.
func resolveUntracked(ctx context.Context, tx backend.Tx, isPostgres bool, now string, m *contracts.UntrackedMutation) error {
	if m.Delete {
		_, err := tx.Execute(ctx,
			`DELETE FROM lix_internal_state_untracked WHERE entity_id = `+commit.Ph(isPostgres, 1)+` AND schema_key = `+commit.Ph(isPostgres, 2)+` AND version_id = `+commit.Ph(isPostgres, 3),
			[]any{m.EntityID, m.SchemaKey, m.VersionID})
		if err != nil {
			return contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("delete untracked %s: %w", m.EntityID, err))
		}
		return nil
	}

	canonical, err := commit.CanonicalizeJSON(m.Content)
	if err != nil {
		return contracts.PlannerError(contracts.KindValidation, fmt.Sprintf("canonicalize untracked %s: %v", m.EntityID, err))
	}
	changeID := uuid.NewString() // untracked rows still carry a change_id column for shape parity with the materialized envelope; it names nothing in lix_internal_change.
	_, err = tx.Execute(ctx,
		commit.UpsertSQL(isPostgres, "lix_internal_state_untracked",
			[]string{"entity_id", "schema_key", "file_id", "version_id", "snapshot_content", "change_id", "is_tombstone", "created_at", "updated_at"},
			[]string{"entity_id", "schema_key", "version_id"}),
		[]any{m.EntityID, m.SchemaKey, nullable(m.FileID), m.VersionID, string(canonical), changeID, 0, now, now})
	if err != nil {
		return contracts.ExecutorError(contracts.KindConstraint, fmt.Errorf("upsert untracked %s: %w", m.EntityID, err))
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
