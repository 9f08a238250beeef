package fsx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
)

// fakeTx is an in-memory stand-in for backend.Tx, tracking rows inserted
// into the two materialized tables directory.go touches, just enough to
// exercise EnsureDirectory/CheckCollision without a real database.
type fakeTx struct {
	dirs  []map[string]any // version_id, parent_id, name, id
	files []map[string]any // version_id, directory_id, name, extension
}

func newFakeTx() *fakeTx { return &fakeTx{} }

func (f *fakeTx) Execute(_ context.Context, sql string, args []any) (*backend.Result, error) {
	switch {
	case strings.Contains(sql, "SELECT id FROM lix_internal_state_materialized_v1_lix_directory"):
		version, parent, name := args[0], args[1], args[2]
		for _, d := range f.dirs {
			if d["version_id"] == version && eqNullable(d["parent_id"], parent) && d["name"] == name {
				return &backend.Result{Rows: [][]backend.Cell{{d["id"]}}}, nil
			}
		}
		return &backend.Result{}, nil
	case strings.Contains(sql, "INSERT INTO lix_internal_state_materialized_v1_lix_directory"):
		f.dirs = append(f.dirs, map[string]any{
			"id": args[0], "parent_id": args[2], "name": args[3], "version_id": args[4],
		})
		return &backend.Result{Affected: 1}, nil
	case strings.Contains(sql, "SELECT entity_id FROM lix_internal_state_materialized_v1_lix_file_descriptor"):
		version, dir, name, ext := args[0], args[1], args[2], args[3]
		for _, r := range f.files {
			if r["version_id"] == version && eqNullable(r["directory_id"], dir) && r["name"] == name && eqNullable(r["extension"], ext) {
				return &backend.Result{Rows: [][]backend.Cell{{"some-entity"}}}, nil
			}
		}
		return &backend.Result{}, nil
	}
	return &backend.Result{}, nil
}

func (f *fakeTx) Commit(context.Context) error   { return nil }
func (f *fakeTx) Rollback(context.Context) error { return nil }

func eqNullable(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return a == b
}

func TestEnsureDirectoryCreatesAncestorChain(t *testing.T) {
	tx := newFakeTx()
	r := NewDirectoryResolver(tx, false, "v1", []string{"v1"})

	id, err := r.EnsureDirectory(context.Background(), "/docs/sub")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, tx.dirs, 2) // /docs and /docs/sub both created
	assert.Equal(t, "docs", tx.dirs[0]["name"])
	assert.Equal(t, "sub", tx.dirs[1]["name"])
}

func TestEnsureDirectoryReusesExistingAncestor(t *testing.T) {
	tx := newFakeTx()
	r := NewDirectoryResolver(tx, false, "v1", []string{"v1"})

	_, err := r.EnsureDirectory(context.Background(), "/docs")
	require.NoError(t, err)
	require.Len(t, tx.dirs, 1)

	_, err = r.EnsureDirectory(context.Background(), "/docs/sub")
	require.NoError(t, err)
	assert.Len(t, tx.dirs, 2) // /docs reused, only /docs/sub newly created
}

func TestEnsureDirectoryRootReturnsEmptyID(t *testing.T) {
	tx := newFakeTx()
	r := NewDirectoryResolver(tx, false, "v1", []string{"v1"})
	id, err := r.EnsureDirectory(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "", id)
	assert.Empty(t, tx.dirs)
}

func TestCheckCollisionDetectsExistingFile(t *testing.T) {
	tx := newFakeTx()
	tx.files = append(tx.files, map[string]any{
		"version_id": "v1", "directory_id": "dir-1", "name": "readme", "extension": "md",
	})
	r := NewDirectoryResolver(tx, false, "v1", []string{"v1"})

	collides, err := r.CheckCollision(context.Background(), "dir-1", "readme", "md")
	require.NoError(t, err)
	assert.True(t, collides)

	collides, err = r.CheckCollision(context.Background(), "dir-1", "other", "md")
	require.NoError(t, err)
	assert.False(t, collides)
}

func TestCheckCollisionSeesInheritedParentVersion(t *testing.T) {
	tx := newFakeTx()
	tx.files = append(tx.files, map[string]any{
		"version_id": "parent", "directory_id": "dir-1", "name": "readme", "extension": "md",
	})
	r := NewDirectoryResolver(tx, false, "child", []string{"child", "parent"})

	collides, err := r.CheckCollision(context.Background(), "dir-1", "readme", "md")
	require.NoError(t, err)
	assert.True(t, collides)
}
