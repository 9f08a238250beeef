package fsx

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
)

// DirectoryResolver resolves directory paths to ids, creating ancestor
// directories idempotently, and checks path-collision (§4.7) across both
// materialized rows and inherited visibility. internal/runner builds one
// instance per file descriptor mutation; within that instance each resolved
// directory path is memoized, so the same lookup does not run twice for one
// write.
type DirectoryResolver struct {
	tx         backend.Tx
	isPostgres bool
	versionID  string
	// visibleVersions is the version inheritance chain (this version, then
	// its parent, then its parent's parent, ...) used for read-time/
	// collision resolution, depth-ordered (depth 0 first).
	visibleVersions []string

	resolved map[string]string // dir path -> directory_id, for this statement only
}

// NewDirectoryResolver builds a resolver scoped to one write, given the
// version's inheritance chain (computed by the caller from
// lix_version_descriptor; depth 0 is versionID itself).
func NewDirectoryResolver(tx backend.Tx, isPostgres bool, versionID string, visibleVersions []string) *DirectoryResolver {
	return &DirectoryResolver{
		tx: tx, isPostgres: isPostgres, versionID: versionID,
		visibleVersions: visibleVersions, resolved: map[string]string{},
	}
}

func ph(isPostgres bool, n int) string {
	if isPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// EnsureDirectory resolves dirPath to a directory id, creating it (and any
// missing ancestors) if it is not already visible in the active scope,
// respecting inheritance (§4.7). Returns the directory id.
func (r *DirectoryResolver) EnsureDirectory(ctx context.Context, dirPath string) (string, error) {
	if dirPath == "/" {
		return "", nil // root has no descriptor row
	}
	if id, ok := r.resolved[dirPath]; ok {
		return id, nil
	}

	var parentID string
	for _, anc := range AncestorDirs(dirPath) {
		id, err := r.ensureOne(ctx, anc, parentID)
		if err != nil {
			return "", err
		}
		parentID = id
		r.resolved[anc] = id
	}
	return r.resolved[dirPath], nil
}

func (r *DirectoryResolver) ensureOne(ctx context.Context, dirPath, parentID string) (string, error) {
	name := lastSegment(dirPath)
	for _, v := range r.visibleVersions {
		res, err := r.tx.Execute(ctx,
			`SELECT id FROM lix_internal_state_materialized_v1_lix_directory
			 WHERE version_id = `+ph(r.isPostgres, 1)+` AND parent_id IS NOT DISTINCT FROM `+ph(r.isPostgres, 2)+` AND name = `+ph(r.isPostgres, 3)+` AND is_tombstone = 0`,
			[]any{v, nullableStr(parentID), name})
		if err != nil {
			return "", fmt.Errorf("fsx: lookup directory %s: %w", dirPath, err)
		}
		if len(res.Rows) > 0 {
			if id, ok := res.Rows[0][0].(string); ok {
				return id, nil
			}
		}
	}

	// Not visible anywhere in the inheritance chain: create it in the
	// active (innermost) version.
	id := uuid.NewString()
	_, err := r.tx.Execute(ctx,
		`INSERT INTO lix_internal_state_materialized_v1_lix_directory (entity_id, id, parent_id, name, version_id, is_tombstone, change_id, created_at, updated_at)
		 VALUES (`+ph(r.isPostgres, 1)+`,`+ph(r.isPostgres, 2)+`,`+ph(r.isPostgres, 3)+`,`+ph(r.isPostgres, 4)+`,`+ph(r.isPostgres, 5)+`,0,`+ph(r.isPostgres, 6)+`,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
		[]any{id, id, nullableStr(parentID), name, r.versionID, ""})
	if err != nil {
		return "", fmt.Errorf("fsx: create directory %s: %w", dirPath, err)
	}
	return id, nil
}

// CheckCollision reports whether (directoryID, name, extension) is already
// taken for versionID, considering both materialized rows and inherited
// visibility (§4.7 "Collision checks against both materialized rows and
// inherited visibility").
func (r *DirectoryResolver) CheckCollision(ctx context.Context, directoryID, name, extension string) (bool, error) {
	for _, v := range r.visibleVersions {
		// proj_directory_id/proj_name/proj_extension are the generated
		// columns schema.CreateTableSQL derives from the lix_file_descriptor
		// schema's x-lix-unique set (see bootstrap's builtin schema
		// registration) — lix_file_descriptor rows go through the generic
		// commit.Generator materialization path, unlike lix_directory below.
		res, err := r.tx.Execute(ctx,
			`SELECT entity_id FROM lix_internal_state_materialized_v1_lix_file_descriptor
			 WHERE version_id = `+ph(r.isPostgres, 1)+` AND proj_directory_id IS NOT DISTINCT FROM `+ph(r.isPostgres, 2)+` AND proj_name = `+ph(r.isPostgres, 3)+` AND proj_extension IS NOT DISTINCT FROM `+ph(r.isPostgres, 4)+` AND is_tombstone = 0`,
			[]any{v, nullableStr(directoryID), name, nullableStr(extension)})
		if err != nil {
			return false, fmt.Errorf("fsx: collision check: %w", err)
		}
		if len(res.Rows) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func lastSegment(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
