package cas

import (
	"context"
	"fmt"

	"github.com/lixdb/lix/internal/backend"
)

// GCResult reports what a Collect pass removed.
type GCResult struct {
	BlobsDeleted  int64
	ChunksDeleted int64
}

// Collect runs strict referential GC (spec.md §4.11 "a blob is deletable iff
// no file_version_ref row references it; a chunk is deletable iff no live
// manifest references it"), inside the caller's transaction. The caller is
// responsible for running this with foreign keys enforced, so a concurrent
// writer inserting a new file_version_ref mid-GC aborts the GC transaction
// rather than racing a blob out from under it.
func Collect(ctx context.Context, tx backend.Tx, isPostgres bool) (GCResult, error) {
	blobRes, err := tx.Execute(ctx,
		`DELETE FROM lix_internal_binary_blob_manifest
		 WHERE blob_hash NOT IN (SELECT DISTINCT blob_hash FROM lix_internal_binary_file_version_ref)`,
		nil)
	if err != nil {
		return GCResult{}, fmt.Errorf("cas: gc blob_manifest: %w", err)
	}

	// The CAS tables bootstrap creates declare no foreign keys, so
	// blob_manifest_chunk rows for deleted manifests are swept explicitly
	// before chunk_store rows with no surviving manifest reference.
	if _, err := tx.Execute(ctx,
		`DELETE FROM lix_internal_binary_blob_manifest_chunk
		 WHERE blob_hash NOT IN (SELECT blob_hash FROM lix_internal_binary_blob_manifest)`,
		nil); err != nil {
		return GCResult{}, fmt.Errorf("cas: gc blob_manifest_chunk: %w", err)
	}

	chunkRes, err := tx.Execute(ctx,
		`DELETE FROM lix_internal_binary_chunk_store
		 WHERE chunk_hash NOT IN (SELECT DISTINCT chunk_hash FROM lix_internal_binary_blob_manifest_chunk)`,
		nil)
	if err != nil {
		return GCResult{}, fmt.Errorf("cas: gc chunk_store: %w", err)
	}

	return GCResult{BlobsDeleted: blobRes.Affected, ChunksDeleted: chunkRes.Affected}, nil
}

// InternalTableDDL returns the CREATE TABLE statements for the binary CAS
// tables. The shape is identical across both dialects (TEXT/BLOB/INTEGER
// map cleanly onto SQLite and Postgres alike), so unlike
// schema.CreateTableSQL there is no dialect branching here. Open does not
// call it: internal/bootstrap creates the CAS tables with its own DDL,
// which has no foreign keys.
func InternalTableDDL(isPostgres bool) []string {
	_ = isPostgres
	return []string{
		`CREATE TABLE IF NOT EXISTS lix_internal_binary_chunk_store (
			chunk_hash TEXT PRIMARY KEY,
			codec TEXT NOT NULL,
			payload BLOB NOT NULL,
			raw_size INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_binary_blob_manifest (
			blob_hash TEXT PRIMARY KEY,
			size_bytes INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_binary_blob_manifest_chunk (
			blob_hash TEXT NOT NULL REFERENCES lix_internal_binary_blob_manifest(blob_hash) ON DELETE CASCADE,
			chunk_hash TEXT NOT NULL REFERENCES lix_internal_binary_chunk_store(chunk_hash),
			ordinal INTEGER NOT NULL,
			PRIMARY KEY (blob_hash, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS lix_internal_binary_file_version_ref (
			file_id TEXT NOT NULL,
			version_id TEXT NOT NULL,
			blob_hash TEXT NOT NULL REFERENCES lix_internal_binary_blob_manifest(blob_hash),
			size_bytes INTEGER NOT NULL,
			PRIMARY KEY (file_id, version_id)
		)`,
	}
}
