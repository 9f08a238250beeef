// Package commit implements the commit generator from spec.md §4.4/§3/§4.8:
// snapshot content-addressing, append-only change rows, commit batching,
// version pointer updates, and materialized-table upserts, all inside one
// backend transaction.
//
// Grounded on the teacher's internal/storage/dolt/versioned.go (version-
// scoped reads/writes already exist in the teacher's own data model) and
// compact.go (batch rewrite of history), generalized from Dolt's native
// versioning to lix's own content-addressed commit graph.
package commit

import (
	"crypto/sha256"
	"encoding/hex"
)

// NoContentSnapshotID is the sentinel snapshot identifying "no content"
// (spec.md §3 "Sentinel: a well-known empty id representing 'no content'").
// A change referencing this snapshot is a tombstone event.
const NoContentSnapshotID = "lix_no_content"

// SnapshotID returns the content-addressed identifier for payload: a hash
// of the canonical bytes (spec.md §3 "content-addressed identifier (hash of
// canonical payload)"). Canonicalization (stable key order) is the caller's
// responsibility — commit.Generator always canonicalizes JSON before
// hashing (see generator.go).
func SnapshotID(payload []byte) string {
	if len(payload) == 0 {
		return NoContentSnapshotID
	}
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}
