package cas

import (
	"context"
	"fmt"

	"github.com/lixdb/lix/internal/backend"
)

// BlobManifest records the ordered chunk sequence composing one content
// blob (spec.md §4.11 "blob_manifest(blob_hash, size_bytes)" +
// "blob_manifest_chunk(blob_hash, chunk_hash, ordinal)").
type BlobManifest struct {
	Hash      string
	SizeBytes int64
	Chunks    []string // chunk hashes, in order
}

// BuildManifest chunks raw via FastCDC and returns the manifest plus the
// encoded chunks callers should persist. The manifest hash is itself
// content-addressed over the ordered chunk-hash sequence, so identical
// bytes always produce an identical manifest hash regardless of when they
// were written (spec.md §4.11 "identical bytes written twice produce zero
// net chunk-store growth").
func BuildManifest(raw []byte) (BlobManifest, []StoredChunk) {
	chunks := Split(raw)
	stored := make([]StoredChunk, len(chunks))
	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		stored[i] = EncodeChunk(c.Data)
		hashes[i] = stored[i].Hash
	}
	return BlobManifest{Hash: ManifestHash(hashes), SizeBytes: int64(len(raw)), Chunks: hashes}, stored
}

// ManifestHash derives a blob hash from an ordered chunk-hash list by
// hashing their concatenation, so the same chunk sequence always yields the
// same blob_hash.
func ManifestHash(chunkHashes []string) string {
	joined := make([]byte, 0, 64*len(chunkHashes))
	for _, h := range chunkHashes {
		joined = append(joined, h...)
	}
	return ChunkHash(joined)
}

func ph(isPostgres bool, n int) string {
	if isPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Store persists a blob's chunks and manifest, skipping any chunk or
// manifest row that already exists (content addressing makes every write
// idempotent). It does not write file_version_ref; that is the commit
// generator's job once it knows (file_id, version_id).
func Store(ctx context.Context, tx backend.Tx, isPostgres bool, manifest BlobManifest, chunks []StoredChunk) error {
	for _, c := range chunks {
		if _, err := tx.Execute(ctx,
			`INSERT INTO lix_internal_binary_chunk_store (chunk_hash, codec, payload, raw_size)
			 VALUES (`+ph(isPostgres, 1)+`,`+ph(isPostgres, 2)+`,`+ph(isPostgres, 3)+`,`+ph(isPostgres, 4)+`)
			 ON CONFLICT (chunk_hash) DO NOTHING`,
			[]any{c.Hash, string(c.Codec), c.Payload, c.RawSize}); err != nil {
			return fmt.Errorf("cas: store chunk %s: %w", c.Hash, err)
		}
	}
	if _, err := tx.Execute(ctx,
		`INSERT INTO lix_internal_binary_blob_manifest (blob_hash, size_bytes)
		 VALUES (`+ph(isPostgres, 1)+`,`+ph(isPostgres, 2)+`)
		 ON CONFLICT (blob_hash) DO NOTHING`,
		[]any{manifest.Hash, manifest.SizeBytes}); err != nil {
		return fmt.Errorf("cas: store manifest %s: %w", manifest.Hash, err)
	}
	for i, ch := range manifest.Chunks {
		if _, err := tx.Execute(ctx,
			`INSERT INTO lix_internal_binary_blob_manifest_chunk (blob_hash, chunk_hash, ordinal)
			 VALUES (`+ph(isPostgres, 1)+`,`+ph(isPostgres, 2)+`,`+ph(isPostgres, 3)+`)
			 ON CONFLICT (blob_hash, ordinal) DO NOTHING`,
			[]any{manifest.Hash, ch, i}); err != nil {
			return fmt.Errorf("cas: store manifest chunk %d: %w", i, err)
		}
	}
	return nil
}

// Reassemble reads a blob's chunks back in order and concatenates their
// decoded bytes, reversing BuildManifest.
func Reassemble(ctx context.Context, tx backend.Tx, isPostgres bool, blobHash string) ([]byte, error) {
	res, err := tx.Execute(ctx,
		`SELECT c.chunk_hash, c.codec, c.payload, c.raw_size
		 FROM lix_internal_binary_blob_manifest_chunk m
		 JOIN lix_internal_binary_chunk_store c ON c.chunk_hash = m.chunk_hash
		 WHERE m.blob_hash = `+ph(isPostgres, 1)+`
		 ORDER BY m.ordinal ASC`,
		[]any{blobHash})
	if err != nil {
		return nil, fmt.Errorf("cas: read manifest chunks for %s: %w", blobHash, err)
	}
	var out []byte
	for _, row := range res.Rows {
		codec, _ := row[1].(string)
		payload, _ := row[2].([]byte)
		rawSize, _ := row[3].(int64)
		raw, err := DecodeChunk(StoredChunk{Codec: Codec(codec), Payload: payload, RawSize: int(rawSize)})
		if err != nil {
			return nil, fmt.Errorf("cas: decode chunk: %w", err)
		}
		out = append(out, raw...)
	}
	return out, nil
}
