package cas

import (
	"bytes"
	"encoding/hex"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// Codec identifies how a chunk's payload is stored.
type Codec string

const (
	CodecRaw  Codec = "raw"
	CodecZstd Codec = "zstd"
)

// StoredChunk is one row of chunk_store: content hash, chosen codec, and the
// (possibly compressed) payload bytes.
type StoredChunk struct {
	Hash    string
	Codec   Codec
	Payload []byte
	RawSize int
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// ChunkHash returns the BLAKE3 digest of raw chunk bytes, the dedup key
// spec.md §4.11 mandates ("Hashing: BLAKE3 on raw chunk bytes").
func ChunkHash(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// EncodeChunk hashes raw and compresses it with zstd only if doing so
// shrinks the payload (spec.md §4.11 "applied only if it reduces size").
func EncodeChunk(raw []byte) StoredChunk {
	hash := ChunkHash(raw)
	compressed := zstdEncoder.EncodeAll(raw, nil)
	if len(compressed) < len(raw) {
		return StoredChunk{Hash: hash, Codec: CodecZstd, Payload: compressed, RawSize: len(raw)}
	}
	return StoredChunk{Hash: hash, Codec: CodecRaw, Payload: raw, RawSize: len(raw)}
}

// DecodeChunk reverses EncodeChunk, returning the original raw bytes.
func DecodeChunk(c StoredChunk) ([]byte, error) {
	switch c.Codec {
	case CodecZstd:
		return zstdDecoder.DecodeAll(c.Payload, make([]byte, 0, c.RawSize))
	case CodecRaw:
		return bytes.Clone(c.Payload), nil
	default:
		return nil, errUnknownCodec(c.Codec)
	}
}

type errUnknownCodec Codec

func (e errUnknownCodec) Error() string { return "cas: unknown chunk codec " + string(e) }
