package cas

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkHashIsStableAndContentAddressed(t *testing.T) {
	a := ChunkHash([]byte("hello"))
	b := ChunkHash([]byte("hello"))
	c := ChunkHash([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestEncodeDecodeChunkRoundTrips(t *testing.T) {
	raw := []byte(strings.Repeat("compressible-pattern-", 5000))
	stored := EncodeChunk(raw)
	assert.Equal(t, CodecZstd, stored.Codec) // highly repetitive data compresses
	assert.Less(t, len(stored.Payload), len(raw))

	back, err := DecodeChunk(stored)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, back))
}

func TestEncodeChunkFallsBackToRawWhenIncompressible(t *testing.T) {
	raw := randomBytes(4096, 99)
	stored := EncodeChunk(raw)
	if stored.Codec == CodecRaw {
		assert.Equal(t, raw, stored.Payload)
	}
	back, err := DecodeChunk(stored)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, back))
}
