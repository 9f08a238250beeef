package cas

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestSplitIsDeterministic(t *testing.T) {
	data := randomBytes(500*1024, 1)
	a := Split(data)
	b := Split(data)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, bytes.Equal(a[i].Data, b[i].Data))
	}
}

func TestSplitReconstructsOriginal(t *testing.T) {
	data := randomBytes(300*1024, 2)
	chunks := Split(data)
	var out []byte
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	assert.True(t, bytes.Equal(data, out))
}

func TestSplitRespectsSizeBounds(t *testing.T) {
	data := randomBytes(2*1024*1024, 3)
	chunks := Split(data)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Data), MaxChunkSize)
		if i < len(chunks)-1 { // the final chunk may be shorter than MinChunkSize
			assert.GreaterOrEqual(t, len(c.Data), MinChunkSize)
		}
	}
}

func TestSplitEmptyIsNil(t *testing.T) {
	assert.Nil(t, Split(nil))
	assert.Nil(t, Split([]byte{}))
}

func TestSplitUnaffectedByDistantEdit(t *testing.T) {
	data := randomBytes(400*1024, 4)
	edited := make([]byte, len(data))
	copy(edited, data)
	edited[len(edited)-1] ^= 0xFF // flip a byte well into the last chunk

	a := Split(data)
	b := Split(edited)
	require.Equal(t, len(a), len(b))
	for i := 0; i < len(a)-1; i++ { // every chunk but the last is untouched
		assert.True(t, bytes.Equal(a[i].Data, b[i].Data))
	}
}
