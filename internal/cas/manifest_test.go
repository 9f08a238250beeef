package cas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildManifestIsContentAddressed(t *testing.T) {
	data := randomBytes(500*1024, 7)
	m1, chunks1 := BuildManifest(data)
	m2, chunks2 := BuildManifest(data)
	assert.Equal(t, m1.Hash, m2.Hash)
	assert.Equal(t, len(chunks1), len(chunks2))
	assert.Equal(t, m1.Chunks, m2.Chunks)
	assert.EqualValues(t, len(data), m1.SizeBytes)
}

func TestBuildManifestDiffersForDifferentContent(t *testing.T) {
	m1, _ := BuildManifest(randomBytes(200*1024, 10))
	m2, _ := BuildManifest(randomBytes(200*1024, 11))
	assert.NotEqual(t, m1.Hash, m2.Hash)
}

func TestManifestHashOrderSensitive(t *testing.T) {
	a := ManifestHash([]string{"x", "y"})
	b := ManifestHash([]string{"y", "x"})
	assert.NotEqual(t, a, b)
}
