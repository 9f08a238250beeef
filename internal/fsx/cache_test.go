package fsx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathCachePutLookupInvalidate(t *testing.T) {
	c := NewPathCache()
	_, ok := c.Lookup("v1", "/docs/readme.md")
	assert.False(t, ok)

	c.Put("v1", "/docs/readme.md", "file-1")
	id, ok := c.Lookup("v1", "/docs/readme.md")
	assert.True(t, ok)
	assert.Equal(t, "file-1", id)

	c.InvalidateVersion("v1")
	_, ok = c.Lookup("v1", "/docs/readme.md")
	assert.False(t, ok)
}

func TestPathCacheIsolatesVersions(t *testing.T) {
	c := NewPathCache()
	c.Put("v1", "/a.txt", "file-1")
	c.Put("v2", "/a.txt", "file-2")
	id1, _ := c.Lookup("v1", "/a.txt")
	id2, _ := c.Lookup("v2", "/a.txt")
	assert.Equal(t, "file-1", id1)
	assert.Equal(t, "file-2", id2)
}

func TestDataCachePutLookupInvalidateFile(t *testing.T) {
	c := NewDataCache()
	c.Put("file-1", "change-1", []byte(`{"a":1}`))
	v, ok := c.Lookup("file-1", "change-1")
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), v)

	c.Put("file-1", "change-2", []byte(`{"a":2}`))
	c.InvalidateFile("file-1")
	_, ok = c.Lookup("file-1", "change-1")
	assert.False(t, ok)
	_, ok = c.Lookup("file-1", "change-2")
	assert.False(t, ok)
}
