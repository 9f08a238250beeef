package fsx

import "sync"

// PathCache memoizes path -> file id lookups per version, trading strict
// read-after-write freshness for avoiding a materialized-table scan on every
// file read (spec.md §4.10, Open Question: cache-invalidation coverage).
//
// Decision recorded in DESIGN.md: invalidation drops the *whole* file-path
// cache entry for a version, rather than attempting fine-grained per-path
// invalidation. A
// descriptor-only rename (directory move without content change) is cheap
// enough, and rare enough relative to content writes, that tracking it
// precisely is not worth the bookkeeping.
type PathCache struct {
	mu      sync.RWMutex
	byPath  map[string]map[string]string // versionID -> path -> fileID
}

// NewPathCache returns an empty cache.
func NewPathCache() *PathCache {
	return &PathCache{byPath: map[string]map[string]string{}}
}

// Lookup returns the cached file id for (versionID, path), if present.
func (c *PathCache) Lookup(versionID, path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byPath[versionID]
	if !ok {
		return "", false
	}
	id, ok := m[path]
	return id, ok
}

// Put records a resolved path -> file id mapping for versionID.
func (c *PathCache) Put(versionID, path, fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byPath[versionID]
	if !ok {
		m = map[string]string{}
		c.byPath[versionID] = m
	}
	m[path] = fileID
}

// InvalidateVersion drops every cached path for versionID, the whole-version
// invalidation described above. No engine code holds a PathCache, so no
// write path calls it.
func (c *PathCache) InvalidateVersion(versionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byPath, versionID)
}

// DataCache memoizes decoded file content by (fileID, changeID) so repeated
// reads of the same materialized row — e.g. across several plugin
// detect_changes calls touching the same file — skip re-decoding.
type DataCache struct {
	mu   sync.RWMutex
	data map[string][]byte // fileID+"@"+changeID -> content
}

// NewDataCache returns an empty cache.
func NewDataCache() *DataCache {
	return &DataCache{data: map[string][]byte{}}
}

func dataCacheKey(fileID, changeID string) string {
	return fileID + "@" + changeID
}

// Lookup returns cached content for (fileID, changeID), if present.
func (c *DataCache) Lookup(fileID, changeID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[dataCacheKey(fileID, changeID)]
	return v, ok
}

// Put records content for (fileID, changeID). Content is immutable once a
// change lands, so entries never need updating, only eviction.
func (c *DataCache) Put(fileID, changeID string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[dataCacheKey(fileID, changeID)] = content
}

// InvalidateFile drops every cached changeID entry for fileID, used when a
// file is deleted or its whole history is pruned by maintenance.
func (c *DataCache) InvalidateFile(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := fileID + "@"
	for k := range c.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.data, k)
		}
	}
}
