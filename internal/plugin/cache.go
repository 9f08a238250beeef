package plugin

import (
	"context"
	"fmt"
	"sync"
)

// InstanceCache owns one live Plugin instance per plugin key, reused across
// a single execute (spec.md §4.9 "cached per plugin key and reused across a
// single execute; callbacks are never invoked during planning").
//
// Unlike Registry (which persists installed manifests across the handle's
// lifetime), InstanceCache's entries are cheap to rebuild and exist purely
// to avoid re-constructing a plugin instance for every file touched within
// one runner pass.
type InstanceCache struct {
	mu        sync.Mutex
	registry  *Registry
	instances map[string]Plugin
}

// NewInstanceCache returns a cache backed by registry.
func NewInstanceCache(registry *Registry) *InstanceCache {
	return &InstanceCache{registry: registry, instances: map[string]Plugin{}}
}

// Get returns the cached Plugin for key, constructing and caching it on
// first use via the registry's factory for the manifest's runtime_version.
func (c *InstanceCache) Get(ctx context.Context, key string) (Plugin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.instances[key]; ok {
		return p, nil
	}

	inst, ok := c.registry.Get(key)
	if !ok {
		return nil, fmt.Errorf("plugin: key %q is not installed", key)
	}
	factory, err := c.registry.factoryFor(inst.Manifest.RuntimeVersion)
	if err != nil {
		return nil, err
	}
	p, err := factory(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("plugin: construct %q: %w", key, err)
	}
	c.instances[key] = p
	return p, nil
}

// Reset drops every cached instance. Called once per execute boundary so a
// fresh execute never observes another execute's in-flight plugin state.
func (c *InstanceCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances = map[string]Plugin{}
}
