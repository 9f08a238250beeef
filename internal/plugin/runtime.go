package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lixdb/lix/internal/cas"
	"github.com/lixdb/lix/internal/contracts"
)

// Runtime ties a Registry and InstanceCache together to serve both halves
// of spec.md §4.9's file path: normalizing detect_changes output into the
// vtable write flow's input shape, and driving apply_changes (or the binary
// fallback) for reads.
type Runtime struct {
	registry *Registry
	cache    *InstanceCache
	log      *slog.Logger
}

// NewRuntime returns a Runtime over registry, with its own instance cache.
// A nil log falls back to slog.Default().
func NewRuntime(registry *Registry, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{registry: registry, cache: NewInstanceCache(registry), log: log}
}

// Registry returns the Registry this Runtime was built over, so a host can
// install plugins and register runtime factories directly (spec.md §6.2
// "install_plugin").
func (rt *Runtime) Registry() *Registry { return rt.registry }

// ResetForExecute must be called once at the start of every runner.Execute
// so plugin instances never leak state across unrelated executes (spec.md
// §4.9 "cached... and reused across a single execute").
func (rt *Runtime) ResetForExecute() { rt.cache.Reset() }

// DetectWrite runs the file-write path (spec.md §4.9 steps 1-3): resolve a
// plugin by glob, or fall back to binary CAS chunking if none matches.
// Returns the normalized domain-change batch the vtable write flow consumes
// as tracked writes, plus whether a plugin handled it (false means the
// caller must also persist a binary blob manifest itself).
func (rt *Runtime) DetectWrite(ctx context.Context, desc FileDescriptor, before, after []byte) (handled bool, batch []contracts.DetectedFileDomainChange, err error) {
	manifest, ok := rt.registry.Resolve(desc.Path)
	if !ok {
		return false, nil, nil
	}

	p, err := rt.cache.Get(ctx, manifest.Key)
	if err != nil {
		return false, nil, err
	}
	entities, err := p.DetectChanges(ctx, desc, before, after)
	if err != nil {
		rt.log.Warn("plugin detect_changes failed", "plugin", manifest.Key, "path", desc.Path, "error", err)
		return false, nil, fmt.Errorf("plugin: %s detect_changes: %w", manifest.Key, err)
	}
	out := make([]contracts.DetectedFileDomainChange, len(entities))
	for i, e := range entities {
		var raw []byte
		if e.SnapshotContent != nil {
			raw, err = json.Marshal(e.SnapshotContent)
			if err != nil {
				return false, nil, fmt.Errorf("plugin: %s: marshal entity %s: %w", manifest.Key, e.EntityID, err)
			}
		}
		out[i] = contracts.DetectedFileDomainChange{EntityID: e.EntityID, SchemaKey: e.SchemaKey, SnapshotContent: raw}
	}
	return true, out, nil
}

// ReadEntities is the shape the caller supplies to ApplyRead: the entities
// currently materialized for a file, already decoded from their snapshot
// JSON by the caller (the runtime has no business parsing domain schemas).
type ReadEntities []DetectedEntity

// ApplyRead runs the file-read path (spec.md §4.9 steps for projections
// including `data`): resolve the plugin and call apply_changes. The caller
// has already fetched the current entity set for (file_id, version_id).
func (rt *Runtime) ApplyRead(ctx context.Context, desc FileDescriptor, entities ReadEntities) ([]byte, error) {
	manifest, ok := rt.registry.Resolve(desc.Path)
	if !ok {
		return nil, fmt.Errorf("plugin: no plugin matches %q; caller must use binary fallback", desc.Path)
	}
	p, err := rt.cache.Get(ctx, manifest.Key)
	if err != nil {
		return nil, err
	}
	bytes, err := p.ApplyChanges(ctx, desc, entities)
	if err != nil {
		rt.log.Warn("plugin apply_changes failed", "plugin", manifest.Key, "path", desc.Path, "error", err)
		return nil, fmt.Errorf("plugin: %s apply_changes: %w", manifest.Key, err)
	}
	return bytes, nil
}

// HasPlugin reports whether any installed plugin's glob matches path,
// without invoking it — used by Handle.ReadFile (lix.go) to decide between
// the plugin path and binary fallback before querying state.
func (rt *Runtime) HasPlugin(path string) bool {
	_, ok := rt.registry.Resolve(path)
	return ok
}

// BuildBinaryBlob is the binary-fallback counterpart of DetectWrite: when no
// plugin matches, chunk and hash the new bytes for storage in the CAS
// tables (spec.md §4.11), emitting the single metadata domain change
// spec.md §4.11 describes ("lix_binary_blob_ref = {id, blob_hash,
// size_bytes}"). Identical-bytes rewrites are the caller's job to detect
// before calling this (comparing against the prior file_version_ref row) so
// no history change is emitted, per spec.md §4.11's state machine.
func BuildBinaryBlob(content []byte) (cas.BlobManifest, []cas.StoredChunk) {
	return cas.BuildManifest(content)
}
