package plugin

import "context"

// DetectedEntity is one entity-level change a plugin reports from a file
// write (spec.md §4.9 step 2: "set of {entity_id, schema_key,
// snapshot_content | null}"). A nil SnapshotContent means the entity was
// deleted.
type DetectedEntity struct {
	EntityID        string
	SchemaKey       string
	SnapshotContent map[string]any
}

// FileDescriptor is the subset of a file's descriptor row a plugin needs to
// do its job — its own path/extension, not the full materialized row.
type FileDescriptor struct {
	FileID    string
	Path      string
	Extension string
}

// Plugin is the contract every installed plugin's runtime adapter
// implements (spec.md §4.9). The core never invokes a plugin's code
// directly — language bindings (WASM/Node/Python processes) are the actual
// execution vehicles and are explicitly out of scope (spec.md §1 Non-goals);
// this interface is the seam those bindings implement against.
type Plugin interface {
	// DetectChanges compares before/after file bytes (either may be nil, for
	// a fresh insert or a delete) and returns the entity-level domain
	// changes it implies.
	DetectChanges(ctx context.Context, desc FileDescriptor, before, after []byte) ([]DetectedEntity, error)

	// ApplyChanges reconstructs file bytes from a descriptor plus the
	// entities currently materialized for it (spec.md §4.9 file-read path
	// step 2).
	ApplyChanges(ctx context.Context, desc FileDescriptor, entities []DetectedEntity) ([]byte, error)
}

// Factory constructs a Plugin instance from an Installed manifest+payload,
// mirroring the teacher's BackendFactory shape (a function registered
// against a lookup key, invoked lazily on first use).
type Factory func(ctx context.Context, inst Installed) (Plugin, error)
