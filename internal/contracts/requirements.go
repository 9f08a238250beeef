package contracts

// HistoryRequirements is the planner's typed request for maintenance work
// the runner must perform before (or after) executing a statement. Planners
// never materialize anything themselves (spec.md §4.3 rule 1); they only
// describe what is needed, and the runner (internal/history) satisfies it.
type HistoryRequirements struct {
	// RootCommitID is the commit whose ancestry must be materialized. Empty
	// means no root-commit materialization is required by this statement.
	RootCommitID string

	// MaxDepth bounds the ancestry walk. A negative value means unbounded
	// ("depth = ∞" in spec.md §4.3.3 when neither root nor depth is given
	// explicitly — the planner fills in the active version's tip and -1).
	MaxDepth int

	// RefreshFileHistoryCache additionally asks for lix_file_history_cache
	// to be refreshed for (FileID, RootCommitID, MaxDepth).
	RefreshFileHistoryCache bool
	FileID                  string
}

// IsZero reports whether these requirements ask for nothing.
func (h HistoryRequirements) IsZero() bool {
	return h.RootCommitID == "" && !h.RefreshFileHistoryCache
}

// Merge combines two requirement sets, used when a script's statements each
// contribute their own requirements and the runner wants the union.
func (h HistoryRequirements) Merge(other HistoryRequirements) HistoryRequirements {
	out := h
	if other.RootCommitID != "" {
		out.RootCommitID = other.RootCommitID
		out.MaxDepth = other.MaxDepth
	}
	if other.RefreshFileHistoryCache {
		out.RefreshFileHistoryCache = true
		out.FileID = other.FileID
	}
	return out
}

// DetectedFileDomainChange is one entity-level mutation a plugin's
// detect_changes reported for a file write (spec.md §4.9). The plugin
// runtime normalizes a plugin's raw return value into a batch of these
// before feeding them through the vtable write flow.
type DetectedFileDomainChange struct {
	EntityID  string
	SchemaKey string
	// SnapshotContent is the new content for this entity, or nil to signal a
	// tombstone (the plugin observed the entity disappear between before/after).
	SnapshotContent []byte
}
