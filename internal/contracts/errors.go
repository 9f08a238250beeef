// Package contracts holds the typed values exchanged between the planner,
// binder, runner, commit generator, and host API: PlannedStatement,
// PreparedStatement, ExecutionPlan, PostprocessAction, HistoryRequirements,
// DetectedFileDomainChange, and the engine's error taxonomy. Nothing in this
// package touches a backend or a database/sql handle; it exists so the
// planner can stay side-effect free (spec.md §4.3 rule 1) while still
// describing effects precisely.
package contracts

import "fmt"

// ErrorKind is the taxonomy from spec.md §7. It is a closed set: new kinds
// require a spec change, not a default branch at the call site.
type ErrorKind string

const (
	KindParse            ErrorKind = "parse"
	KindValidation       ErrorKind = "validation"
	KindConstraint       ErrorKind = "constraint"
	KindPlannerInvariant ErrorKind = "planner_invariant"
	KindMaintenance      ErrorKind = "maintenance"
	KindPluginFailure    ErrorKind = "plugin_failure"
	KindIO               ErrorKind = "io"
	KindNotFound         ErrorKind = "not_found"
)

// EngineError is the concrete type behind every error the engine returns to
// a host. Coordinates are filled in wherever the failing operation knows
// them; zero values mean "unknown for this error", not "not applicable".
type EngineError struct {
	Kind   ErrorKind
	Reason string

	EntityID     string
	SchemaKey    string
	FileID       string
	VersionID    string
	Path         string // JSON-Schema instance path, for Validation errors
	PlanFingerprint string

	Cause error
}

func (e *EngineError) Error() string {
	if e.Reason == "" && e.Cause != nil {
		return fmt.Sprintf("lix: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("lix: %s: %s", e.Kind, e.Reason)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// WithCoords returns a copy of e with the entity coordinates set. Used by
// callers that catch a bare planner/executor error and want to attach the
// identifiers they had in scope.
func (e *EngineError) WithCoords(entityID, schemaKey, fileID, versionID string) *EngineError {
	cp := *e
	cp.EntityID = entityID
	cp.SchemaKey = schemaKey
	cp.FileID = fileID
	cp.VersionID = versionID
	return &cp
}

// PlannerError is a convenience constructor for errors raised during
// planning (parse, validation of statement shape, or invariant violations).
// Planner errors never partially apply: the planner is pure, so any error
// here means zero statements were emitted.
func PlannerError(kind ErrorKind, reason string) *EngineError {
	return &EngineError{Kind: kind, Reason: reason}
}

// ExecutorError wraps a backend-surfaced failure (constraint violation, I/O)
// verbatim; the engine never re-parses the backend's error string for
// control flow (spec.md §4.1, §9).
func ExecutorError(kind ErrorKind, cause error) *EngineError {
	return &EngineError{Kind: kind, Cause: cause}
}
