package schema

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lixdb/lix/internal/contracts"
)

// ValidationFailure describes one JSON-Schema rejection (spec.md §4.12,
// §7's Validation error kind: "entity_id, schema_key, path, reason").
type ValidationFailure struct {
	EntityID  string
	SchemaKey string
	Path      string
	Reason    string
}

// Validate compiles (from cache) and evaluates snapshotContent against the
// registered schema for schemaKey. Called once per mutation, before commit
// generation creates any change row (spec.md §4.8 "evaluated against
// snapshot_content before commit generation").
func (r *Registry) Validate(entityID, schemaKey string, snapshotContent []byte) *contracts.EngineError {
	_, validator, ok := r.Get(schemaKey)
	if !ok {
		return &contracts.EngineError{
			Kind:      contracts.KindNotFound,
			Reason:    fmt.Sprintf("schema %q is not registered", schemaKey),
			SchemaKey: schemaKey,
			EntityID:  entityID,
		}
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(snapshotContent))
	if err != nil {
		return &contracts.EngineError{
			Kind:      contracts.KindValidation,
			Reason:    fmt.Sprintf("snapshot_content is not valid JSON: %v", err),
			SchemaKey: schemaKey,
			EntityID:  entityID,
		}
	}

	if err := validator.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		path := ""
		if ok && len(ve.Causes) > 0 {
			path = ve.Causes[0].InstanceLocation
		} else if ok {
			path = ve.InstanceLocation
		}
		return &contracts.EngineError{
			Kind:      contracts.KindValidation,
			Reason:    err.Error(),
			SchemaKey: schemaKey,
			EntityID:  entityID,
			Path:      path,
		}
	}
	return nil
}
