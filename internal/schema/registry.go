// Package schema implements the stored-schema cache, JSON-Schema
// compilation, CEL default evaluation, and per-schema materialized-table
// projection from spec.md §4.8.
//
// Grounded on the teacher's internal/storage/dolt/spec_registry.go: a
// stored, id-keyed registry (there: markdown specs; here: JSON-Schema
// documents) with upsert/list/get operations and a process-wide cache
// invalidated by writes to its own backing table.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StoredSchema is one row of the lix_stored_schema entity (schema_key
// "lix_stored_schema", version "global" per spec.md §4.8).
type StoredSchema struct {
	SchemaKey string
	Version   string
	Document  json.RawMessage // the JSON-Schema document itself

	PrimaryKey  []string // x-lix-primary-key
	Unique      [][]string // x-lix-unique (list of column sets)
	ForeignKeys []ForeignKey
	Defaults    map[string]string // column -> CEL expression (x-lix-default)
}

// ForeignKey is one x-lix-foreign-key entry.
type ForeignKey struct {
	Columns    []string
	RefSchema  string
	RefColumns []string
}

// Registry caches compiled validators and materialized-table projections
// per schema key, process-wide for a handle. It is invalidated by calling
// Invalidate whenever lix_stored_schema is written (spec.md §4.8, §9
// "Global mutable state").
type Registry struct {
	mu         sync.RWMutex
	schemas    map[string]*StoredSchema
	validators map[string]*jsonschema.Schema
}

// NewRegistry returns an empty, lazily-populated registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas:    map[string]*StoredSchema{},
		validators: map[string]*jsonschema.Schema{},
	}
}

// Load installs (or replaces) a stored schema and compiles its JSON-Schema
// validator once, per spec.md §4.8 "compiled once per schema".
func (r *Registry) Load(s *StoredSchema) error {
	compiler := jsonschema.NewCompiler()
	resourceName := "lix://" + s.SchemaKey
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(s.Document))
	if err != nil {
		return fmt.Errorf("schema: unmarshal %s: %w", s.SchemaKey, err)
	}
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("schema: add resource %s: %w", s.SchemaKey, err)
	}
	validator, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", s.SchemaKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.SchemaKey] = s
	r.validators[s.SchemaKey] = validator
	return nil
}

// Get returns the stored schema and its compiled validator, or false if the
// schema key is not registered.
func (r *Registry) Get(schemaKey string) (*StoredSchema, *jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[schemaKey]
	if !ok {
		return nil, nil, false
	}
	return s, r.validators[schemaKey], true
}

// Keys returns every registered schema key, used to enumerate materialized
// tables that need DDL or maintenance.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	return out
}

// Invalidate drops one schema (or, with an empty key, every schema) from
// the cache. Called whenever lix_stored_schema is written so the next Get
// reflects the latest definition.
func (r *Registry) Invalidate(schemaKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if schemaKey == "" {
		r.schemas = map[string]*StoredSchema{}
		r.validators = map[string]*jsonschema.Schema{}
		return
	}
	delete(r.schemas, schemaKey)
	delete(r.validators, schemaKey)
}
