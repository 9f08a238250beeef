package schema

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"
)

// DefaultsContext evaluates x-lix-default CEL expressions (spec.md §4.8).
// It owns the lix_uuid_v7()/lix_get_timestamp() builtins and, in
// deterministic mode, replaces both with seeded sequences so that given
// identical seeds and input sequences, the emitted values are identical
// (spec.md §6.4, §8 property 8).
type DefaultsContext struct {
	env *cel.Env

	deterministic bool
	seed          int64
	counter       atomic.Uint64

	mu     sync.Mutex
	programs map[string]cel.Program
}

// NewDefaultsContext builds a CEL environment exposing lix_uuid_v7() and
// lix_get_timestamp() as zero-arg functions, per spec.md §4.8.
func NewDefaultsContext(deterministic bool, seed int64) (*DefaultsContext, error) {
	dc := &DefaultsContext{deterministic: deterministic, seed: seed, programs: map[string]cel.Program{}}

	// Zero-arg global functions bound as closures over dc, so each
	// DefaultsContext gets its own deterministic counter/seed.
	env, err := cel.NewEnv(
		cel.Function("lix_uuid_v7",
			cel.Overload("lix_uuid_v7_impl", []*cel.Type{}, cel.StringType,
				cel.FunctionBinding(func(args ...any) any {
					return dc.nextUUID()
				}))),
		cel.Function("lix_get_timestamp",
			cel.Overload("lix_get_timestamp_impl", []*cel.Type{}, cel.StringType,
				cel.FunctionBinding(func(args ...any) any {
					return dc.nextTimestamp()
				}))),
	)
	if err != nil {
		return nil, fmt.Errorf("schema: build CEL env: %w", err)
	}
	dc.env = env
	return dc, nil
}

func (dc *DefaultsContext) nextUUID() string {
	if dc.deterministic {
		n := dc.counter.Add(1)
		return deterministicUUID(dc.seed, n)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func (dc *DefaultsContext) nextTimestamp() string {
	if dc.deterministic {
		n := dc.counter.Add(1)
		base := time.Unix(dc.seed, 0).UTC()
		return base.Add(time.Duration(n) * time.Millisecond).Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// deterministicUUID produces a stable, seed-derived UUIDv7-shaped string so
// two engines opened with the same seed and driven through the same
// sequence of defaulted writes agree exactly (spec.md §8 property 8). It is
// not a cryptographically meaningful UUID; it only needs to be stable and
// unique per (seed, n).
func deterministicUUID(seed int64, n uint64) string {
	var b [16]byte
	s := uint64(seed)
	for i := 0; i < 8; i++ {
		b[i] = byte(s >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		b[8+i] = byte(n >> (8 * i))
	}
	b[6] = (b[6] & 0x0f) | 0x70 // version 7
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant
	id, _ := uuid.FromBytes(b[:])
	return id.String()
}

// Eval compiles (caching by expression text) and evaluates expr, returning
// the resulting value as a string/number/bool matching the target column's
// JSON type.
func (dc *DefaultsContext) Eval(expr string) (any, error) {
	dc.mu.Lock()
	prog, ok := dc.programs[expr]
	dc.mu.Unlock()
	if !ok {
		ast, issues := dc.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("schema: compile CEL default %q: %w", expr, issues.Err())
		}
		p, err := dc.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("schema: build CEL program %q: %w", expr, err)
		}
		dc.mu.Lock()
		dc.programs[expr] = p
		dc.mu.Unlock()
		prog = p
	}
	out, _, err := prog.Eval(map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("schema: eval CEL default %q: %w", expr, err)
	}
	return out.Value(), nil
}
