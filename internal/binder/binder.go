// Package binder materializes host-supplied parameters into backend-ready
// positional arguments exactly once per placeholder (spec.md §4.5, §8
// property 1). It is the sole place a PlannedStatement's typed placeholder
// map becomes a PreparedStatement's flat []any argument list.
//
// Grounded on the teacher's prepared-statement parameter ordering in
// storage/dolt/spec_registry.go (UpsertSpecRegistry builds a flat, ordered
// arg list per statement from a struct), generalized here into a reusable
// slot map that also renumbers placeholders for the target dialect.
package binder

import (
	"fmt"
	"strings"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/contracts"
)

// Binder binds one ExecutionPlan's worth of PlannedStatements against a
// single host parameter slice. A Binder instance is single-use: rebinding
// the same PlannedStatement (or reusing a Binder across two different host
// calls) is a programmer error, and Bind returns a PlannerInvariant error
// rather than silently double-binding (spec.md §8 property 1, §4.12).
type Binder struct {
	hostParams []any
	consumed   map[int]bool // hostParams index -> already bound
}

// New creates a Binder over the host-supplied parameter slice for one
// execute() call.
func New(hostParams []any) *Binder {
	return &Binder{hostParams: hostParams, consumed: map[int]bool{}}
}

// Bind materializes one PlannedStatement into a PreparedStatement for the
// given backend dialect. It renumbers placeholders into the dialect's
// native positional form ("?" repeated for embedded/SQLite, "$1, $2, ..."
// for server/Postgres).
func (b *Binder) Bind(stmt *contracts.PlannedStatement, dialect backend.Dialect) (*contracts.PreparedStatement, error) {
	var args []any
	var sb strings.Builder
	sb.Grow(len(stmt.SQL))

	pos := 0
	refByToken := map[string]contracts.PlaceholderRef{}
	for _, ref := range stmt.Placeholders {
		refByToken[ref.Token] = ref
	}

	i := 0
	for i < len(stmt.SQL) {
		token, width := matchPlaceholderAt(stmt.SQL, i)
		if token == "" {
			sb.WriteByte(stmt.SQL[i])
			i++
			continue
		}
		ref, ok := refByToken[token]
		if !ok {
			return nil, &contracts.EngineError{
				Kind:   contracts.KindPlannerInvariant,
				Reason: fmt.Sprintf("binder: unresolved placeholder token %q in lowered SQL", token),
			}
		}
		if b.consumed[ref.HostParamIdx] {
			return nil, &contracts.EngineError{
				Kind:   contracts.KindPlannerInvariant,
				Reason: fmt.Sprintf("binder: host parameter %d already bound (re-binding is forbidden)", ref.HostParamIdx),
			}
		}
		if ref.HostParamIdx < 0 || ref.HostParamIdx >= len(b.hostParams) {
			return nil, &contracts.EngineError{
				Kind:   contracts.KindPlannerInvariant,
				Reason: fmt.Sprintf("binder: host parameter index %d out of range (have %d params)", ref.HostParamIdx, len(b.hostParams)),
			}
		}
		b.consumed[ref.HostParamIdx] = true
		args = append(args, b.hostParams[ref.HostParamIdx])
		pos++
		sb.WriteString(nativePlaceholder(dialect, pos))
		i += width
	}

	return &contracts.PreparedStatement{SQL: sb.String(), Args: args, Source: stmt}, nil
}

// BindAll binds every statement in an ExecutionPlan, in order, over the
// same host parameter slice (spec.md §4.5 "Scripts ... share a single
// parameter list").
func (b *Binder) BindAll(plan *contracts.ExecutionPlan, dialect backend.Dialect) ([]*contracts.PreparedStatement, error) {
	out := make([]*contracts.PreparedStatement, 0, len(plan.Statements))
	for i := range plan.Statements {
		ps, err := b.Bind(&plan.Statements[i], dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, nil
}

// AllConsumed reports whether every host parameter was bound by some
// statement. A plan that leaves parameters unconsumed is not necessarily an
// error (a no-op rewrite might drop a predicate entirely), but callers that
// want strict validation can check this.
func (b *Binder) AllConsumed() bool {
	return len(b.consumed) == len(b.hostParams)
}

func nativePlaceholder(dialect backend.Dialect, pos int) string {
	if dialect == backend.DialectServer {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

// matchPlaceholderAt reports the placeholder token (if any) starting at
// index i in sql, and its width in bytes. Returns ("", 0) if sql[i] is not
// the start of a placeholder. String literals are skipped by the caller
// loop implicitly since '?'/'$' inside a quoted literal would only appear
// there if the host wrote it, which planners never do for literal values
// (literals are always placeholders or AST constants, never raw text
// containing '?').
func matchPlaceholderAt(sql string, i int) (string, int) {
	if sql[i] == '?' {
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		return sql[i:j], j - i
	}
	if sql[i] == '$' {
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		if j > i+1 {
			return sql[i:j], j - i
		}
	}
	return "", 0
}
