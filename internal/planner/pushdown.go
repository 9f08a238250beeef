package planner

import (
	"fmt"

	vsql "github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/ast"
	"github.com/lixdb/lix/internal/contracts"
)

// pushdownResult is what extractPushdown resolves out of one WHERE clause:
// concrete values for every pushdown-eligible equality predicate (spec.md
// §4.3 rule 3), plus whatever predicate text is left over (rule 6: removed
// from the outer WHERE, never double-bound).
type pushdownResult struct {
	Values       map[string]any // pushdown column -> resolved Go value
	LeftoverSQL  string         // rendered leftover WHERE text, "" if nothing remains
	LeftoverRefs []contracts.PlaceholderRef
}

// extractPushdown walks where in the same left-to-right, AND/Paren-only
// order as ast.ExtractEqualities, resolving each pushdown-eligible equality
// to a concrete value (from a literal or from hostParams) and leaving
// everything else as leftover text with its original placeholder tokens
// re-attached to the correct host parameter index.
//
// This assumes every placeholder in the statement appears as the RHS of a
// top-level (AND-joined) equality comparison — true for every canonical
// view query this engine accepts (spec.md §4.3.1's own examples never nest
// a placeholder inside OR/function call); a WHERE clause that violates this
// is rejected with a PlannerInvariant error rather than silently
// mis-binding a parameter.
func extractPushdown(where vsql.Expr, originalSQL string, hostParams []any) (*pushdownResult, error) {
	return extractPushdownFrom(where, originalSQL, hostParams, 0)
}

// extractPushdownFrom is extractPushdown with an explicit starting point
// into the statement's placeholder token sequence — needed by the write
// path (write.go), where the SET/VALUES clause consumes its own
// placeholders before the WHERE clause's tokens begin.
func extractPushdownFrom(where vsql.Expr, originalSQL string, hostParams []any, startTokenIdx int) (*pushdownResult, error) {
	res := &pushdownResult{Values: map[string]any{}}
	if where == nil {
		return res, nil
	}

	allTokens := ast.FindPlaceholders(originalSQL)
	tokenIdx := startTokenIdx
	anonCounter := startTokenIdx
	consumedCols := map[string]bool{}

	var walkErr error
	var walk func(vsql.Expr)
	walk = func(e vsql.Expr) {
		if walkErr != nil {
			return
		}
		switch n := e.(type) {
		case *vsql.AndExpr:
			walk(n.Left)
			walk(n.Right)
		case *vsql.ParenExpr:
			walk(n.Expr)
		case *vsql.ComparisonExpr:
			col, ok := n.Left.(*vsql.ColName)
			if !ok || n.Operator != vsql.EqualOp {
				return // leftover as-is; no placeholder bookkeeping needed beyond token order below
			}
			colName := col.Name.String()

			sqlVal, isPlaceholder := n.Right.(*vsql.SQLVal)
			var value any
			var token string
			var hostIdx int
			if isPlaceholder && sqlVal.Type == vsql.ValArg {
				if tokenIdx >= len(allTokens) {
					walkErr = fmt.Errorf("planner: more placeholder comparisons than tokens found in statement")
					return
				}
				token = allTokens[tokenIdx]
				tokenIdx++
				kind, n2, ok := ast.ClassifyPlaceholder(token)
				if !ok {
					walkErr = fmt.Errorf("planner: unrecognized placeholder token %q", token)
					return
				}
				if kind == contracts.PlaceholderAnon {
					hostIdx = anonCounter
					anonCounter++
				} else {
					hostIdx = n2 - 1
				}
				if hostIdx < 0 || hostIdx >= len(hostParams) {
					walkErr = fmt.Errorf("planner: placeholder %q refers to out-of-range host param %d", token, hostIdx)
					return
				}
				value = hostParams[hostIdx]
			} else {
				value = literalValue(n.Right)
			}

			if ast.PushdownColumns[colName] {
				res.Values[colName] = value
				consumedCols[colName] = true
				return
			}
			if isPlaceholder {
				res.LeftoverRefs = append(res.LeftoverRefs, contracts.PlaceholderRef{
					Kind: kindOf(token), Token: token, HostParamIdx: hostIdx, PushedDown: false,
				})
			}
		}
	}
	walk(where)
	if walkErr == nil && tokenIdx != len(allTokens) {
		walkErr = fmt.Errorf("planner: %d placeholder(s) are not the RHS of a top-level equality comparison", len(allTokens)-tokenIdx)
	}
	if walkErr != nil {
		return nil, &contracts.EngineError{Kind: contracts.KindPlannerInvariant, Reason: walkErr.Error()}
	}

	leftover := ast.RemoveConsumed(where, consumedCols)
	if leftover != nil {
		buf := vsql.NewTrackedBuffer(nil)
		leftover.Format(buf)
		res.LeftoverSQL = buf.String()
	}
	return res, nil
}

func kindOf(token string) contracts.PlaceholderKind {
	kind, _, _ := ast.ClassifyPlaceholder(token)
	return kind
}

// literalValue renders a non-placeholder RHS expression to a Go value good
// enough for catalog lookups (strings and integers, the only literal types
// pushdown-eligible columns ever compare against).
func literalValue(e vsql.Expr) any {
	if v, ok := e.(*vsql.SQLVal); ok {
		switch v.Type {
		case vsql.StrVal:
			return string(v.Val)
		case vsql.IntVal:
			return string(v.Val)
		}
	}
	buf := vsql.NewTrackedBuffer(nil)
	e.Format(buf)
	return buf.String()
}
