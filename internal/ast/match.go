package ast

import (
	vsql "github.com/dolthub/vitess/go/vt/sqlparser"
)

// EqualityPredicate is one `column = value-or-placeholder` comparison pulled
// out of a WHERE clause.
type EqualityPredicate struct {
	Column      string
	Placeholder string // non-empty if the RHS was a placeholder token (?, ?N, $N)
	Literal     vsql.Expr
}

// ExtractEqualities walks a WHERE expression and returns every top-level
// equality predicate joined by AND (spec.md §4.3 rule 3, predicate
// pushdown). OR'd or nested-in-a-function predicates are left alone — they
// are not pushdown candidates and stay in the outer WHERE.
func ExtractEqualities(where vsql.Expr) []EqualityPredicate {
	var out []EqualityPredicate
	var walk func(vsql.Expr)
	walk = func(e vsql.Expr) {
		switch n := e.(type) {
		case *vsql.AndExpr:
			walk(n.Left)
			walk(n.Right)
		case *vsql.ParenExpr:
			walk(n.Expr)
		case *vsql.ComparisonExpr:
			if n.Operator != vsql.EqualOp {
				return
			}
			col, ok := n.Left.(*vsql.ColName)
			if !ok {
				return
			}
			pred := EqualityPredicate{Column: col.Name.String()}
			if ph, ok := asPlaceholder(n.Right); ok {
				pred.Placeholder = ph
			} else {
				pred.Literal = n.Right
			}
			out = append(out, pred)
		}
	}
	walk(where)
	return out
}

// PushdownColumns is the fixed set of columns spec.md §4.3 rule 3 names as
// pushdown-eligible. A predicate on any other column stays in the outer
// WHERE untouched.
var PushdownColumns = map[string]bool{
	"entity_id":      true,
	"schema_key":     true,
	"file_id":        true,
	"plugin_key":     true,
	"version_id":     true,
	"root_commit_id": true,
	"depth":          true,
}

// RemoveConsumed rebuilds a WHERE expression with every predicate whose
// column is in consumed removed, preserving the rest. This is how the
// planner satisfies spec.md §4.3 rule 6 ("placeholders consumed by
// pushdowns are removed from the outer WHERE so no placeholder is bound
// twice") and §8 property 10.
func RemoveConsumed(where vsql.Expr, consumed map[string]bool) vsql.Expr {
	var rebuild func(vsql.Expr) vsql.Expr
	rebuild = func(e vsql.Expr) vsql.Expr {
		switch n := e.(type) {
		case *vsql.AndExpr:
			l := rebuild(n.Left)
			r := rebuild(n.Right)
			if l == nil {
				return r
			}
			if r == nil {
				return l
			}
			return &vsql.AndExpr{Left: l, Right: r}
		case *vsql.ParenExpr:
			inner := rebuild(n.Expr)
			if inner == nil {
				return nil
			}
			return &vsql.ParenExpr{Expr: inner}
		case *vsql.ComparisonExpr:
			if col, ok := n.Left.(*vsql.ColName); ok && consumed[col.Name.String()] {
				return nil
			}
			return n
		default:
			return n
		}
	}
	return rebuild(where)
}

func asPlaceholder(e vsql.Expr) (string, bool) {
	switch v := e.(type) {
	case *vsql.SQLVal:
		if v.Type == vsql.ValArg {
			return string(v.Val), true
		}
	}
	return "", false
}
