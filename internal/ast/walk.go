package ast

import (
	vsql "github.com/dolthub/vitess/go/vt/sqlparser"
)

// Walk visits every node in the statement, depth-first, calling visit for
// each. Returning false from visit stops descending into that node's
// children (mirrors vsql.Walk's early-stop contract).
func Walk(visit func(vsql.SQLNode) (bool, error), node vsql.SQLNode) error {
	return vsql.Walk(func(n vsql.SQLNode) (bool, error) {
		return visit(n)
	}, node)
}

// TableNames returns every table name referenced anywhere in the statement
// (FROM, JOIN, subqueries, INSERT/UPDATE/DELETE targets), in appearance
// order, deduplicated. Used by the planner's view-recognition step: a
// logical view like lix_state_by_version is recognized by table name match,
// never by a substring check on the raw SQL (spec.md §9).
func TableNames(node vsql.SQLNode) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	err := Walk(func(n vsql.SQLNode) (bool, error) {
		if t, ok := n.(vsql.TableName); ok {
			name := t.Name.String()
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		return true, nil
	}, node)
	return out, err
}

// HasJoinOrSubquery reports whether the statement contains a JOIN clause or
// a subquery, used by the read-intent classifier to decide whether a fast
// path (spec.md §4.3 rule 4) is even eligible — fast paths only apply to
// single-table, predicate-only shapes.
func HasJoinOrSubquery(node vsql.SQLNode) (bool, error) {
	found := false
	err := Walk(func(n vsql.SQLNode) (bool, error) {
		switch n.(type) {
		case *vsql.JoinTableExpr, *vsql.Subquery:
			found = true
			return false, nil
		}
		return true, nil
	}, node)
	return found, err
}
