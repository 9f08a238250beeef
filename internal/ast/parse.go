// Package ast wraps a dialect-tolerant SQL parser (vitess's sqlparser,
// vendored into the pack via github.com/dolthub/vitess, an indirect
// dependency of the teacher pulled in by dolthub/driver/go-mysql-server) and
// exposes the walk/match/placeholder-extraction helpers the planner needs.
// Everything downstream of Parse works on the AST; no planner code scans
// SQL text (spec.md §4.2, §9 "String-matched control flow ... forbidden").
package ast

import (
	"fmt"

	vsql "github.com/dolthub/vitess/go/vt/sqlparser"
)

// Kind classifies a parsed statement for the runner's read/mutation split
// (spec.md §4.6 step 1). It is derived once, from the AST node type, never
// from a text prefix check.
type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindOther  Kind = "other"
)

// Statement is a parsed SQL statement plus its classification. It wraps the
// vitess AST node rather than re-deriving a parallel representation, so
// every walk/match helper below can delegate straight to vsql.Walk.
type Statement struct {
	Node vsql.Statement
	Kind Kind
}

// Parse parses one SQL statement. It is dialect-tolerant in the sense
// spec.md §4.2 requires: it accepts ?, ?N, and $N placeholder forms
// (detected separately by placeholders.go, since vitess's own placeholder
// AST node only natively models one family — callers normalize before
// calling Parse when the incoming text mixes forms from a foreign driver).
func Parse(sql string) (*Statement, error) {
	node, err := vsql.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("ast: parse: %w", err)
	}
	return &Statement{Node: node, Kind: classify(node)}, nil
}

// ParseScript splits and parses a multi-statement script (spec.md §4.6
// "Script path"), preserving statement order.
func ParseScript(script string) ([]*Statement, error) {
	tokens := vsql.NewStringTokenizer(script)
	var out []*Statement
	for {
		node, err := vsql.ParseNext(tokens)
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fmt.Errorf("ast: parse script: %w", err)
		}
		out = append(out, &Statement{Node: node, Kind: classify(node)})
	}
	return out, nil
}

func classify(node vsql.Statement) Kind {
	switch node.(type) {
	case *vsql.Select, *vsql.Union:
		return KindSelect
	case *vsql.Insert:
		return KindInsert
	case *vsql.Update:
		return KindUpdate
	case *vsql.Delete:
		return KindDelete
	default:
		return KindOther
	}
}

// String renders the statement back to canonical SQL text, used by the
// planner to emit PlannedStatement.SQL after rewriting the AST in place.
func (s *Statement) String() string {
	buf := vsql.NewTrackedBuffer(nil)
	s.Node.Format(buf)
	return buf.String()
}
