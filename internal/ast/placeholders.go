package ast

import (
	"strconv"
	"strings"

	"github.com/lixdb/lix/internal/contracts"
)

// ClassifyPlaceholder inspects one placeholder token as written by a host
// caller (spec.md §4.5: tolerated forms are "?", "?N", "$N") and returns its
// Kind plus, for the numbered forms, the 1-based index it names.
func ClassifyPlaceholder(token string) (contracts.PlaceholderKind, int, bool) {
	switch {
	case token == "?":
		return contracts.PlaceholderAnon, 0, true
	case strings.HasPrefix(token, "?") && len(token) > 1:
		if n, err := strconv.Atoi(token[1:]); err == nil {
			return contracts.PlaceholderNum, n, true
		}
	case strings.HasPrefix(token, "$") && len(token) > 1:
		if n, err := strconv.Atoi(token[1:]); err == nil {
			return contracts.PlaceholderDoll, n, true
		}
	}
	return "", 0, false
}

// FindPlaceholders scans raw SQL text for placeholder tokens in any of the
// three tolerated forms, returning them in appearance order. This is the
// one place the engine looks at SQL characters directly rather than the
// AST, because the vitess parser normalizes all three forms into its own
// single ValArg representation and the original textual form (needed to
// decide how to renumber for the target dialect) would otherwise be lost.
func FindPlaceholders(sql string) []string {
	var out []string
	runes := []rune(sql)
	inString := false
	var stringQuote rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			if r == stringQuote {
				inString = false
			}
			continue
		}
		switch r {
		case '\'', '"':
			inString = true
			stringQuote = r
		case '?':
			j := i + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			out = append(out, string(runes[i:j]))
			i = j - 1
		case '$':
			j := i + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			if j > i+1 {
				out = append(out, string(runes[i:j]))
				i = j - 1
			}
		}
	}
	return out
}
