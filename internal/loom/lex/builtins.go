package lex

import (
	"sort"
	"unicode"

	"golang.org/x/text/unicode/rangetable"

	"github.com/dekarrin/loom/internal/loom/ast"
)

// builtins maps `std.name` token-set references (spec.md §4.4, "Built-ins")
// to their expanded character ranges. The ASCII classes are fixed literal
// tables; the Unicode-wide ones are derived from the standard library's
// unicode.RangeTable via golang.org/x/text/unicode/rangetable so this
// package never hand-copies a category table that the Go Unicode tables
// already carry canonically.
var builtins = map[string][]ast.CharRange{
	"std.asciiLetter": {
		{Lo: 'A', Hi: 'Z'},
		{Lo: 'a', Hi: 'z'},
	},
	"std.digit": {
		{Lo: '0', Hi: '9'},
	},
	"std.whitespace": {
		{Lo: ' ', Hi: ' '},
		{Lo: '\t', Hi: '\t'},
		{Lo: '\n', Hi: '\n'},
		{Lo: '\r', Hi: '\r'},
	},
	"std.unicodeLetter": fromRangeTable(unicode.L),
	"std.unicodeDigit":  fromRangeTable(unicode.Nd),
	"std.unicodeSpace":  fromRangeTable(unicode.White_Space),
}

// fromRangeTable flattens a *unicode.RangeTable into the module's own
// CharRange list, merging it through rangetable.Merge first so a table
// assembled from more than one source category (not needed by the builtins
// above today, but exercised by any future std.* addition) gets a single
// coalesced run list rather than duplicate/overlapping spans.
func fromRangeTable(tabs ...*unicode.RangeTable) []ast.CharRange {
	merged := rangetable.Merge(tabs...)
	var out []ast.CharRange
	rangetable.Visit(merged, func(r rune) {
		if n := len(out); n > 0 && out[n-1].Hi == r-1 {
			out[n-1].Hi = r
			return
		}
		out = append(out, ast.CharRange{Lo: r, Hi: r})
	})
	return out
}

func builtinRanges(name string) ([]ast.CharRange, bool) {
	r, ok := builtins[name]
	return r, ok
}

// sortedBuiltinNames is used by tooling (e.g. a future `loomc` diagnostics
// dump) that wants a deterministic listing of what std.* resolves to.
func sortedBuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for k := range builtins {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
