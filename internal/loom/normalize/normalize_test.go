package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/grammar"
)

func mustParse(t *testing.T, file, src string) *ast.Grammar {
	t.Helper()
	g, err := ast.Parse(file, src)
	require.NoError(t, err)
	return g
}

func Test_Build_arith_precedence(t *testing.T) {
	src := `
@precedence { times @left, plus @left }

@top { Expr }

Expr { Expr "+" Expr !plus | Expr "*" Expr !times | num }
`
	g := mustParse(t, "arith.loom", src)
	res, err := Build(g, nil)
	require.NoError(t, err)

	exprID, ok := res.Terms.ByName("Expr")
	require.True(t, ok)

	var plusLevel, timesLevel int
	for _, r := range res.Rules {
		if r.LHS != exprID || len(r.Parts) != 3 {
			continue
		}
		mid := res.Terms.Get(r.Parts[1])
		switch mid.Name {
		case "'+'":
			plusLevel = r.AggregatePrecedence().Level
		case "'*'":
			timesLevel = r.AggregatePrecedence().Level
		}
	}
	assert.Greater(t, timesLevel, plusLevel)
}

func Test_Build_repeat_expands_to_two_rules(t *testing.T) {
	src := `
@top { Top }
Top { item* }
`
	g := mustParse(t, "repeat.loom", src)
	res, err := Build(g, nil)
	require.NoError(t, err)

	// item* introduces a repeat nonterminal with an empty alternative and a
	// boundary alternative; both must survive (they're reachable from the
	// single-reference $top wrapper, so the repeat nonterminal itself is
	// inline-eligible but its two alternatives are not further reducible).
	var repeatRules int
	for _, r := range res.Rules {
		if res.Terms.Get(r.LHS).Has(grammar.FlagRepeated) {
			repeatRules++
		}
	}
	assert.Equal(t, 2, repeatRules)
}

func Test_Build_specialize_dedups_by_literal(t *testing.T) {
	src := `
@top { id }
@tokens {
  id { _ }
  kw { @specialize<id, "if"> }
}
Expr { @specialize<id, "if"> }
`
	g := mustParse(t, "spec.loom", src)
	res, err := Build(g, nil)
	require.NoError(t, err)
	require.Len(t, res.Specializations, 1)
	assert.Equal(t, "id", res.Specializations[0].Base)
	assert.Equal(t, "if", res.Specializations[0].Literal)
	assert.False(t, res.Specializations[0].Extend)
}

func Test_Build_export_forces_inclusion(t *testing.T) {
	src := `
@top { Main }
Main { "a" }
@export
Extra { "b" }
`
	g := mustParse(t, "export.loom", src)
	res, err := Build(g, nil)
	require.NoError(t, err)

	id, ok := res.Terms.ByName("Extra")
	require.True(t, ok)
	assert.True(t, res.Terms.Get(id).Has(grammar.FlagPreserve))

	var found bool
	for _, r := range res.Rules {
		if r.LHS == id {
			found = true
		}
	}
	assert.True(t, found)
}

func Test_Build_parameterized_rule_instantiation(t *testing.T) {
	src := `
@top { list<"a"> }
list<item> { item "," item }
`
	g := mustParse(t, "params.loom", src)
	res, err := Build(g, nil)
	require.NoError(t, err)

	var found bool
	for _, term := range res.Terms.All() {
		if term.Name == `list<a>` {
			found = true
		}
	}
	assert.True(t, found)
}
