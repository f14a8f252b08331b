package automaton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/normalize"
)

func buildFromSource(t *testing.T, file, src string) *Automaton {
	t.Helper()
	g, err := ast.Parse(file, src)
	require.NoError(t, err)
	res, err := normalize.Build(g, nil)
	require.NoError(t, err)
	a, err := Build(res.Terms, res.Rules, nil)
	require.NoError(t, err)
	return a
}

func Test_Build_arith_has_no_unresolved_conflicts(t *testing.T) {
	src := `
@precedence { times @left, plus @left }

@top { Expr }

Expr { Expr "+" Expr !plus | Expr "*" Expr !times | num }
`
	a := buildFromSource(t, "arith.loom", src)
	for _, c := range a.Conflicts {
		assert.True(t, c.Silenced, "unexpected unresolved %s conflict on term %d", c.Kind, c.Term)
	}
	assert.NotEmpty(t, a.States)
}

func Test_Build_simple_grammar_accepts(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" }
`
	a := buildFromSource(t, "hello.loom", src)

	var sawAccept bool
	for _, actions := range a.Actions {
		for _, act := range actions {
			if act.Kind == ActionAccept {
				sawAccept = true
			}
		}
	}
	assert.True(t, sawAccept)
}
