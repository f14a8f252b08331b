package lalr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/normalize"
)

func buildCanonical(t *testing.T, file, src string) *automaton.Automaton {
	t.Helper()
	g, err := ast.Parse(file, src)
	require.NoError(t, err)
	res, err := normalize.Build(g, nil)
	require.NoError(t, err)
	a, err := automaton.Build(res.Terms, res.Rules, nil)
	require.NoError(t, err)
	return a
}

func Test_Collapse_arith_has_fewer_or_equal_states(t *testing.T) {
	src := `
@precedence { times @left, plus @left }

@top { Expr }

Expr { Expr "+" Expr !plus | Expr "*" Expr !times | num }
`
	can := buildCanonical(t, "arith.loom", src)
	l, err := Collapse(can, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(l.States), len(can.States))
	assert.NotEmpty(t, l.States)
}

func Test_Collapse_simple_grammar_still_accepts(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" }
`
	can := buildCanonical(t, "hello.loom", src)
	l, err := Collapse(can, nil)
	require.NoError(t, err)

	var sawAccept bool
	for _, actions := range l.Actions {
		for _, act := range actions {
			if act.Kind == automaton.ActionAccept {
				sawAccept = true
			}
		}
	}
	assert.True(t, sawAccept)
}

func Test_Collapse_every_partition_traces_back_to_source_states(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" }
`
	can := buildCanonical(t, "hello.loom", src)
	l, err := Collapse(can, nil)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, ids := range l.SourceStates {
		for _, id := range ids {
			assert.False(t, seen[id], "state %d claimed by more than one partition", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, len(can.States))
}
