package tokengroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/lalr"
	"github.com/dekarrin/loom/internal/loom/normalize"
)

func buildLALR(t *testing.T, file, src string) *lalr.Automaton {
	t.Helper()
	g, err := ast.Parse(file, src)
	require.NoError(t, err)
	res, err := normalize.Build(g, nil)
	require.NoError(t, err)
	can, err := automaton.Build(res.Terms, res.Rules, nil)
	require.NoError(t, err)
	l, err := lalr.Collapse(can, nil)
	require.NoError(t, err)
	return l
}

func Test_Build_single_group_for_simple_grammar(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" }
`
	l := buildLALR(t, "hello.loom", src)
	res, err := Build(l, nil, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Groups), MaxGroups)
	assert.Len(t, res.StateGroup, len(l.States))
}
