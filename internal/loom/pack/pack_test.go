package pack

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/lalr"
	"github.com/dekarrin/loom/internal/loom/normalize"
	"github.com/dekarrin/loom/internal/loom/tokengroup"
)

func buildLALR(t *testing.T, file, src string) (*lalr.Automaton, int) {
	t.Helper()
	g, err := ast.Parse(file, src)
	require.NoError(t, err)
	res, err := normalize.Build(g, nil)
	require.NoError(t, err)
	can, err := automaton.Build(res.Terms, res.Rules, nil)
	require.NoError(t, err)
	l, err := lalr.Collapse(can, nil)
	require.NoError(t, err)
	return l, res.Terms.Len()
}

func Test_Build_produces_one_state_record_per_state(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" }
`
	l, numTerms := buildLALR(t, "hello.loom", src)
	groups, err := tokengroup.Build(l, nil)
	require.NoError(t, err)

	tables, err := Build(l, groups, numTerms, nil)
	require.NoError(t, err)
	assert.Len(t, tables.States, len(l.States))
	assert.Len(t, tables.GotoIndex, numTerms)
}

func Test_Build_dedups_identical_action_runs(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" | "goodbye" "world" }
`
	l, numTerms := buildLALR(t, "hello2.loom", src)
	groups, err := tokengroup.Build(l, nil)
	require.NoError(t, err)

	tables, err := Build(l, groups, numTerms, nil)
	require.NoError(t, err)

	offsets := map[uint16]bool{}
	for _, rec := range tables.States {
		offsets[rec.ActionOffset] = true
	}
	assert.LessOrEqual(t, len(offsets), len(tables.States))
	assert.NotEmpty(t, tables.ActionData)
}

func Test_Build_marshal_unmarshal_round_trip(t *testing.T) {
	src := `
@top { Greeting }
Greeting { "hello" "world" }
`
	l, numTerms := buildLALR(t, "hello3.loom", src)
	groups, err := tokengroup.Build(l, nil)
	require.NoError(t, err)

	tables, err := Build(l, groups, numTerms, nil)
	require.NoError(t, err)

	data, err := tables.MarshalBinary()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	var decoded Tables
	require.NoError(t, decoded.UnmarshalBinary(data))
	if diff := cmp.Diff(*tables, decoded); diff != "" {
		t.Errorf("round trip changed Tables (-want +got):\n%s", diff)
	}
}
