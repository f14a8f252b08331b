package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse_arith(t *testing.T) {
	src := `
@precedence { times @left, plus @left }

@top { Expr }

Expr { Expr "+" Expr !plus | Expr "*" Expr !times | num }
`
	g, err := Parse("arith.loom", src)
	require.NoError(t, err)
	require.Len(t, g.Rules, 1)
	assert.Equal(t, "Expr", g.Rules[0].Name)
	assert.Equal(t, KChoice, g.Rules[0].Body.Kind)
	assert.Len(t, g.Precedence, 1)
	assert.Equal(t, "times", g.Precedence[0].Entries[0].Name)
}

func Test_Parse_repeat(t *testing.T) {
	src := `
@top { Top }
Top { item* }
`
	g, err := Parse("repeat.loom", src)
	require.NoError(t, err)
	require.Len(t, g.Rules, 1)
	assert.Equal(t, KRepeat, g.Rules[0].Body.Kind)
	assert.Equal(t, RepeatStar, g.Rules[0].Body.Repeat)
}

func Test_Parse_charset(t *testing.T) {
	src := "@top { Top }\n@tokens {\n  Top { [\\u0000-\\u007f] }\n}\n"
	g, err := Parse("charset.loom", src)
	require.NoError(t, err)
	require.Len(t, g.TokenRules, 1)
	body := g.TokenRules[0].Body
	require.Equal(t, KCharSet, body.Kind)
	assert.False(t, body.Invert)
	require.Len(t, body.Ranges, 1)
	assert.Equal(t, rune(0), body.Ranges[0].Lo)
	assert.Equal(t, rune(0x7f), body.Ranges[0].Hi)
}

func Test_Parse_specialize(t *testing.T) {
	src := `
@top { id }
@tokens {
  id { _ }
  kw { @specialize<id, "if"> }
}
`
	g, err := Parse("spec.loom", src)
	require.NoError(t, err)
	require.Len(t, g.TokenRules, 2)
	assert.Equal(t, KSpecialize, g.TokenRules[1].Body.Kind)
	assert.Equal(t, "id", g.TokenRules[1].Body.BaseToken)
	assert.Equal(t, "if", g.TokenRules[1].Body.Literal)
}

func Test_Parse_missingTop_isError(t *testing.T) {
	_, err := Parse("bad.loom", `Foo { "x" }`)
	assert.Error(t, err)
}
