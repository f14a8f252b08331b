package loom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Build_arith_grammar_produces_tables(t *testing.T) {
	src := `
@top { Expr }
@precedence { times @left, plus @left }
@tokens {
  num { std.digit+ }
}
Expr {
    Expr "+" Expr !plus
  | Expr "*" Expr !times
  | num
}
`
	res, err := Build("arith.loom", src, nil, 0)
	require.NoError(t, err)
	require.NotNil(t, res.Tables)

	assert.Greater(t, res.Report.States, 0)
	assert.Greater(t, res.Report.Rules, 0)
	assert.GreaterOrEqual(t, res.Report.Terminals, 1)
	assert.LessOrEqual(t, res.Report.TokenGroups, 16)
	assert.NotEmpty(t, res.TermNames)
}

func Test_MustBuild_panics_on_bad_grammar(t *testing.T) {
	assert.Panics(t, func() {
		MustBuild("bad.loom", "not a grammar at all {{{", nil, 0)
	})
}

func Test_Build_reports_silenced_conflicts_separately(t *testing.T) {
	src := `
@top { Stmt }
@precedence { fullIf @right, shortIf @right }
@tokens {
  id { std.asciiLetter+ }
}
Stmt {
    "if" Stmt "then" Stmt !shortIf
  | "if" Stmt "then" Stmt "else" Stmt !fullIf
  | id
}
`
	res, err := Build("dangle.loom", src, nil, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Report.Conflicts, 1)
	assert.Equal(t, res.Report.Conflicts, res.Report.SilencedCount)
}

func Test_Build_fails_on_unresolved_shift_reduce_conflict(t *testing.T) {
	src := `
@top { Stmt }
@tokens {
  id { std.asciiLetter+ }
}
Stmt {
    "if" Stmt "then" Stmt
  | "if" Stmt "then" Stmt "else" Stmt
  | id
}
`
	_, err := Build("dangle.loom", src, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shift/reduce conflict")
}
