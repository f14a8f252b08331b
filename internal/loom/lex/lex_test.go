package lex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/normalize"
)

func buildResult(t *testing.T, file, src string) *normalize.Result {
	t.Helper()
	g, err := ast.Parse(file, src)
	require.NoError(t, err)
	res, err := normalize.Build(g, nil)
	require.NoError(t, err)
	return res
}

func Test_Build_tokenizes_keyword_over_identifier(t *testing.T) {
	src := `
@top { Program }
@tokens {
  id { std.asciiLetter+ }
}
Program { @specialize<id, "if"> | id }
`
	res := buildResult(t, "kw.loom", src)
	out, err := Build(res, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.DFA.States)

	ifTerm, ok := res.Terms.ByName("id/if")
	require.True(t, ok)

	var sawIf bool
	for _, st := range out.DFA.States {
		for _, acc := range st.Accepts {
			if acc == ifTerm {
				sawIf = true
			}
		}
	}
	assert.True(t, sawIf, "specialized id/if token should survive DFA conflict resolution against id")
}

func Test_Build_digit_charset_accepts(t *testing.T) {
	src := `
@top { Program }
@tokens {
  num { std.digit+ }
}
Program { num }
`
	res := buildResult(t, "num.loom", src)
	out, err := Build(res, nil)
	require.NoError(t, err)

	var sawAccept bool
	for _, st := range out.DFA.States {
		if len(st.Accepts) > 0 {
			sawAccept = true
		}
	}
	assert.True(t, sawAccept)
}

func Test_Build_non_tail_recursion_rejected(t *testing.T) {
	src := `
@top { Program }
@tokens {
  weird { weird "x" }
}
Program { weird }
`
	res := buildResult(t, "badrec.loom", src)
	_, err := Build(res, nil)
	assert.Error(t, err)
}
