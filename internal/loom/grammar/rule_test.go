package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Rule_AggregatePrecedence(t *testing.T) {
	r := NewRule(0, 0, []TermID{1, 2, 3})
	r.Conflicts[1] = Conflict{Precedence: Precedence{Group: "p", Level: 2, Assoc: AssocLeft}}
	r.Conflicts[2] = Conflict{Precedence: Precedence{Group: "p", Level: 5, Assoc: AssocLeft}}

	agg := r.AggregatePrecedence()
	assert.Equal(t, 5, agg.Level)
	assert.Equal(t, "p", agg.Group)
}

func Test_Rule_AggregatePrecedence_none(t *testing.T) {
	r := NewRule(0, 0, []TermID{1, 2})
	agg := r.AggregatePrecedence()
	assert.True(t, agg.Zero())
}

func Test_Rule_Equal(t *testing.T) {
	a := NewRule(0, 1, []TermID{2, 3})
	b := NewRule(1, 1, []TermID{2, 3})
	c := NewRule(2, 1, []TermID{2, 4})

	assert.True(t, a.Equal(b), "rule identity should not affect equality")
	assert.False(t, a.Equal(c))
}
