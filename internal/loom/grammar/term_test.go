package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Table_Declare(t *testing.T) {
	tab := NewTable()

	assert.NotEqual(t, tab.EOF(), tab.Error(), "eof and error terms must be distinct")

	num := tab.Declare("num", FlagTerminal)
	num2 := tab.Declare("num", FlagTerminal)
	assert.Equal(t, num, num2, "re-declaring the same terminal name must return the same id")

	expr := tab.Declare("Expr", 0)
	tab.SetTop(expr)

	assert.True(t, tab.Get(expr).Has(FlagTop))
	assert.False(t, tab.Get(num).Has(FlagTop))
	assert.Equal(t, expr, tab.Top())
}

func Test_Table_Declare_mismatchedTerminalness_panics(t *testing.T) {
	tab := NewTable()
	tab.Declare("x", FlagTerminal)

	assert.Panics(t, func() {
		tab.Declare("x", 0)
	})
}

func Test_Table_SetTag(t *testing.T) {
	tab := NewTable()
	id := tab.Declare("variable", 0)
	tab.SetTag(id, "variable.name")

	assert.Equal(t, "variable.name", tab.Get(id).Tag)
}
