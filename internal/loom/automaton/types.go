// Package automaton builds the canonical LR(1) state machine from a
// normalized rule list (spec.md §4.2): items, closure, GOTO, and action
// assignment with conflict resolution. The LALR-by-core collapse that
// package lalr performs afterward operates on the canonical automaton this
// package produces.
package automaton

import (
	"fmt"

	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// Item is one LR(1) item: a rule, a dot position within it, a lookahead
// terminal, and the precedence stack accumulated while closing over it
// (spec.md §3's Pos type — "precStack inherited from the precedence attached
// to the position of B in A" as the dot descends into nested closures).
type Item struct {
	Rule      grammar.RuleID
	Dot       int
	Lookahead grammar.TermID
	PrecStack []grammar.Precedence
}

// AtEnd reports whether the dot has reached the end of the rule (a complete
// item, ready to reduce).
func (it Item) AtEnd(rules []grammar.Rule) bool {
	return it.Dot >= len(rules[it.Rule].Parts)
}

// NextSymbol returns the term immediately after the dot, or grammar.NoTerm
// if the item is complete.
func (it Item) NextSymbol(rules []grammar.Rule) grammar.TermID {
	parts := rules[it.Rule].Parts
	if it.Dot >= len(parts) {
		return grammar.NoTerm
	}
	return parts[it.Dot]
}

// ItemCore identifies an item's (rule, dot) pair, ignoring lookahead — the
// key the LALR collapse groups items by.
type ItemCore struct {
	Rule grammar.RuleID
	Dot  int
}

// ItemData is the mutable payload attached to one core within a state: the
// set of lookaheads seen for it, and the precedence stack of the first path
// that reached it (subsequent paths merge their stack in only if it
// differs in a way that matters to conflict resolution, spec.md §4.2).
type ItemData struct {
	Lookaheads util.IntSet
	PrecStack  []grammar.Precedence
}

// State is one canonical LR(1) automaton state: a closed item set plus the
// GOTO edges out of it, indexed by the target term.
type State struct {
	ID    int
	Items map[ItemCore]*ItemData
	Goto  map[grammar.TermID]int
}

func newState(id int) *State {
	return &State{ID: id, Items: map[ItemCore]*ItemData{}, Goto: map[grammar.TermID]int{}}
}

// ActionKind discriminates one parser action.
type ActionKind int

const (
	ActionError ActionKind = iota
	ActionShift
	ActionReduce
	ActionAccept
)

// Action is one parser-table cell: what to do on a given terminal in a given
// state (spec.md §4.2's "Action assignment").
type Action struct {
	Kind   ActionKind
	Target int           // state to shift to, for ActionShift
	Rule   grammar.RuleID // rule to reduce by, for ActionReduce
}

func (a Action) String() string {
	switch a.Kind {
	case ActionShift:
		return fmt.Sprintf("shift %d", a.Target)
	case ActionReduce:
		return fmt.Sprintf("reduce %d", a.Rule)
	case ActionAccept:
		return "accept"
	default:
		return "error"
	}
}

// Conflict records one shift/reduce or reduce/reduce conflict the builder
// resolved, for the build Report (spec.md §6).
type Conflict struct {
	State    int
	Term     grammar.TermID
	Kind     string // "shift/reduce" or "reduce/reduce"
	Resolved Action
	Losers   []Action
	Silenced bool

	// Unresolved is true when no side of the conflict carried a precedence
	// to decide it — spec.md §4.2 step 3's "no group matched" case. In a
	// reporting context this is fatal rather than merely reported.
	Unresolved bool
}

// Automaton is the complete canonical LR(1) state machine.
type Automaton struct {
	Terms  *grammar.Table
	Rules  []grammar.Rule
	States []*State

	// Actions[state][terminal] is the resolved action, and Gotos[state][nonterminal]
	// the state to move to after reducing.
	Actions []map[grammar.TermID]Action
	Gotos   []map[grammar.TermID]int

	Conflicts []Conflict
}
