package automaton

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// Build constructs the canonical LR(1) automaton for rules and assigns
// shift/reduce/accept actions with conflict resolution (spec.md §4.2). The
// top rule (rules[0], by normalize's convention: `$top -> topInner`) seeds
// the initial state with lookahead EOF.
func Build(terms *grammar.Table, rules []grammar.Rule, sink diag.Sink) (*Automaton, error) {
	if sink == nil {
		sink = diag.DefaultSink
	}
	b := newBuilder(terms, rules)

	var topRule grammar.RuleID = -1
	for _, r := range rules {
		if r.LHS == terms.Top() {
			topRule = r.ID
			break
		}
	}
	if topRule < 0 {
		return nil, diag.New(diag.StageAutomaton, "no rule for top symbol")
	}

	seed := map[ItemCore]*ItemData{
		{Rule: topRule, Dot: 0}: {Lookaheads: oneOf(terms.EOF())},
	}
	initial := b.closure(seed)
	initial.ID = 0

	states := []*State{initial}
	sigToID := map[string]int{signature(initial): 0}
	queue := []int{0}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		st := states[id]

		var symbols []grammar.TermID
		seen := util.NewKeySet[grammar.TermID]()
		for core := range st.Items {
			x := (Item{Rule: core.Rule, Dot: core.Dot}).NextSymbol(rules)
			if x == grammar.NoTerm || seen.Has(x) {
				continue
			}
			seen.Add(x)
			symbols = append(symbols, x)
		}
		sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

		for _, x := range symbols {
			next := b.gotoState(st, x)
			if next == nil {
				continue
			}
			sig := signature(next)
			targetID, known := sigToID[sig]
			if !known {
				targetID = len(states)
				next.ID = targetID
				sigToID[sig] = targetID
				states = append(states, next)
				queue = append(queue, targetID)
			}
			st.Goto[x] = targetID
		}
	}

	a := &Automaton{
		Terms:   terms,
		Rules:   rules,
		States:  states,
		Actions: make([]map[grammar.TermID]Action, len(states)),
		Gotos:   make([]map[grammar.TermID]int, len(states)),
	}
	for _, st := range states {
		actions, gotos, conflicts, err := AssignActions(terms, rules, st, true)
		if err != nil {
			return nil, err
		}
		a.Actions[st.ID] = actions
		a.Gotos[st.ID] = gotos
		a.Conflicts = append(a.Conflicts, conflicts...)
	}

	for _, c := range a.Conflicts {
		if c.Silenced {
			continue
		}
		sink(diag.Warning{
			Stage:   diag.StageAutomaton,
			Message: conflictMessage(terms, c),
		})
	}

	return a, nil
}

func oneOf(t grammar.TermID) util.IntSet {
	s := util.NewIntSet()
	s.Add(int(t))
	return s
}
