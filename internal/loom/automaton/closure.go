package automaton

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// builder holds the fixed inputs shared by every closure/goto call during
// one automaton construction.
type builder struct {
	terms      *grammar.Table
	rules      []grammar.Rule
	rulesByLHS map[grammar.TermID][]grammar.RuleID
	first      *FirstSets
}

func newBuilder(terms *grammar.Table, rules []grammar.Rule) *builder {
	b := &builder{terms: terms, rules: rules, rulesByLHS: map[grammar.TermID][]grammar.RuleID{}}
	for _, r := range rules {
		b.rulesByLHS[r.LHS] = append(b.rulesByLHS[r.LHS], r.ID)
	}
	b.first = Compute(terms, rules)
	return b
}

// closure computes the closure of a seed item set, following spec.md §4.2's
// canonical LR(1) closure rule: for [A -> α·Bβ, a], add [B -> ·γ, b] for
// every production B -> γ and every b in FIRST(βa), for every production of
// B, repeating to a fixpoint. The precedence stack of a newly-added item
// extends its parent's stack with the precedence at the dot position being
// descended into, so conflict resolution can see the full nesting chain.
func (b *builder) closure(seed map[ItemCore]*ItemData) *State {
	st := &State{Items: seed, Goto: map[grammar.TermID]int{}}

	type workItem struct {
		core ItemCore
	}
	var queue []workItem
	for core := range seed {
		queue = append(queue, workItem{core})
	}

	for len(queue) > 0 {
		w := queue[0]
		queue = queue[1:]

		data := st.Items[w.core]
		rule := b.rules[w.core.Rule]
		if w.core.Dot >= len(rule.Parts) {
			continue
		}
		B := rule.Parts[w.core.Dot]
		if b.terms.Get(B).Has(grammar.FlagTerminal) {
			continue
		}

		trailing := data.Lookaheads
		follow := b.first.OfSequence(rule.Parts, w.core.Dot+1, trailing)
		parentPrec := rule.Conflicts[w.core.Dot].Precedence
		childStack := append(append([]grammar.Precedence{}, data.PrecStack...), parentPrec)

		for _, rid := range b.rulesByLHS[B] {
			core := ItemCore{Rule: rid, Dot: 0}
			existing, ok := st.Items[core]
			if !ok {
				existing = &ItemData{Lookaheads: util.NewIntSet(), PrecStack: childStack}
				st.Items[core] = existing
				queue = append(queue, workItem{core})
			}
			before := existing.Lookaheads.Len()
			existing.Lookaheads.AddAll(follow)
			if existing.Lookaheads.Len() != before {
				queue = append(queue, workItem{core})
			}
		}
	}
	return st
}

// gotoState computes GOTO(state, X): advance the dot over X in every item
// where X is next, then close the result (spec.md §4.2).
func (b *builder) gotoState(state *State, X grammar.TermID) *State {
	seed := map[ItemCore]*ItemData{}
	for core, data := range state.Items {
		rule := b.rules[core.Rule]
		if core.Dot >= len(rule.Parts) || rule.Parts[core.Dot] != X {
			continue
		}
		next := ItemCore{Rule: core.Rule, Dot: core.Dot + 1}
		existing, ok := seed[next]
		if !ok {
			existing = &ItemData{Lookaheads: util.NewIntSet(), PrecStack: data.PrecStack}
			seed[next] = existing
		}
		existing.Lookaheads.AddAll(data.Lookaheads)
	}
	if len(seed) == 0 {
		return nil
	}
	return b.closure(seed)
}

// signature builds a canonical string identity for a state's item set (core
// plus lookaheads, ascending) so newly-computed states can be deduplicated
// against already-discovered ones.
func signature(st *State) string {
	type entry struct {
		core ItemCore
		la   []int
	}
	cores := make([]ItemCore, 0, len(st.Items))
	for c := range st.Items {
		cores = append(cores, c)
	}
	sortCores(cores)

	out := make([]byte, 0, 64)
	for _, c := range cores {
		out = appendInt(out, int(c.Rule))
		out = append(out, ':')
		out = appendInt(out, c.Dot)
		out = append(out, '[')
		for _, la := range st.Items[c].Lookaheads.Elements() {
			out = appendInt(out, la)
			out = append(out, ',')
		}
		out = append(out, ']', ';')
	}
	return string(out)
}

// sortCores orders a state's item cores ascending by (rule, dot) so both
// signature() and action assignment visit them deterministically (spec.md
// §5, "states are numbered in exploration order").
func sortCores(cores []ItemCore) {
	sort.Slice(cores, func(i, j int) bool {
		a, b := cores[i], cores[j]
		return a.Rule < b.Rule || (a.Rule == b.Rule && a.Dot < b.Dot)
	})
}

func appendInt(b []byte, v int) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	if v == 0 {
		return append(b, '0')
	}
	start := len(b)
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	// reverse the digits just appended
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}
