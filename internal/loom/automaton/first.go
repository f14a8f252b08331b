package automaton

import (
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// FirstSets is the fixpoint result of computing FIRST(X) for every term X
// (spec.md §4.2's "FIRST-set fixpoint computation"): terminals map to
// themselves, nonterminals map to the terminals that can begin a derivation
// from them, and Nullable records which nonterminals can derive ε.
type FirstSets struct {
	sets     map[grammar.TermID]util.IntSet
	Nullable map[grammar.TermID]bool
}

// Of returns the FIRST set of a single term.
func (f *FirstSets) Of(t grammar.TermID) util.IntSet {
	if s, ok := f.sets[t]; ok {
		return s
	}
	return util.NewIntSet()
}

// Compute builds the FIRST sets and nullability for every term in the table,
// from the rule list, by fixpoint iteration (spec.md §4.2).
func Compute(terms *grammar.Table, rules []grammar.Rule) *FirstSets {
	f := &FirstSets{sets: map[grammar.TermID]util.IntSet{}, Nullable: map[grammar.TermID]bool{}}

	for _, term := range terms.All() {
		if term.Has(grammar.FlagTerminal) {
			s := util.NewIntSet()
			s.Add(int(term.ID))
			f.sets[term.ID] = s
		} else {
			f.sets[term.ID] = util.NewIntSet()
		}
	}

	for {
		changed := false
		for _, r := range rules {
			if len(r.Parts) == 0 {
				if !f.Nullable[r.LHS] {
					f.Nullable[r.LHS] = true
					changed = true
				}
				continue
			}
			allNullableSoFar := true
			for _, p := range r.Parts {
				before := f.sets[r.LHS].Len()
				f.sets[r.LHS].AddAll(f.sets[p])
				if f.sets[r.LHS].Len() != before {
					changed = true
				}
				if !f.Nullable[p] {
					allNullableSoFar = false
					break
				}
			}
			if allNullableSoFar && !f.Nullable[r.LHS] {
				f.Nullable[r.LHS] = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return f
}

// OfSequence computes FIRST(parts[from:]) unioned with trailing when every
// term from `from` onward is nullable (the standard "FIRST(βa)" used when
// closing an LR(1) item's lookahead set, spec.md §4.2).
func (f *FirstSets) OfSequence(parts []grammar.TermID, from int, trailing util.IntSet) util.IntSet {
	out := util.NewIntSet()
	allNullable := true
	for i := from; i < len(parts); i++ {
		out.AddAll(f.Of(parts[i]))
		if !f.Nullable[parts[i]] {
			allNullable = false
			break
		}
	}
	if allNullable {
		out.AddAll(trailing)
	}
	return out
}
