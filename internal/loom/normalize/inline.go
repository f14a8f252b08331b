package normalize

import "github.com/dekarrin/loom/internal/loom/grammar"

// Inline repeatedly substitutes an uninteresting nonterminal's alternatives
// directly into its call sites until no more substitutions apply (spec.md
// §4.1: "inline until fixpoint"). A nonterminal is eligible once it has
// exactly one production, or is referenced from exactly one position across
// the whole rule set; tagged, preserved, top, and (to avoid infinite
// unrolling) directly self-recursive nonterminals are never inlined.
func Inline(terms *grammar.Table, rules []grammar.Rule) []grammar.Rule {
	for {
		lhs, ok := findInlineCandidate(terms, rules)
		if !ok {
			return renumber(rules)
		}
		rules = inlineOne(rules, lhs)
	}
}

func findInlineCandidate(terms *grammar.Table, rules []grammar.Rule) (grammar.TermID, bool) {
	byLHS := map[grammar.TermID][]int{}
	refCount := map[grammar.TermID]int{}
	for idx, r := range rules {
		byLHS[r.LHS] = append(byLHS[r.LHS], idx)
		for _, p := range r.Parts {
			refCount[p]++
		}
	}

	top := terms.Top()
	for lhs, idxs := range byLHS {
		term := terms.Get(lhs)
		if term.Has(grammar.FlagTerminal) || term.Has(grammar.FlagPreserve) || term.Tag != "" || lhs == top {
			continue
		}
		if len(idxs) != 1 && refCount[lhs] != 1 {
			continue
		}
		if isSelfRecursive(rules, idxs, lhs) {
			continue
		}
		if refCount[lhs] == 0 {
			continue // unreferenced dead nonterminal; left for a future dead-code sweep
		}
		return lhs, true
	}
	return 0, false
}

func isSelfRecursive(rules []grammar.Rule, idxs []int, lhs grammar.TermID) bool {
	for _, idx := range idxs {
		for _, p := range rules[idx].Parts {
			if p == lhs {
				return true
			}
		}
	}
	return false
}

func inlineOne(rules []grammar.Rule, lhs grammar.TermID) []grammar.Rule {
	var alts []grammar.Rule
	for _, r := range rules {
		if r.LHS == lhs {
			alts = append(alts, r)
		}
	}

	var out []grammar.Rule
	for _, r := range rules {
		if r.LHS == lhs {
			continue
		}
		pos := indexOfTerm(r.Parts, lhs)
		if pos < 0 {
			out = append(out, r)
			continue
		}
		for _, alt := range alts {
			out = append(out, spliceRule(r, pos, alt))
		}
	}
	return out
}

// spliceRule replaces position pos of r's right-hand side with alt's
// right-hand side, merging the conflict entries that sit at the splice
// boundary so precedence/ambiguity/cut annotations on either side survive.
func spliceRule(r grammar.Rule, pos int, alt grammar.Rule) grammar.Rule {
	parts := make([]grammar.TermID, 0, len(r.Parts)-1+len(alt.Parts))
	parts = append(parts, r.Parts[:pos]...)
	parts = append(parts, alt.Parts...)
	parts = append(parts, r.Parts[pos+1:]...)

	conflicts := make([]grammar.Conflict, 0, len(parts)+1)
	conflicts = append(conflicts, r.Conflicts[:pos]...)
	if len(alt.Parts) == 0 {
		conflicts = append(conflicts, mergeConflict(r.Conflicts[pos], r.Conflicts[pos+1]))
	} else {
		conflicts = append(conflicts, mergeConflict(r.Conflicts[pos], alt.Conflicts[0]))
		conflicts = append(conflicts, alt.Conflicts[1:len(alt.Conflicts)-1]...)
		conflicts = append(conflicts, mergeConflict(alt.Conflicts[len(alt.Conflicts)-1], r.Conflicts[pos+1]))
	}
	conflicts = append(conflicts, r.Conflicts[pos+2:]...)

	out := grammar.NewRule(r.ID, r.LHS, parts)
	out.Conflicts = conflicts
	out.Skip = r.Skip
	out.Interesting = r.Interesting
	return out
}

func mergeConflict(a, b grammar.Conflict) grammar.Conflict {
	out := a
	if out.Precedence.Zero() {
		out.Precedence = b.Precedence
	}
	out.AmbiguityGroups = append(append([]string{}, a.AmbiguityGroups...), b.AmbiguityGroups...)
	if out.Cut == "" {
		out.Cut = b.Cut
	}
	return out
}

func indexOfTerm(parts []grammar.TermID, t grammar.TermID) int {
	for i, p := range parts {
		if p == t {
			return i
		}
	}
	return -1
}

func renumber(rules []grammar.Rule) []grammar.Rule {
	for i := range rules {
		rules[i].ID = grammar.RuleID(i)
	}
	return rules
}
