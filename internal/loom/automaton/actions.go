package automaton

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
)

// reduceCandidate is one rule eligible to reduce on a given lookahead,
// paired with its aggregate precedence for conflict resolution.
type reduceCandidate struct {
	rule grammar.RuleID
	prec grammar.Precedence
}

// AssignActions computes the shift/reduce/accept actions and nonterminal
// GOTOs for one state, resolving shift/reduce and reduce/reduce conflicts by
// precedence (spec.md §4.2's "Action assignment", steps 1-3): higher
// AggregatePrecedence wins; an equal-level tie defers to associativity
// (left favors reduce, right favors shift). When neither side carries a
// precedence at all, step 3 says the caller's context decides: a reporting
// context (automaton.Build) raises a fatal conflict error immediately,
// while a probing context (lalr's trial merges) just gets the conflict back
// so it can decide whether to keep or reject the merge, with the
// conventional shift-wins/lowest-rule-id default standing in as its
// resolution.
func AssignActions(terms *grammar.Table, rules []grammar.Rule, st *State, reporting bool) (map[grammar.TermID]Action, map[grammar.TermID]int, []Conflict, error) {
	actions := map[grammar.TermID]Action{}
	gotos := map[grammar.TermID]int{}
	var conflicts []Conflict

	for x, target := range st.Goto {
		if terms.Get(x).Has(grammar.FlagTerminal) {
			if x == terms.EOF() {
				continue
			}
			actions[x] = Action{Kind: ActionShift, Target: target}
		} else {
			gotos[x] = target
		}
	}

	shiftPrec := shiftPrecedences(rules, st)
	reduceByTerm := map[grammar.TermID][]reduceCandidate{}

	var cores []ItemCore
	for c := range st.Items {
		cores = append(cores, c)
	}
	sortCores(cores)

	for _, core := range cores {
		rule := rules[core.Rule]
		if core.Dot < len(rule.Parts) {
			continue
		}
		data := st.Items[core]
		for _, la := range data.Lookaheads.Elements() {
			term := grammar.TermID(la)
			if rule.LHS == terms.Top() && term == terms.EOF() {
				actions[term] = Action{Kind: ActionAccept}
				continue
			}
			reduceByTerm[term] = append(reduceByTerm[term], reduceCandidate{rule: core.Rule, prec: rule.AggregatePrecedence()})
		}
	}

	var terminals []grammar.TermID
	for t := range reduceByTerm {
		terminals = append(terminals, t)
	}
	sort.Slice(terminals, func(i, j int) bool { return terminals[i] < terminals[j] })

	for _, term := range terminals {
		cands := reduceByTerm[term]
		sort.Slice(cands, func(i, j int) bool { return cands[i].rule < cands[j].rule })

		winner := cands[0]
		for _, c := range cands[1:] {
			if c.prec.Level > winner.prec.Level {
				winner = c
			}
		}
		if len(cands) > 1 {
			rrConflict := buildReduceReduceConflict(term, cands, winner, rules)
			conflicts = append(conflicts, rrConflict)
			if reporting && rrConflict.Unresolved && !rrConflict.Silenced {
				return nil, nil, nil, unresolvedConflictError(terms, rules, st, term, rrConflict, cands, winner)
			}
		}

		existing, hasShift := actions[term]
		if hasShift && existing.Kind == ActionShift {
			srConflict := buildShiftReduceConflict(term, existing, shiftPrec[term], winner)
			conflicts = append(conflicts, srConflict)
			if reporting && srConflict.Unresolved && !srConflict.Silenced {
				return nil, nil, nil, unresolvedConflictError(terms, rules, st, term, srConflict, cands, winner)
			}
			if !shiftLoses(shiftPrec[term], winner) {
				continue
			}
		}
		actions[term] = Action{Kind: ActionReduce, Rule: winner.rule}
	}

	return actions, gotos, conflicts, nil
}

// unresolvedConflictError builds the fatal diagnostic spec.md §4.2 step 3
// calls for when a reporting context hits a conflict no precedence decided:
// the conflicting item(s) and the lookahead that exposed them.
func unresolvedConflictError(terms *grammar.Table, rules []grammar.Rule, st *State, term grammar.TermID, c Conflict, cands []reduceCandidate, winner reduceCandidate) error {
	item := itemText(terms, rules[winner.rule])
	if c.Kind == "shift/reduce" {
		return diag.New(diag.StageAutomaton,
			"shift/reduce conflict in state %d on %s: %s has no precedence to resolve it against the competing shift",
			st.ID, terms.Get(term).Name, item)
	}
	loser := winner
	for _, cand := range cands {
		if cand.rule != winner.rule {
			loser = cand
			break
		}
	}
	return diag.New(diag.StageAutomaton,
		"reduce/reduce conflict in state %d on %s: %s and %s both apply with no precedence to choose between them",
		st.ID, terms.Get(term).Name, item, itemText(terms, rules[loser.rule]))
}

// itemText renders a rule's completed form ("lhs -> parts ·") for a
// conflict message, the "item's textual form" spec.md §4.2 step 3 asks for.
func itemText(terms *grammar.Table, rule grammar.Rule) string {
	parts := make([]string, 0, len(rule.Parts)+1)
	for _, p := range rule.Parts {
		parts = append(parts, terms.Get(p).Name)
	}
	parts = append(parts, "·")
	return fmt.Sprintf("%s -> %s", terms.Get(rule.LHS).Name, strings.Join(parts, " "))
}

// shiftPrecedences computes, for every terminal the state can shift on, the
// precedence of the production being continued by that shift: a `!name`
// marker qualifies its whole alternative (spec.md §3), so the precedence
// relevant to "should we keep shifting into this alternative" is that
// alternative's own AggregatePrecedence, the same quantity a completed item
// of the same rule would reduce with. Several items in the same state can
// shift on the same terminal; the highest-level one wins, matching
// AggregatePrecedence's own tie rule for reduce candidates.
func shiftPrecedences(rules []grammar.Rule, st *State) map[grammar.TermID]grammar.Precedence {
	out := map[grammar.TermID]grammar.Precedence{}
	for core := range st.Items {
		rule := rules[core.Rule]
		if core.Dot >= len(rule.Parts) {
			continue
		}
		x := rule.Parts[core.Dot]
		p := rule.AggregatePrecedence()
		if p.Zero() {
			continue
		}
		if best, ok := out[x]; !ok || p.Level > best.Level {
			out[x] = p
		}
	}
	return out
}

// shiftLoses reports whether the reduce candidate's precedence should win
// over a competing shift carrying shift's precedence. Higher level wins
// outright; an equal-level tie defers to the reduce side's associativity
// (left favors reduce, right favors shift); when neither side carries a
// marker, the conventional shift-wins default applies.
func shiftLoses(shift grammar.Precedence, reduce reduceCandidate) bool {
	switch {
	case shift.Zero() && reduce.prec.Zero():
		return false
	case shift.Zero():
		return true
	case reduce.prec.Zero():
		return false
	case shift.Level > reduce.prec.Level:
		return false
	case reduce.prec.Level > shift.Level:
		return true
	default:
		return reduce.prec.Assoc == grammar.AssocLeft
	}
}

func buildShiftReduceConflict(term grammar.TermID, shift Action, shiftPrec grammar.Precedence, reduce reduceCandidate) Conflict {
	resolved := shift
	if shiftLoses(shiftPrec, reduce) {
		resolved = Action{Kind: ActionReduce, Rule: reduce.rule}
	}
	return Conflict{
		Term:       term,
		Kind:       "shift/reduce",
		Resolved:   resolved,
		Losers:     []Action{shift, {Kind: ActionReduce, Rule: reduce.rule}},
		Silenced:   reduce.prec.Silenced() || !shiftPrec.Zero() || !reduce.prec.Zero(),
		Unresolved: shiftPrec.Zero() && reduce.prec.Zero(),
	}
}

func buildReduceReduceConflict(term grammar.TermID, cands []reduceCandidate, winner reduceCandidate, rules []grammar.Rule) Conflict {
	silenced := false
	unresolved := true
	for _, c := range cands {
		if c.prec.Silenced() {
			silenced = true
		}
		if !c.prec.Zero() {
			unresolved = false
		}
	}
	if shareAmbiguityGroup(rules, cands) {
		silenced = true
	}
	var losers []Action
	for _, c := range cands {
		if c.rule != winner.rule {
			losers = append(losers, Action{Kind: ActionReduce, Rule: c.rule})
		}
	}
	return Conflict{
		Term:       term,
		Kind:       "reduce/reduce",
		Resolved:   Action{Kind: ActionReduce, Rule: winner.rule},
		Losers:     losers,
		Silenced:   silenced,
		Unresolved: unresolved,
	}
}

func shareAmbiguityGroup(rules []grammar.Rule, cands []reduceCandidate) bool {
	groups := map[string]int{}
	for _, c := range cands {
		for _, conflict := range rules[c.rule].Conflicts {
			for _, g := range conflict.AmbiguityGroups {
				groups[g]++
			}
		}
	}
	for _, n := range groups {
		if n > 1 {
			return true
		}
	}
	return false
}

func conflictMessage(terms *grammar.Table, c Conflict) string {
	return fmt.Sprintf("%s conflict on %s: resolved to %s", c.Kind, terms.Get(c.Term).Name, c.Resolved)
}
