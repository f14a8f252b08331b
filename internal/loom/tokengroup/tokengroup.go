// Package tokengroup partitions LR states into token groups so that
// different parts of the same grammar can use different tokenizer
// vocabularies without one global DFA accepting terms that never coexist
// in any single parser context (spec.md §4.5).
package tokengroup

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/loom/lalr"
	"github.com/dekarrin/loom/internal/util"
)

// MaxGroups is the hard cap on distinct token groups a build may produce
// (spec.md §4.5: "Exceeding 16 groups is fatal").
const MaxGroups = 16

// SkipKind classifies how a state's active skip rule is realized in the
// packed tables (spec.md §4.5, "Skip interaction").
type SkipKind int

const (
	// SkipNone means the state has no active skip rule.
	SkipNone SkipKind = iota
	// SkipStay is a "skip once, then revert" rule inlined into the state's
	// own action list with a StayFlag marker rather than a separate state.
	SkipStay
	// SkipStateful injects the skip rule's own states into the table.
	SkipStateful
)

// Group is one token group: a set of terminals guaranteed conflict-free
// against each other, per the DFA-level conflict graph lex.Result reports.
type Group struct {
	ID    int
	Terms util.KeySet[grammar.TermID]
}

// Result is the partitioner's output: one group assignment and skip
// classification per LALR state.
type Result struct {
	Groups     []*Group
	StateGroup []int
	StateSkip  []SkipKind
}

// conflictSource supplies the term-conflict graph a tokenizer build
// produced (spec.md §4.5, "the conflict set"); package lex's Result
// satisfies it via Incompatible.
type conflictSource interface {
	Incompatible(t grammar.TermID) []grammar.TermID
}

// Build assigns every state of a in ascending id order to the first
// existing group whose membership has no incompatibility with any term the
// state needs, opening a new group when none fits (spec.md §4.5,
// "Algorithm"). Two terms the same state needs that directly conflict with
// each other is itself a grammar defect — no group could ever serve that
// state — and is reported as a fatal error rather than silently dropped.
//
// maxGroups caps the number of groups the partitioning may produce before
// it's reported as fatal; a value <= 0 falls back to the package default
// MaxGroups, letting a loom.toml project file tighten the budget below the
// hard cap.
func Build(a *lalr.Automaton, conflicts conflictSource, maxGroups int) (*Result, error) {
	if maxGroups <= 0 {
		maxGroups = MaxGroups
	}

	res := &Result{
		StateGroup: make([]int, len(a.States)),
		StateSkip:  make([]SkipKind, len(a.States)),
	}

	for _, st := range a.States {
		needed, skip := neededTerms(a, st)
		res.StateSkip[st.ID] = skip

		for i := range needed {
			for j := i + 1; j < len(needed); j++ {
				if conflicts != nil && isIncompatible(conflicts, needed[i], needed[j]) {
					return nil, diag.New(diag.StageTokenizer,
						"state %d requires both %q and %q simultaneously but they conflict",
						st.ID, a.Terms.Get(needed[i]).Name, a.Terms.Get(needed[j]).Name)
				}
			}
		}

		placed := -1
		for gi, g := range res.Groups {
			if fits(g, needed, conflicts) {
				placed = gi
				break
			}
		}
		if placed == -1 {
			res.Groups = append(res.Groups, &Group{ID: len(res.Groups), Terms: util.NewKeySet[grammar.TermID]()})
			placed = len(res.Groups) - 1
		}
		for _, t := range needed {
			res.Groups[placed].Terms.Add(t)
		}
		res.StateGroup[st.ID] = placed
	}

	if len(res.Groups) > maxGroups {
		return nil, diag.New(diag.StageTokenizer, "token-group partitioning needs %d groups, exceeding the limit of %d", len(res.Groups), maxGroups)
	}
	return res, nil
}

func isIncompatible(c conflictSource, a, b grammar.TermID) bool {
	for _, p := range c.Incompatible(a) {
		if p == b {
			return true
		}
	}
	return false
}

func fits(g *Group, needed []grammar.TermID, conflicts conflictSource) bool {
	if conflicts == nil {
		return true
	}
	for _, t := range needed {
		for _, peer := range conflicts.Incompatible(t) {
			if g.Terms.Has(peer) {
				return false
			}
		}
	}
	return true
}

// neededTerms collects the terminals a state's tokenizer must recognize: the
// shift targets in its action table plus the skip terminal(s) active on any
// item in the state (spec.md §4.5, "collect the set of shift/specialize
// terms ... plus those from the state's skip tokenizer"). Skip rules in
// this implementation are declared as single placeholder terminals (see
// normalize's `$skip`/`$skip$N`) rather than their own nested automaton, so
// every active skip classifies as SkipStay — there is no "genuinely
// stateful" skip sub-automaton for this classification to distinguish yet.
func neededTerms(a *lalr.Automaton, st *automaton.State) ([]grammar.TermID, SkipKind) {
	seen := util.NewKeySet[grammar.TermID]()
	skip := SkipNone

	for t, act := range a.Actions[st.ID] {
		if act.Kind == automaton.ActionShift {
			seen.Add(t)
		}
	}
	for core := range st.Items {
		rule := a.Rules[core.Rule]
		if rule.Skip != grammar.NoTerm {
			seen.Add(rule.Skip)
			skip = SkipStay
		}
	}

	out := seen.Elements()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, skip
}
