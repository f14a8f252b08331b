// Package lalr collapses the canonical LR(1) automaton built by package
// automaton into an LALR-like one that keeps only the lookahead
// distinctions the grammar actually needs (spec.md §4.3).
package lalr

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// Automaton is the collapsed automaton: one state per surviving partition of
// the canonical LR(1) states, with the same Action/Goto table shape as
// automaton.Automaton so the rest of the pipeline (tokengroup, pack) can
// treat either as interchangeable.
type Automaton struct {
	Terms  *grammar.Table
	Rules  []grammar.Rule

	// States[p] is the merged item set of partition p, for diagnostics and
	// tooling; the parser tables only need Actions/Gotos.
	States []*automaton.State

	Actions []map[grammar.TermID]automaton.Action
	Gotos   []map[grammar.TermID]int

	Conflicts []automaton.Conflict

	// SourceStates[p] lists the canonical-automaton state ids folded into
	// partition p, in ascending order.
	SourceStates [][]int
}

type pair struct{ a, b int }

func mkPair(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// Collapse runs the partition/merge/restart loop of spec.md §4.3 to
// fixpoint: group canonical states by item core, attempt to union each
// group's action table, and whenever union produces a conflict absent from
// every contributing state, record every pair in that group as
// incompatible and restart. Each restart strictly refines the partition
// (spec.md §4.3, "Termination"), so in the worst case every state ends up
// in its own singleton partition — the original LR(1) automaton, unchanged.
func Collapse(can *automaton.Automaton, sink diag.Sink) (*Automaton, error) {
	if sink == nil {
		sink = diag.DefaultSink
	}

	incompatible := map[pair]bool{}

	var groups [][]int
	for {
		groups = partition(can, incompatible)

		restart := false
		for _, ids := range groups {
			if len(ids) < 2 {
				continue
			}
			merged := mergeItems(can, ids)
			// probing context: a merge attempt that turns out unresolvable
			// just gets rejected below, never a fatal error.
			_, _, conflicts, _ := automaton.AssignActions(can.Terms, can.Rules, merged, false)
			if hasNewConflict(can, ids, conflicts) {
				markIncompatible(incompatible, ids)
				restart = true
			}
		}
		if !restart {
			break
		}
	}

	out := &Automaton{
		Terms:        can.Terms,
		Rules:        can.Rules,
		States:       make([]*automaton.State, len(groups)),
		Actions:      make([]map[grammar.TermID]automaton.Action, len(groups)),
		Gotos:        make([]map[grammar.TermID]int, len(groups)),
		SourceStates: make([][]int, len(groups)),
	}

	oldToNew := map[int]int{}
	for p, ids := range groups {
		for _, id := range ids {
			oldToNew[id] = p
		}
	}

	for p, ids := range groups {
		merged := mergeItems(can, ids)
		actions, gotos, conflicts, _ := automaton.AssignActions(can.Terms, can.Rules, merged, false)

		remapped := map[grammar.TermID]automaton.Action{}
		for t, act := range actions {
			if act.Kind == automaton.ActionShift {
				act.Target = oldToNew[act.Target]
			}
			remapped[t] = act
		}
		remappedGotos := map[grammar.TermID]int{}
		for t, target := range gotos {
			remappedGotos[t] = oldToNew[target]
		}

		merged.ID = p
		out.States[p] = merged
		out.Actions[p] = remapped
		out.Gotos[p] = remappedGotos
		out.SourceStates[p] = append([]int{}, ids...)
		out.Conflicts = append(out.Conflicts, conflicts...)
	}

	for _, c := range out.Conflicts {
		if c.Silenced {
			continue
		}
		sink(diag.Warning{Stage: diag.StageAutomaton, Message: "collapsed " + c.Kind + " conflict on " + can.Terms.Get(c.Term).Name})
	}

	return out, nil
}

// coreSignature builds the same core-only signature automaton.signature
// would produce with every lookahead stripped, so two canonical states with
// identical (rule, dot) sets but different lookaheads land in the same
// bucket (spec.md §4.3, "item set modulo lookahead/precStack").
func coreSignature(st *automaton.State) string {
	cores := make([]automaton.ItemCore, 0, len(st.Items))
	for c := range st.Items {
		cores = append(cores, c)
	}
	sort.Slice(cores, func(i, j int) bool {
		if cores[i].Rule != cores[j].Rule {
			return cores[i].Rule < cores[j].Rule
		}
		return cores[i].Dot < cores[j].Dot
	})
	out := make([]byte, 0, 32)
	for _, c := range cores {
		out = appendDecimal(out, int(c.Rule))
		out = append(out, ':')
		out = appendDecimal(out, c.Dot)
		out = append(out, ';')
	}
	return string(out)
}

func appendDecimal(b []byte, v int) []byte {
	if v == 0 {
		return append(b, '0')
	}
	start := len(b)
	for v > 0 {
		b = append(b, byte('0'+v%10))
		v /= 10
	}
	for i, j := start, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}

// partition buckets canonical states by core signature, then greedily
// splits each bucket so that no two states marked incompatible land in the
// same sub-partition. Processing states in ascending id order within a
// bucket keeps the result deterministic.
func partition(can *automaton.Automaton, incompatible map[pair]bool) [][]int {
	buckets := map[string][]int{}
	var keys []string
	for _, st := range can.States {
		sig := coreSignature(st)
		if _, ok := buckets[sig]; !ok {
			keys = append(keys, sig)
		}
		buckets[sig] = append(buckets[sig], st.ID)
	}
	sort.Strings(keys)

	var groups [][]int
	for _, sig := range keys {
		ids := buckets[sig]
		sort.Ints(ids)

		var subgroups [][]int
		for _, id := range ids {
			placed := false
			for gi, sg := range subgroups {
				conflict := false
				for _, other := range sg {
					if incompatible[mkPair(id, other)] {
						conflict = true
						break
					}
				}
				if !conflict {
					subgroups[gi] = append(sg, id)
					placed = true
					break
				}
			}
			if !placed {
				subgroups = append(subgroups, []int{id})
			}
		}
		groups = append(groups, subgroups...)
	}
	return groups
}

func markIncompatible(incompatible map[pair]bool, ids []int) {
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			incompatible[mkPair(ids[i], ids[j])] = true
		}
	}
}

// mergeItems unions the item sets of the given canonical states (by core,
// unioning lookaheads) into a single synthetic state, and unions their GOTO
// edges under original state ids — Collapse remaps those to partition ids
// once every partition is known.
func mergeItems(can *automaton.Automaton, ids []int) *automaton.State {
	items := map[automaton.ItemCore]*automaton.ItemData{}
	gotoEdges := map[grammar.TermID]int{}

	for _, id := range ids {
		st := can.States[id]
		for core, data := range st.Items {
			existing, ok := items[core]
			if !ok {
				existing = &automaton.ItemData{Lookaheads: util.NewIntSet(), PrecStack: data.PrecStack}
				items[core] = existing
			}
			existing.Lookaheads.AddAll(data.Lookaheads)
		}
		for x, target := range st.Goto {
			gotoEdges[x] = target
		}
	}

	return &automaton.State{Items: items, Goto: gotoEdges}
}

// hasNewConflict reports whether conflicts contains an action-table
// collision (a term where a merged state's reduce candidates and/or
// competing shift disagree) that none of the individual source states
// exhibited on its own (spec.md §4.3, "Merge semantics"). A source state
// contributes a baseline (term, kind) pair whenever it already has more
// than one reduce candidate on that term, or a reduce candidate alongside a
// shift.
func hasNewConflict(can *automaton.Automaton, ids []int, conflicts []automaton.Conflict) bool {
	baseline := map[pair2]bool{}
	for _, id := range ids {
		st := can.States[id]
		_, _, srcConflicts, _ := automaton.AssignActions(can.Terms, can.Rules, st, false)
		for _, c := range srcConflicts {
			baseline[pair2{int(c.Term), c.Kind}] = true
		}
	}
	for _, c := range conflicts {
		if !baseline[pair2{int(c.Term), c.Kind}] {
			return true
		}
	}
	return false
}

type pair2 struct {
	term int
	kind string
}
