package lex

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// DFAStateID indexes into a DFA's flat state arena.
type DFAStateID int

// DFAState is a deterministic tokenizer state: disjoint edges partitioning
// the code-unit space, plus the terms it accepts ordered by descending
// token precedence (spec.md §4.4, "DFA state").
type DFAState struct {
	ID      DFAStateID
	Edges   []DFAEdge
	Accepts []grammar.TermID
}

// DFAEdge is one deterministic transition: exactly one target per disjoint
// range, unlike an NFA edge which may overlap with others out of the same
// state.
type DFAEdge struct {
	Range CharRange
	To    DFAStateID
}

// DFA is the determinized tokenizer automaton for one token-group context.
type DFA struct {
	States []*DFAState
	Start  DFAStateID
}

// nfaSet is a sorted, deduplicated set of NFA state ids — a DFA state's
// identity during subset construction.
type nfaSet []NFAStateID

func (s nfaSet) key() string {
	out := make([]byte, 0, len(s)*4)
	for _, id := range s {
		out = appendDecimal(out, int(id))
		out = append(out, ',')
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

// epsilonClosure returns the set of NFA states reachable from seed purely
// via ε-edges, seed included.
func epsilonClosure(n *NFA, seed []NFAStateID) nfaSet {
	seen := map[NFAStateID]bool{}
	var queue []NFAStateID
	for _, s := range seed {
		if !seen[s] {
			seen[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range n.States[id].Edges {
			if e.IsEpsilon && !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	out := make(nfaSet, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// boundaries collects every distinct range endpoint (lo, hi+1) among the
// non-epsilon edges leaving the states in set, so the transitions out of a
// DFA state can be split into maximal disjoint intervals.
func boundaries(n *NFA, set nfaSet) []rune {
	points := map[rune]bool{}
	for _, id := range set {
		for _, e := range n.States[id].Edges {
			if e.IsEpsilon {
				continue
			}
			points[e.Range.Lo] = true
			if e.Range.Hi < 0x10FFFF {
				points[e.Range.Hi+1] = true
			}
		}
	}
	out := make([]rune, 0, len(points))
	for p := range points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Determinize runs the standard subset construction over n (spec.md §4.4,
// "Determinization"): the accepting set of a DFA state is the union of
// accepted terms among its NFA members, each interval between two adjacent
// range boundaries in the reachable edge set maps deterministically to the
// ε-closure of every NFA state it can step to.
func Determinize(n *NFA) *DFA {
	startSet := epsilonClosure(n, []NFAStateID{n.Start})
	dfa := &DFA{}
	idOf := map[string]DFAStateID{}
	var sets []nfaSet

	newDFAState := func(set nfaSet) DFAStateID {
		id := DFAStateID(len(dfa.States))
		st := &DFAState{ID: id, Accepts: acceptsOf(n, set)}
		dfa.States = append(dfa.States, st)
		sets = append(sets, set)
		idOf[set.key()] = id
		return id
	}

	startID := newDFAState(startSet)
	dfa.Start = startID
	queue := []DFAStateID{startID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		set := sets[id]

		pts := boundaries(n, set)
		for i := 0; i < len(pts); i++ {
			lo := pts[i]
			var hi rune
			if i+1 < len(pts) {
				hi = pts[i+1] - 1
			} else {
				hi = 0x10FFFF
			}
			if lo > hi {
				continue
			}
			var targets []NFAStateID
			for _, sid := range set {
				for _, e := range n.States[sid].Edges {
					if e.IsEpsilon {
						continue
					}
					if e.Range.Lo <= lo && hi <= e.Range.Hi {
						targets = append(targets, e.To)
					}
				}
			}
			if len(targets) == 0 {
				continue
			}
			closure := epsilonClosure(n, targets)
			target, ok := idOf[closure.key()]
			if !ok {
				target = newDFAState(closure)
				queue = append(queue, target)
			}
			dfa.States[id].Edges = append(dfa.States[id].Edges, DFAEdge{Range: CharRange{Lo: lo, Hi: hi}, To: target})
		}
	}
	return dfa
}

func acceptsOf(n *NFA, set nfaSet) []grammar.TermID {
	seen := util.NewKeySet[grammar.TermID]()
	var out []grammar.TermID
	for _, id := range set {
		for _, t := range n.States[id].Accepts {
			if !seen.Has(t) {
				seen.Add(t)
				out = append(out, t)
			}
		}
	}
	return out
}
