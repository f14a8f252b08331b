// Package lex builds the NFA/DFA tokenizer from a grammar's `@tokens` rules
// (spec.md §4.4): Thompson-style NFA construction per token rule, astral
// character-range lowering to UTF-16 surrogate pairs, subset-construction
// determinization, and precedence-DAG conflict resolution between tokens
// that can both accept in the same DFA state.
package lex

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/util"
)

// NFAStateID indexes into an NFA's flat state arena.
type NFAStateID int

// CharRange is an inclusive [Lo, Hi] UTF-16 code unit range labeling one NFA
// edge (spec.md §4.4: "character-range edges").
type CharRange struct {
	Lo, Hi rune
}

// Edge is one transition out of an NFA state: either an ε-edge (Range is
// zero-valued, IsEpsilon true) or a labeled character-range edge.
type Edge struct {
	IsEpsilon bool
	Range     CharRange
	To        NFAStateID
}

// NFAState is one node of the Thompson construction: outgoing edges plus the
// terms it accepts if reached (spec.md §3: "accepting-term list").
type NFAState struct {
	ID      NFAStateID
	Edges   []Edge
	Accepts []grammar.TermID
}

// NFA is the whole token-matching automaton for one tokenizer context: every
// token rule's fragment shares this single state arena so cross-rule tail
// calls (see recursion.go) can jump between fragments without copying.
type NFA struct {
	States []*NFAState
	Start  NFAStateID
}

func (n *NFA) newState() NFAStateID {
	id := NFAStateID(len(n.States))
	n.States = append(n.States, &NFAState{ID: id})
	return id
}

func (n *NFA) addEpsilon(from, to NFAStateID) {
	n.States[from].Edges = append(n.States[from].Edges, Edge{IsEpsilon: true, To: to})
}

func (n *NFA) addRange(from, to NFAStateID, lo, hi rune) {
	n.States[from].Edges = append(n.States[from].Edges, Edge{Range: CharRange{Lo: lo, Hi: hi}, To: to})
}

// fragment is a sub-automaton under construction: one entry state and one
// exit (accepting) state, following the textbook Thompson-construction
// convention of a single in/out pair per fragment.
type fragment struct {
	start, end NFAStateID
}

// fragBuilder holds the per-token-rule-set state shared across Thompson
// construction calls: the NFA being built, built-in character classes, and
// the tail-call memoization table described in spec.md §4.4's "Recursion"
// paragraph.
type fragBuilder struct {
	nfa      *NFA
	ruleDefs map[string]ast.TokenRule
	building util.StringSet
	tailMemo map[string]fragment
}

func newFragBuilder(nfa *NFA, rules []ast.TokenRule) *fragBuilder {
	b := &fragBuilder{
		nfa:      nfa,
		ruleDefs: map[string]ast.TokenRule{},
		building: util.NewStringSet(),
		tailMemo: map[string]fragment{},
	}
	for _, r := range rules {
		b.ruleDefs[r.Name] = r
	}
	return b
}

// build compiles e into a fragment using Thompson's rules for each
// expression kind (spec.md §4.4). term is the terminal this token rule
// produces, attached to the fragment's exit state only at the top call.
func (b *fragBuilder) build(e ast.Expr, term grammar.TermID, tail bool) (fragment, error) {
	switch e.Kind {
	case ast.KLiteral:
		return b.buildLiteral(e.Literal), nil
	case ast.KAnyChar:
		start, end := b.nfa.newState(), b.nfa.newState()
		b.nfa.addRange(start, end, 0, 0x10FFFF)
		return fragment{start, end}, nil
	case ast.KCharSet:
		return b.buildCharSet(e), nil
	case ast.KSeq:
		return b.buildSeq(e, tail)
	case ast.KChoice:
		return b.buildChoice(e, tail)
	case ast.KRepeat:
		return b.buildRepeat(e)
	case ast.KTagged:
		return b.build(*e.Sub, term, tail)
	case ast.KRef:
		return b.buildRef(e, tail)
	default:
		start, end := b.nfa.newState(), b.nfa.newState()
		b.nfa.addEpsilon(start, end)
		return fragment{start, end}, nil
	}
}

func (b *fragBuilder) buildLiteral(lit string) fragment {
	start := b.nfa.newState()
	cur := start
	for _, r := range lit {
		next := b.nfa.newState()
		b.nfa.addRange(cur, next, r, r)
		cur = next
	}
	return fragment{start, cur}
}

// buildCharSet lowers each declared range to NFA edges, splitting any range
// that crosses the BMP boundary (0xFFFF) into a surrogate-pair sub-automaton
// (spec.md §4.4: "Astral ... character ranges are lowered to UTF-16
// surrogate-pair transitions via auxiliary intermediate states").
func (b *fragBuilder) buildCharSet(e ast.Expr) fragment {
	ranges := e.Ranges
	if e.Invert {
		ranges = invert(ranges)
	}
	start, end := b.nfa.newState(), b.nfa.newState()
	for _, r := range ranges {
		b.addLoweredRange(start, end, r.Lo, r.Hi)
	}
	return fragment{start, end}
}

const bmpMax = 0xFFFF

func (b *fragBuilder) addLoweredRange(from, to NFAStateID, lo, hi rune) {
	if hi <= bmpMax {
		b.nfa.addRange(from, to, lo, hi)
		return
	}
	if lo <= bmpMax {
		b.nfa.addRange(from, to, lo, bmpMax)
		lo = bmpMax + 1
	}
	// astral remainder: emit one surrogate-pair fragment per encoded
	// high-surrogate value, since each high surrogate pairs with a
	// different low-surrogate span depending on which 10-bit low half of
	// the astral codepoint is in range.
	for lo <= hi {
		highLo, lowLo, lowHi := surrogatePair(lo)
		rowEnd := rune(0x10000) + (rune(highLo-0xD800)+1)*0x400 - 1
		segHi := hi
		if rowEnd < segHi {
			segHi = rowEnd
		}
		_, _, segLowHi := surrogatePair(segHi)
		mid := b.nfa.newState()
		b.nfa.addRange(from, mid, highLo, highLo)
		b.nfa.addRange(mid, to, lowLo, segLowHi)
		lo = segHi + 1
	}
}

// surrogatePair returns the UTF-16 surrogate pair encoding cp, and the low
// end of the low-surrogate range for cp's high-surrogate row.
func surrogatePair(cp rune) (high, lowLo, low rune) {
	v := cp - 0x10000
	high = 0xD800 + (v >> 10)
	low = 0xDC00 + (v & 0x3FF)
	return high, 0xDC00, low
}

func invert(ranges []ast.CharRange) []ast.CharRange {
	sorted := append([]ast.CharRange{}, ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })
	var out []ast.CharRange
	next := rune(0)
	for _, r := range sorted {
		if r.Lo > next {
			out = append(out, ast.CharRange{Lo: next, Hi: r.Lo - 1})
		}
		if r.Hi+1 > next {
			next = r.Hi + 1
		}
	}
	if next <= 0x10FFFF {
		out = append(out, ast.CharRange{Lo: next, Hi: 0x10FFFF})
	}
	return out
}

func (b *fragBuilder) buildSeq(e ast.Expr, tail bool) (fragment, error) {
	if len(e.Items) == 0 {
		start, end := b.nfa.newState(), b.nfa.newState()
		b.nfa.addEpsilon(start, end)
		return fragment{start, end}, nil
	}
	start := b.nfa.newState()
	cur := start
	for i, item := range e.Items {
		itemTail := tail && i == len(e.Items)-1
		frag, err := b.build(item, grammar.NoTerm, itemTail)
		if err != nil {
			return fragment{}, err
		}
		b.nfa.addEpsilon(cur, frag.start)
		cur = frag.end
	}
	return fragment{start, cur}, nil
}

func (b *fragBuilder) buildChoice(e ast.Expr, tail bool) (fragment, error) {
	start, end := b.nfa.newState(), b.nfa.newState()
	for _, item := range e.Items {
		frag, err := b.build(item, grammar.NoTerm, tail)
		if err != nil {
			return fragment{}, err
		}
		b.nfa.addEpsilon(start, frag.start)
		b.nfa.addEpsilon(frag.end, end)
	}
	return fragment{start, end}, nil
}

func (b *fragBuilder) buildRepeat(e ast.Expr) (fragment, error) {
	inner, err := b.build(*e.Sub, grammar.NoTerm, false)
	if err != nil {
		return fragment{}, err
	}
	start, end := b.nfa.newState(), b.nfa.newState()
	switch e.Repeat {
	case ast.RepeatStar:
		b.nfa.addEpsilon(start, inner.start)
		b.nfa.addEpsilon(inner.end, inner.start)
		b.nfa.addEpsilon(inner.end, end)
		b.nfa.addEpsilon(start, end)
	case ast.RepeatPlus:
		b.nfa.addEpsilon(start, inner.start)
		b.nfa.addEpsilon(inner.end, inner.start)
		b.nfa.addEpsilon(inner.end, end)
	case ast.RepeatOpt:
		b.nfa.addEpsilon(start, inner.start)
		b.nfa.addEpsilon(inner.end, end)
		b.nfa.addEpsilon(start, end)
	}
	return fragment{start, end}, nil
}

// buildRef compiles a reference to another token rule. Only a tail-position
// reference is allowed to recurse (spec.md §4.4: "Token rules may recurse
// but only in tail position"); a tail call reuses a memoized sub-automaton
// keyed by the rule name rather than re-expanding the body, which is what
// makes runaway left/mid recursion impossible to express at all (the
// non-tail case is simply never inlined and is rejected by the caller
// before NFA construction runs, see recursion.go).
func (b *fragBuilder) buildRef(e ast.Expr, tail bool) (fragment, error) {
	if e.Namespace == "std" {
		ranges, ok := builtinRanges("std." + e.Name)
		if !ok {
			return fragment{}, diag.New(diag.StageTokenizer, "unknown built-in character class %q", "std."+e.Name)
		}
		return b.buildCharSet(ast.Expr{Kind: ast.KCharSet, Ranges: ranges}), nil
	}
	def, ok := b.ruleDefs[e.Name]
	if !ok {
		start, end := b.nfa.newState(), b.nfa.newState()
		b.nfa.addEpsilon(start, end)
		return fragment{start, end}, nil
	}
	if tail {
		if frag, ok := b.tailMemo[e.Name]; ok {
			return frag, nil
		}
		frag := fragment{b.nfa.newState(), b.nfa.newState()}
		b.tailMemo[e.Name] = frag
		inner, err := b.build(def.Body, grammar.NoTerm, true)
		if err != nil {
			return fragment{}, err
		}
		b.nfa.addEpsilon(frag.start, inner.start)
		b.nfa.addEpsilon(inner.end, frag.end)
		return frag, nil
	}
	if b.building.Has(e.Name) {
		return fragment{}, diag.New(diag.StageTokenizer, "non-tail recursive reference to token rule %q", e.Name)
	}
	b.building.Add(e.Name)
	frag, err := b.build(def.Body, grammar.NoTerm, false)
	b.building.Remove(e.Name)
	return frag, err
}
