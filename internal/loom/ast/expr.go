// Package ast is the surface expression tree that the grammar normalizer
// consumes (spec.md §4.1). The textual grammar-file syntax that produces
// these values is an out-of-scope external collaborator (spec.md §1); this
// package still ships a small real reader for it (parser.go) as thin glue,
// but the Expr/RuleDef/Grammar types below are the actual contract between
// "whatever reads grammar text" and the normalizer.
//
// Per spec.md §9's "Union-typed expressions" design note, Expr is a single
// Kind-discriminated struct rather than an interface with many concrete
// implementations: callers are expected to switch exhaustively on Kind (see
// Walk) instead of doing type assertions.
package ast

import "github.com/dekarrin/loom/internal/loom/diag"

// ExprKind discriminates the surface expression variants named in spec.md
// §4.1's Contracts list.
type ExprKind int

const (
	KLiteral ExprKind = iota
	KAnyChar
	KCharSet
	KRef        // named reference, possibly namespaced, possibly with arguments
	KSeq        // sequence, with per-position conflict markers
	KChoice     // alternation
	KRepeat     // E*, E+, E?
	KTagged     // :tag or tagged(expr)
	KSpecialize // @specialize<tok,"lit">
	KExtend     // @extend<tok,"lit">
	KNest       // nest.NAME<:tag, "end">
)

// RepeatKind distinguishes the three repeat shapes.
type RepeatKind int

const (
	RepeatStar RepeatKind = iota
	RepeatPlus
	RepeatOpt
)

// CharRange is one inclusive [Lo, Hi] range of Unicode code points within a
// CharSet or a tokenizer built-in.
type CharRange struct {
	Lo, Hi rune
}

// ConflictMarker is a surface `~name` (ambiguity group) or `!name`
// (precedence reference) marker attached to one position of a Seq.
type ConflictMarker struct {
	Ambiguity bool // true for ~name, false for !name
	Name      string
}

// Expr is one node of the surface expression tree.
type Expr struct {
	Kind ExprKind
	Pos  diag.Position

	// KLiteral
	Literal string

	// KCharSet
	Invert bool
	Ranges []CharRange

	// KRef
	Namespace string
	Name      string
	Args      []Expr

	// KSeq / KChoice
	Items []Expr
	// Markers has len(Items)+1 entries for KSeq, one per inter-term
	// position (spec.md §3's Conflicts shape, at the surface level).
	Markers [][]ConflictMarker

	// KRepeat / KTagged: single child
	Sub *Expr

	// KRepeat
	Repeat RepeatKind

	// KTagged
	Tag string

	// KSpecialize / KExtend
	BaseToken string // the `tok` in @specialize<tok,"lit">

	// KNest
	NestGrammar string
	NestTag     string
	NestEnd     string
}

// Epsilon is the empty-string expression produced by `E?`'s expansion
// (spec.md §4.1: "E? expands to ε | E").
var Epsilon = Expr{Kind: KSeq, Items: nil, Markers: [][]ConflictMarker{{}}}

// IsEpsilon reports whether e is the empty sequence.
func (e Expr) IsEpsilon() bool {
	return e.Kind == KSeq && len(e.Items) == 0
}

// Lit builds a literal-string expression.
func Lit(s string) Expr { return Expr{Kind: KLiteral, Literal: s} }

// AnyChar builds the `_` any-character expression.
func AnyChar() Expr { return Expr{Kind: KAnyChar} }

// Set builds a character-set expression.
func Set(invert bool, ranges ...CharRange) Expr {
	return Expr{Kind: KCharSet, Invert: invert, Ranges: ranges}
}

// Ref builds a named reference, optionally namespaced and/or parameterized.
func Ref(ns, name string, args ...Expr) Expr {
	return Expr{Kind: KRef, Namespace: ns, Name: name, Args: args}
}

// Seq builds a sequence with no conflict markers.
func Seq(items ...Expr) Expr {
	return Expr{Kind: KSeq, Items: items, Markers: make([][]ConflictMarker, len(items)+1)}
}

// Choice builds an alternation.
func Choice(items ...Expr) Expr {
	return Expr{Kind: KChoice, Items: items}
}

// Star, Plus, Opt build the three repeat shapes.
func Star(e Expr) Expr { return Expr{Kind: KRepeat, Repeat: RepeatStar, Sub: &e} }
func Plus(e Expr) Expr { return Expr{Kind: KRepeat, Repeat: RepeatPlus, Sub: &e} }
func Opt(e Expr) Expr  { return Expr{Kind: KRepeat, Repeat: RepeatOpt, Sub: &e} }

// Tagged attaches a tag to an expression.
func Tagged(tag string, e Expr) Expr { return Expr{Kind: KTagged, Tag: tag, Sub: &e} }

// Specialize and Extend build the two literal-promotion forms.
func Specialize(tok, lit string) Expr {
	return Expr{Kind: KSpecialize, BaseToken: tok, Literal: lit}
}
func Extend(tok, lit string) Expr {
	return Expr{Kind: KExtend, BaseToken: tok, Literal: lit}
}

// Nest builds a nested-grammar placeholder.
func Nest(grammarName, tag, end string) Expr {
	return Expr{Kind: KNest, NestGrammar: grammarName, NestTag: tag, NestEnd: end}
}
