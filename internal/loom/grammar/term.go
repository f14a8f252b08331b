// Package grammar holds loom's core data model (spec.md §3): terms, rules,
// precedence, and the LR(1) item type built from them. Everything here is
// identified by a small int id into a flat, arena-owned slice rather than by
// pointer — spec.md §9's "Back-references by id" — so the automaton and
// tokenizer packages can hold plain ints as cross-references without pulling
// in a cyclic ownership graph.
package grammar

import "fmt"

// TermID is the index of a Term in a Grammar's Terms slice.
type TermID int

// NoTerm is the zero-value sentinel meaning "no term", used in Rule.Skip
// when a production has no active skip rule.
const NoTerm TermID = -1

// TermFlag is one bit of a Term's flag set (spec.md §3: "a bitset of flags
// {terminal, eof, error, top, repeated, preserve}").
type TermFlag uint8

const (
	FlagTerminal TermFlag = 1 << iota
	FlagEOF
	FlagError
	FlagTop
	FlagRepeated
	FlagPreserve
)

// Term is a grammar symbol: a terminal or non-terminal sharing one id
// namespace, disjoint from each other via FlagTerminal.
type Term struct {
	ID    TermID
	Name  string
	Flags TermFlag

	// Tag is the optional dotted label used to tag tree nodes, e.g.
	// "variable.name". Set lazily (possibly after Term creation, per the
	// "preserve/tag late assignment" lifecycle note in spec.md §3).
	Tag string

	// DelimOpen/DelimClose hold punctuation delimiters attached by the
	// detect-delim pass (spec.md GLOSSARY), e.g. "(" and ")".
	DelimOpen, DelimClose string
}

func (t Term) Has(f TermFlag) bool { return t.Flags&f != 0 }

func (t Term) String() string {
	if t.Tag != "" {
		return fmt.Sprintf("%s:%s", t.Name, t.Tag)
	}
	return t.Name
}

// Table owns the flat, frozen-after-construction array of Terms for one
// build. It is the arena described in spec.md §3's "Ownership" paragraph:
// every other package holds TermIDs into this table rather than *Term
// pointers.
type Table struct {
	terms []Term
	byName map[string]TermID

	top   TermID
	eof   TermID
	error TermID
}

// NewTable creates an empty term table. EOF and error terms are created
// eagerly since exactly one of each must exist for the lifetime of the
// table (spec.md §3 invariant).
func NewTable() *Table {
	t := &Table{byName: make(map[string]TermID)}
	t.eof = t.declare("$eof", FlagTerminal|FlagEOF)
	t.error = t.declare("$error", FlagTerminal|FlagError)
	return t
}

func (t *Table) declare(name string, flags TermFlag) TermID {
	id := TermID(len(t.terms))
	t.terms = append(t.terms, Term{ID: id, Name: name, Flags: flags})
	t.byName[name] = id
	return id
}

// Declare adds a new term, or returns the id of an existing term with the
// same name if flags are compatible (terminal-ness must match). Declaring a
// name a second time with mismatched terminal-ness is a caller bug and
// panics, since that can only happen from an internal error in the
// normalizer (surface validation must have already caught the namespace
// collision, spec.md §7).
func (t *Table) Declare(name string, flags TermFlag) TermID {
	if id, ok := t.byName[name]; ok {
		existing := t.terms[id]
		if existing.Has(FlagTerminal) != (flags&FlagTerminal != 0) {
			panic(fmt.Sprintf("grammar: %q redeclared with different terminal-ness", name))
		}
		return id
	}
	return t.declare(name, flags)
}

// SetTop marks id as the unique top (start) symbol.
func (t *Table) SetTop(id TermID) {
	t.terms[id].Flags |= FlagTop
	t.top = id
}

// Get returns the Term with the given id.
func (t *Table) Get(id TermID) Term { return t.terms[id] }

// MustByName looks up a term by name, panicking if it isn't declared. Used
// by tests and by passes operating after all terms are known to exist.
func (t *Table) MustByName(name string) TermID {
	id, ok := t.byName[name]
	if !ok {
		panic(fmt.Sprintf("grammar: no such term %q", name))
	}
	return id
}

// ByName looks up a term by name.
func (t *Table) ByName(name string) (TermID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// SetTag assigns a tag to an already-declared term (late assignment, per the
// Term lifecycle in spec.md §3).
func (t *Table) SetTag(id TermID, tag string) { t.terms[id].Tag = tag }

// SetPreserve marks id as surviving inlining.
func (t *Table) SetPreserve(id TermID) { t.terms[id].Flags |= FlagPreserve }

// SetDelim records the open/close punctuation pair detected around id by the
// @detect-delim pass (spec.md GLOSSARY).
func (t *Table) SetDelim(id TermID, open, close string) {
	t.terms[id].DelimOpen = open
	t.terms[id].DelimClose = close
}

// Top, EOF, Error return the ids of the unique top/EOF/error terms.
func (t *Table) Top() TermID   { return t.top }
func (t *Table) EOF() TermID   { return t.eof }
func (t *Table) Error() TermID { return t.error }

// Len returns the number of declared terms.
func (t *Table) Len() int { return len(t.terms) }

// All returns every term in declaration order.
func (t *Table) All() []Term { return t.terms }
