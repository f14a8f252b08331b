package ast

import "github.com/dekarrin/loom/internal/loom/diag"

// Param is a formal parameter of a parameterized rule, `Id<params>`.
type Param struct {
	Name string
}

// RuleDef is one surface `Id[<params>] [= name] { expr }` form (spec.md §6).
type RuleDef struct {
	Pos      diag.Position
	Name     string
	Params   []Param
	Export   bool
	Body     Expr
	Props    map[string]string
}

// PrecDecl is one entry of an `@precedence { ... }` block: an identifier
// plus an optional associativity and cut marker.
type PrecDecl struct {
	Name  string
	Assoc string // "left", "right", or "" for none
	Cut   bool
}

// PrecGroup is one `@precedence { id [@left|@right|@cut], ... }` block. A
// block's entries are numbered by position, highest (first) wins ties
// (spec.md §3).
type PrecGroup struct {
	Name    string // empty for the grammar-wide (non-token) precedence block
	Entries []PrecDecl
}

// TokenRule is one rule inside `@tokens { ... }`.
type TokenRule struct {
	Pos  diag.Position
	Name string
	Body Expr
}

// ExternalTokens is an `@external-tokens NAME from "source" { id = :tag, ... }`
// declaration.
type ExternalTokens struct {
	Name   string
	Source string
	Tags   map[string]string
}

// ExternalGrammar is an `@external-grammar NAME [as id] [from "source"]`
// declaration.
type ExternalGrammar struct {
	Name   string
	As     string
	Source string
}

// SkipBlock is a `@skip { expr }` (global) or `@skip { expr } { rules }`
// (scoped) declaration.
type SkipBlock struct {
	Expr  Expr
	Rules []RuleDef // non-nil only for the scoped form
}

// TagsBlock is the contents of an `@tags { ... }` block.
type TagsBlock struct {
	// TermTags maps a term name to its `= :tag` assignment.
	TermTags map[string]string
	// Exports maps an exported non-terminal name to its tag.
	Exports map[string]string
	// Punctuation lists the characters declared via `@punctuation "..."`.
	Punctuation string
	DetectDelim bool
}

// Grammar is the complete parsed surface form of one grammar file, the
// input to the normalizer (spec.md §4.1).
type Grammar struct {
	Top Expr

	TokenRules []TokenRule
	TokenPrec  []PrecGroup // @precedence blocks nested inside @tokens

	Precedence []PrecGroup // grammar-level @precedence blocks

	ExternalTokens  []ExternalTokens
	ExternalGrammar []ExternalGrammar

	Skip       *SkipBlock
	ScopedSkip []SkipBlock

	Tags TagsBlock

	Rules []RuleDef
}
