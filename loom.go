// Package loom builds numeric LR parser tables from a grammar source file:
// normalize the surface AST, run the LR(1)/LALR branch and the tokenizer
// branch, partition LR states into token groups, and pack the result into
// flat tables (spec.md §2, "Data flow").
package loom

import (
	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/loom/lalr"
	"github.com/dekarrin/loom/internal/loom/lex"
	"github.com/dekarrin/loom/internal/loom/normalize"
	"github.com/dekarrin/loom/internal/loom/pack"
	"github.com/dekarrin/loom/internal/loom/tokengroup"
)

// Session identifies one Build invocation for log correlation
// (SPEC_FULL.md §2, `github.com/google/uuid` wiring).
type Session = diag.Session

// Report summarizes one build for a human operator, separate from the
// warning/error stream (SPEC_FULL.md §3, "Grammar statistics report"),
// mirroring the teacher's `internal/ictiobus` preference for returning rich
// structured results instead of only side-effecting through logs.
type Report struct {
	Session Session

	States        int
	Rules         int
	Terminals     int
	Nonterminals  int
	TokenGroups   int
	Conflicts     int
	SilencedCount int
}

// Result is everything one successful Build call produces: the packed
// tables, the term-name mapping for the emitted terms file (spec.md §6), and
// the build's Report.
type Result struct {
	Tables    *pack.Tables
	TermNames []string

	Report Report
}

// Build runs every generator pass over a grammar file in the order spec.md
// §2's data flow names: normalize, then the LR-builder/LALR-collapser branch
// and the NFA/DFA branch (sequenced here, since this implementation is
// single-threaded per spec.md §5), then token-group assignment, then table
// packing. A nil sink receives every non-fatal warning; the first fatal
// diag.Error aborts the whole build (spec.md §7).
//
// maxTokenGroups overrides tokengroup's default group-count cap when
// non-zero (loom.toml's `build.max_token_groups`); zero keeps the package
// default.
func Build(file, src string, sink diag.Sink, maxTokenGroups int) (*Result, error) {
	collector := diag.NewCollector(sink)

	g, err := ast.Parse(file, src)
	if err != nil {
		return nil, err
	}

	norm, err := normalize.Build(g, collector.Warn)
	if err != nil {
		return nil, err
	}

	canonical, err := automaton.Build(norm.Terms, norm.Rules, collector.Warn)
	if err != nil {
		return nil, err
	}

	collapsed, err := lalr.Collapse(canonical, collector.Warn)
	if err != nil {
		return nil, err
	}

	tokenizer, err := lex.Build(norm, collector.Warn)
	if err != nil {
		return nil, err
	}

	groups, err := tokengroup.Build(collapsed, tokenizer, maxTokenGroups)
	if err != nil {
		return nil, err
	}

	tables, err := pack.Build(collapsed, groups, norm.Terms.Len(), collector.Warn)
	if err != nil {
		return nil, err
	}

	terminals, nonterminals := countTerms(norm.Terms)
	silenced := 0
	for _, c := range collapsed.Conflicts {
		if c.Silenced {
			silenced++
		}
	}

	report := Report{
		Session:       collector.Session,
		States:        len(collapsed.States),
		Rules:         len(collapsed.Rules),
		Terminals:     terminals,
		Nonterminals:  nonterminals,
		TokenGroups:   len(groups.Groups),
		Conflicts:     len(collapsed.Conflicts),
		SilencedCount: silenced,
	}

	return &Result{
		Tables:    tables,
		TermNames: termNames(norm.Terms),
		Report:    report,
	}, nil
}

// MustBuild is Build for callers (tests, the CLI's quick-check mode) that
// want a panic instead of threading an error, matching the
// `MustByName`-style convenience wrappers elsewhere in loom.
func MustBuild(file, src string, sink diag.Sink, maxTokenGroups int) *Result {
	res, err := Build(file, src, sink, maxTokenGroups)
	if err != nil {
		panic(err)
	}
	return res
}

func countTerms(terms *grammar.Table) (terminals, nonterminals int) {
	for _, t := range terms.All() {
		if t.Has(grammar.FlagTerminal) {
			terminals++
		} else {
			nonterminals++
		}
	}
	return terminals, nonterminals
}

func termNames(terms *grammar.Table) []string {
	all := terms.All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}
