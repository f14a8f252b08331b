// Package normalize turns a surface ast.Grammar into the flat grammar.Rule
// list the automaton builder consumes (spec.md §4.1). It is the bridge
// between "however a grammar got typed in" and the id-based arena model in
// package grammar.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cnf/structhash"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
)

// Result is everything the normalizer hands off to the automaton and
// tokenizer packages.
type Result struct {
	Terms    *grammar.Table
	Rules    []grammar.Rule
	SkipTerm grammar.TermID

	// TokenRules and TokenPrec pass the @tokens contents straight through
	// for the lex package, which owns NFA/DFA construction (spec.md §4.4).
	// Specializations/Extensions resolved here (they promote a literal to
	// its own terminal, which the rule list already references) are
	// reported back so the tokenizer builder knows which base token each
	// specialized terminal competes against.
	TokenRules []ast.TokenRule
	TokenPrec  []ast.PrecGroup

	Specializations []Specialization
}

// Specialization records one @specialize/@extend literal promotion.
type Specialization struct {
	Base    string
	Literal string
	Term    grammar.TermID
	Extend  bool
}

type specKey struct{ base, literal string }

// ctx carries normalization state through one Build call. It is not
// reentrant or reused across builds, matching the "one ctx per build" shape
// of the rest of loom's generator passes.
type ctx struct {
	terms      *grammar.Table
	rules      []grammar.Rule
	nextRuleID grammar.RuleID

	ruleDefs  map[string]ast.RuleDef
	compiled  map[string]grammar.TermID

	instantiated map[string]grammar.TermID
	paramScopes  []map[string]ast.Expr

	repeatMemo map[string]grammar.TermID

	specializations map[specKey]grammar.TermID
	specExtend      map[specKey]bool
	specOrder       []specKey

	precedence *precTable

	punctuation string
	detectDelim bool
	exportTags  map[string]string
	termTags    map[string]string

	currentSkip grammar.TermID
	skipTerm    grammar.TermID

	anonCounter int

	sink diag.Sink
}

func newCtx(sink diag.Sink) *ctx {
	if sink == nil {
		sink = diag.DefaultSink
	}
	return &ctx{
		terms:           grammar.NewTable(),
		ruleDefs:        map[string]ast.RuleDef{},
		compiled:        map[string]grammar.TermID{},
		instantiated:    map[string]grammar.TermID{},
		repeatMemo:      map[string]grammar.TermID{},
		specializations: map[specKey]grammar.TermID{},
		specExtend:      map[specKey]bool{},
		exportTags:      map[string]string{},
		termTags:        map[string]string{},
		currentSkip:     grammar.NoTerm,
		skipTerm:        grammar.NoTerm,
		sink:            sink,
	}
}

func (c *ctx) warnf(format string, a ...interface{}) {
	c.sink(diag.Warning{Stage: diag.StageStatic, Message: fmt.Sprintf(format, a...)})
}

// Build normalizes g, runs the inline and merge fixpoint passes, and returns
// the flat rule list plus term table (spec.md §4.1).
func Build(g *ast.Grammar, sink diag.Sink) (*Result, error) {
	c := newCtx(sink)

	for _, rd := range g.Rules {
		if _, dup := c.ruleDefs[rd.Name]; dup {
			return nil, diag.At(diag.StageStatic, rd.Pos, "rule %q declared more than once", rd.Name)
		}
		c.ruleDefs[rd.Name] = rd
	}

	for name, tag := range g.Tags.Exports {
		c.exportTags[name] = tag
	}
	for name, tag := range g.Tags.TermTags {
		c.termTags[name] = tag
	}
	c.punctuation = g.Tags.Punctuation
	c.detectDelim = g.Tags.DetectDelim

	c.precedence = buildPrecedenceTable(g.Precedence)

	if g.Skip != nil {
		id := c.terms.Declare("$skip", grammar.FlagTerminal)
		c.skipTerm = id
		c.currentSkip = id
	}

	for _, et := range g.ExternalTokens {
		for name, tag := range et.Tags {
			id := c.terms.Declare(name, grammar.FlagTerminal)
			if tag != "" {
				c.terms.SetTag(id, tag)
			}
		}
	}
	for _, eg := range g.ExternalGrammar {
		name := eg.As
		if name == "" {
			name = eg.Name
		}
		c.terms.Declare("nest."+name, grammar.FlagTerminal)
	}

	topInner, err := c.compileTerm(g.Top)
	if err != nil {
		return nil, err
	}
	topID := c.terms.Declare("$top", 0)
	c.terms.SetTop(topID)
	rule := grammar.NewRule(c.nextRuleID, topID, []grammar.TermID{topInner})
	c.nextRuleID++
	c.rules = append(c.rules, rule)

	// @export forces inclusion even when a rule is otherwise unreachable
	// from @top (spec.md §6).
	names := make([]string, 0, len(c.ruleDefs))
	for name := range c.ruleDefs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rd := c.ruleDefs[name]
		if rd.Export && len(rd.Params) == 0 {
			if _, err := c.compileRuleDefByName(name); err != nil {
				return nil, err
			}
		}
	}

	if g.Skip != nil {
		for _, rd := range g.Skip.Rules {
			if _, err := c.compileRuleDefByName(rd.Name); err != nil {
				return nil, err
			}
		}
	}
	for _, scoped := range g.ScopedSkip {
		id := c.terms.Declare(fmt.Sprintf("$skip$%d", c.anonCounter), grammar.FlagTerminal)
		c.anonCounter++
		prev := c.currentSkip
		c.currentSkip = id
		for _, rd := range scoped.Rules {
			if _, err := c.compileRuleDefByName(rd.Name); err != nil {
				return nil, err
			}
		}
		c.currentSkip = prev
	}

	// @specialize/@extend ordinarily live inside @tokens rule bodies (the
	// lex package compiles those bodies into the NFA); the terminal each
	// promotes a literal to is still a grammar term, shared by whichever
	// rules reference it, so normalize registers it here rather than
	// leaving tokenizer construction to invent term identities of its own.
	for _, tr := range g.TokenRules {
		if err := c.collectSpecializations(tr.Body); err != nil {
			return nil, err
		}
	}

	if c.detectDelim {
		detectDelimiters(c.terms, c.rules)
	}

	rules := Inline(c.terms, c.rules)
	rules = Merge(c.terms, rules)

	specs := make([]Specialization, 0, len(c.specOrder))
	for _, k := range c.specOrder {
		specs = append(specs, Specialization{
			Base:    k.base,
			Literal: k.literal,
			Term:    c.specializations[k],
			Extend:  c.specExtend[k],
		})
	}

	return &Result{
		Terms:           c.terms,
		Rules:           rules,
		SkipTerm:        c.skipTerm,
		TokenRules:      g.TokenRules,
		TokenPrec:       g.TokenPrec,
		Specializations: specs,
	}, nil
}

func (c *ctx) compileRuleDefByName(name string) (grammar.TermID, error) {
	if id, ok := c.compiled[name]; ok {
		return id, nil
	}
	rd, ok := c.ruleDefs[name]
	if !ok {
		return grammar.NoTerm, diag.New(diag.StageStatic, "reference to undeclared rule %q", name)
	}
	if len(rd.Params) > 0 {
		return grammar.NoTerm, diag.At(diag.StageStatic, rd.Pos, "rule %q requires %d argument(s)", name, len(rd.Params))
	}

	id := c.terms.Declare(name, 0)
	c.compiled[name] = id
	if rd.Export {
		c.terms.SetPreserve(id)
	}
	if tag, ok := c.exportTags[name]; ok {
		c.terms.SetTag(id, tag)
	} else if tag, ok := c.termTags[name]; ok {
		c.terms.SetTag(id, tag)
	}

	if err := c.defineNonterminal(id, rd.Body); err != nil {
		return grammar.NoTerm, err
	}
	return id, nil
}

func (c *ctx) defineNonterminal(id grammar.TermID, body ast.Expr) error {
	alts, err := c.distributeChoice(body)
	if err != nil {
		return err
	}
	interesting := c.terms.Get(id).Has(grammar.FlagPreserve) || c.terms.Get(id).Tag != ""
	for _, alt := range alts {
		parts, conflicts, err := c.compileSeq(alt)
		if err != nil {
			return err
		}
		r := grammar.NewRule(c.nextRuleID, id, parts)
		r.Conflicts = conflicts
		r.Skip = c.currentSkip
		r.Interesting = interesting
		c.nextRuleID++
		c.rules = append(c.rules, r)
	}
	return nil
}

func (c *ctx) distributeChoice(e ast.Expr) ([]ast.Expr, error) {
	if e.Kind != ast.KChoice {
		return []ast.Expr{e}, nil
	}
	var out []ast.Expr
	for _, item := range e.Items {
		sub, err := c.distributeChoice(item)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (c *ctx) compileSeq(e ast.Expr) ([]grammar.TermID, []grammar.Conflict, error) {
	if e.Kind != ast.KSeq {
		t, err := c.compileTerm(e)
		if err != nil {
			return nil, nil, err
		}
		return []grammar.TermID{t}, make([]grammar.Conflict, 2), nil
	}

	parts := make([]grammar.TermID, 0, len(e.Items))
	conflicts := make([]grammar.Conflict, 0, len(e.Items)+1)
	for i, item := range e.Items {
		conflicts = append(conflicts, c.markersToConflict(e.Markers[i]))
		t, err := c.compileTerm(item)
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, t)
	}
	conflicts = append(conflicts, c.markersToConflict(e.Markers[len(e.Items)]))
	return parts, conflicts, nil
}

func (c *ctx) compileTerm(e ast.Expr) (grammar.TermID, error) {
	switch e.Kind {
	case ast.KLiteral:
		return c.declareLiteral(e.Literal), nil

	case ast.KAnyChar, ast.KCharSet:
		name := fmt.Sprintf("$charset$%d", c.anonCounter)
		c.anonCounter++
		return c.terms.Declare(name, grammar.FlagTerminal), nil

	case ast.KRef:
		return c.compileRef(e)

	case ast.KSeq, ast.KChoice:
		return c.compileAnon(e, "")

	case ast.KRepeat:
		return c.compileRepeat(e)

	case ast.KTagged:
		id, err := c.compileAnon(*e.Sub, e.Tag)
		return id, err

	case ast.KSpecialize:
		return c.resolveSpecialization(e.BaseToken, e.Literal, false)

	case ast.KExtend:
		return c.resolveSpecialization(e.BaseToken, e.Literal, true)

	case ast.KNest:
		name := "nest." + e.NestGrammar
		id := c.terms.Declare(name, grammar.FlagTerminal)
		if e.NestTag != "" {
			c.terms.SetTag(id, e.NestTag)
		}
		return id, nil
	}
	return grammar.NoTerm, diag.At(diag.StageStatic, e.Pos, "unhandled expression kind %v", e.Kind)
}

func (c *ctx) compileRef(e ast.Expr) (grammar.TermID, error) {
	if e.Namespace != "" {
		return c.terms.Declare(e.Namespace+"."+e.Name, grammar.FlagTerminal), nil
	}
	if sub, ok := c.lookupParam(e.Name); ok && len(e.Args) == 0 {
		return c.compileTerm(sub)
	}
	if len(e.Args) > 0 {
		return c.instantiateParameterized(e)
	}
	if id, ok := c.terms.ByName(e.Name); ok {
		return id, nil
	}
	if _, ok := c.ruleDefs[e.Name]; ok {
		return c.compileRuleDefByName(e.Name)
	}
	// Not yet declared and not a grammar rule: an implicit terminal,
	// presumably produced by a @tokens rule of the same name.
	id := c.terms.Declare(e.Name, grammar.FlagTerminal)
	if tag, ok := c.termTags[e.Name]; ok {
		c.terms.SetTag(id, tag)
	}
	return id, nil
}

// compileAnon compiles e as a freshly named nonterminal, used for inline
// choice/sequence sub-expressions and for tagged sub-expressions. Anonymous,
// untagged nonterminals are exactly the inlining pass's target population.
func (c *ctx) compileAnon(e ast.Expr, tag string) (grammar.TermID, error) {
	name := fmt.Sprintf("$anon$%d", c.anonCounter)
	c.anonCounter++
	id := c.terms.Declare(name, 0)
	if tag != "" {
		c.terms.SetTag(id, tag)
	}
	if err := c.defineNonterminal(id, e); err != nil {
		return grammar.NoTerm, err
	}
	return id, nil
}

// compileRepeat implements the E*/E+/E? expansion of spec.md §4.1. Star and
// plus get the PREC_REPEAT precedence injected at the repetition's boundary
// positions so a continue-vs-close shift/reduce choice always prefers
// continuing. The memo key is the already-resolved inner TermID rather than
// a structural hash of the raw sub-expression: two repeats whose bodies
// compile to the same term are interchangeable regardless of how their
// surface syntax differs.
func (c *ctx) compileRepeat(e ast.Expr) (grammar.TermID, error) {
	inner, err := c.compileTerm(*e.Sub)
	if err != nil {
		return grammar.NoTerm, err
	}
	key := fmt.Sprintf("%d:%d", e.Repeat, inner)
	if id, ok := c.repeatMemo[key]; ok {
		return id, nil
	}

	name := fmt.Sprintf("$repeat$%d", c.anonCounter)
	c.anonCounter++
	outer := c.terms.Declare(name, grammar.FlagRepeated)
	c.repeatMemo[key] = outer

	boundary := grammar.NewRule(c.nextRuleID, outer, []grammar.TermID{inner, outer})
	boundary.Conflicts[0] = grammar.Conflict{Precedence: grammar.PrecRepeatLeft}
	boundary.Conflicts[2] = grammar.Conflict{Precedence: grammar.PrecRepeatRight}
	boundary.Skip = c.currentSkip
	c.nextRuleID++

	switch e.Repeat {
	case ast.RepeatStar:
		empty := grammar.NewRule(c.nextRuleID, outer, nil)
		empty.Skip = c.currentSkip
		c.nextRuleID++
		c.rules = append(c.rules, empty, boundary)
	case ast.RepeatPlus:
		single := grammar.NewRule(c.nextRuleID, outer, []grammar.TermID{inner})
		single.Skip = c.currentSkip
		c.nextRuleID++
		c.rules = append(c.rules, single, boundary)
	case ast.RepeatOpt:
		empty := grammar.NewRule(c.nextRuleID, outer, nil)
		empty.Skip = c.currentSkip
		c.nextRuleID++
		single := grammar.NewRule(c.nextRuleID, outer, []grammar.TermID{inner})
		single.Skip = c.currentSkip
		c.nextRuleID++
		c.rules = append(c.rules, empty, single)
		return outer, nil
	}
	return outer, nil
}

func (c *ctx) lookupParam(name string) (ast.Expr, bool) {
	for i := len(c.paramScopes) - 1; i >= 0; i-- {
		if e, ok := c.paramScopes[i][name]; ok {
			return e, true
		}
	}
	return ast.Expr{}, false
}

// instantiateParameterized resolves a `name<args...>` reference to a
// dedicated nonterminal, substituting args for name's formal parameters
// capture-free: arguments are resolved against the *current* scope before
// being pushed as the new scope, so a parameter can never accidentally
// shadow-capture a binding from the rule being instantiated.
func (c *ctx) instantiateParameterized(e ast.Expr) (grammar.TermID, error) {
	rd, ok := c.ruleDefs[e.Name]
	if !ok {
		return grammar.NoTerm, diag.At(diag.StageStatic, e.Pos, "reference to undeclared parameterized rule %q", e.Name)
	}
	if len(rd.Params) != len(e.Args) {
		return grammar.NoTerm, diag.At(diag.StageStatic, e.Pos, "rule %q expects %d argument(s), got %d", e.Name, len(rd.Params), len(e.Args))
	}

	for _, a := range e.Args {
		if a.Kind == ast.KRef && len(a.Args) > 0 {
			if _, isParam := c.lookupParam(a.Name); isParam {
				return grammar.NoTerm, diag.At(diag.StageStatic, a.Pos,
					"cannot pass arguments to parameter %q, which already takes arguments", a.Name)
			}
		}
	}

	resolved := make([]ast.Expr, len(e.Args))
	for i, a := range e.Args {
		resolved[i] = c.substituteParams(a)
	}

	hashKey := struct {
		Name string
		Args []ast.Expr
	}{e.Name, resolved}
	hash, err := structhash.Hash(hashKey, 1)
	if err != nil {
		return grammar.NoTerm, diag.Wrap(diag.StageStatic, e.Pos, err, "hashing instantiation of %q", e.Name)
	}
	if id, ok := c.instantiated[hash]; ok {
		return id, nil
	}

	var mangled strings.Builder
	mangled.WriteString(e.Name)
	for _, a := range resolved {
		mangled.WriteByte('<')
		mangled.WriteString(exprSummary(a))
		mangled.WriteByte('>')
	}
	id := c.terms.Declare(mangled.String(), 0)
	c.instantiated[hash] = id

	scope := make(map[string]ast.Expr, len(rd.Params))
	for i, p := range rd.Params {
		scope[p.Name] = resolved[i]
	}
	c.paramScopes = append(c.paramScopes, scope)
	err = c.defineNonterminal(id, rd.Body)
	c.paramScopes = c.paramScopes[:len(c.paramScopes)-1]
	if err != nil {
		return grammar.NoTerm, err
	}
	return id, nil
}

func (c *ctx) substituteParams(e ast.Expr) ast.Expr {
	switch e.Kind {
	case ast.KRef:
		if e.Namespace == "" && len(e.Args) == 0 {
			if bound, ok := c.lookupParam(e.Name); ok {
				return bound
			}
		}
		out := e
		if len(e.Args) > 0 {
			out.Args = make([]ast.Expr, len(e.Args))
			for i, a := range e.Args {
				out.Args[i] = c.substituteParams(a)
			}
		}
		return out
	case ast.KSeq, ast.KChoice:
		out := e
		out.Items = make([]ast.Expr, len(e.Items))
		for i, it := range e.Items {
			out.Items[i] = c.substituteParams(it)
		}
		return out
	case ast.KRepeat, ast.KTagged:
		out := e
		if e.Sub != nil {
			sub := c.substituteParams(*e.Sub)
			out.Sub = &sub
		}
		return out
	default:
		return e
	}
}

func exprSummary(e ast.Expr) string {
	switch e.Kind {
	case ast.KLiteral:
		return e.Literal
	case ast.KRef:
		return e.Name
	default:
		return "_"
	}
}

func (c *ctx) declareLiteral(lit string) grammar.TermID {
	id := c.terms.Declare("'"+lit+"'", grammar.FlagTerminal)
	if c.punctuation != "" && len(lit) == 1 && strings.Contains(c.punctuation, lit) {
		c.terms.SetTag(id, "punctuation")
	}
	return id
}

func (c *ctx) collectSpecializations(e ast.Expr) error {
	switch e.Kind {
	case ast.KSpecialize:
		_, err := c.resolveSpecialization(e.BaseToken, e.Literal, false)
		return err
	case ast.KExtend:
		_, err := c.resolveSpecialization(e.BaseToken, e.Literal, true)
		return err
	case ast.KSeq, ast.KChoice:
		for _, it := range e.Items {
			if err := c.collectSpecializations(it); err != nil {
				return err
			}
		}
	case ast.KRepeat, ast.KTagged:
		if e.Sub != nil {
			return c.collectSpecializations(*e.Sub)
		}
	}
	return nil
}

func (c *ctx) resolveSpecialization(base, lit string, extend bool) (grammar.TermID, error) {
	key := specKey{base, lit}
	if id, ok := c.specializations[key]; ok {
		if c.specExtend[key] != extend {
			return grammar.NoTerm, diag.New(diag.StageStatic,
				"%q is both specialized and extended from base token %q", lit, base)
		}
		return id, nil
	}
	name := fmt.Sprintf("%s/%s", base, lit)
	id := c.terms.Declare(name, grammar.FlagTerminal)
	c.specializations[key] = id
	c.specExtend[key] = extend
	c.specOrder = append(c.specOrder, key)
	return id, nil
}

// detectDelimiters implements @detect-delim (GLOSSARY): a nonterminal whose
// every alternative starts and ends with the same matched punctuation pair
// gets that pair recorded for the pretty-printer/tree-cursor API to use for
// bracket matching.
func detectDelimiters(terms *grammar.Table, rules []grammar.Rule) {
	pairs := map[string]string{"(": ")", "{": "}", "[": "]", "<": ">"}

	byLHS := map[grammar.TermID][]grammar.Rule{}
	for _, r := range rules {
		byLHS[r.LHS] = append(byLHS[r.LHS], r)
	}

	for lhs, rs := range byLHS {
		if len(rs) == 0 {
			continue
		}
		var open, close string
		consistent := true
		for _, r := range rs {
			if len(r.Parts) < 2 {
				consistent = false
				break
			}
			first := literalText(terms, r.Parts[0])
			last := literalText(terms, r.Parts[len(r.Parts)-1])
			want, ok := pairs[first]
			if !ok || want != last {
				consistent = false
				break
			}
			if open == "" {
				open, close = first, last
			} else if open != first || close != last {
				consistent = false
				break
			}
		}
		if consistent && open != "" {
			terms.SetDelim(lhs, open, close)
		}
	}
}

func literalText(terms *grammar.Table, id grammar.TermID) string {
	name := terms.Get(id).Name
	if len(name) >= 2 && strings.HasPrefix(name, "'") && strings.HasSuffix(name, "'") {
		return name[1 : len(name)-1]
	}
	return ""
}
