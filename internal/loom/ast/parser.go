package ast

import (
	"strings"

	"github.com/dekarrin/loom/internal/loom/diag"
)

// parser is the recursive-descent reader for the grammar-file surface
// syntax (spec.md §6). The surface syntax is explicitly out of scope for
// the generator core; this is deliberately a thin, direct-coded reader
// covering the forms spec.md documents, not a hardened production front
// end. It does not attempt the `@external-grammar X as id from "..."`
// FIXME raised in spec.md §9 beyond not crashing on it.
type parser struct {
	lex  *lexer
	cur  token
	file string
}

// Parse reads one grammar-file source into a Grammar AST.
func Parse(file, src string) (*Grammar, error) {
	p := &parser{lex: newLexer(file, src), file: file}
	if err := p.next(); err != nil {
		return nil, err
	}

	g := &Grammar{Tags: TagsBlock{TermTags: map[string]string{}, Exports: map[string]string{}}}
	haveTop := false

	for p.cur.kind != tEOF {
		switch {
		case p.atKeyword("top"):
			if haveTop {
				return nil, diag.At(diag.StageSurface, p.cur.pos, "duplicate @top declaration")
			}
			haveTop = true
			if err := p.next(); err != nil {
				return nil, err
			}
			if err := p.expectPunct("{"); err != nil {
				return nil, err
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			g.Top = e
			if err := p.expectPunct("}"); err != nil {
				return nil, err
			}

		case p.atKeyword("tokens"):
			if err := p.parseTokens(g); err != nil {
				return nil, err
			}

		case p.atKeyword("precedence"):
			grp, err := p.parsePrecedenceBlock()
			if err != nil {
				return nil, err
			}
			g.Precedence = append(g.Precedence, grp)

		case p.atKeyword("skip"):
			if err := p.parseSkip(g); err != nil {
				return nil, err
			}

		case p.atKeyword("tags"):
			if err := p.parseTags(g); err != nil {
				return nil, err
			}

		case p.atKeyword("external-tokens"):
			et, err := p.parseExternalTokens()
			if err != nil {
				return nil, err
			}
			g.ExternalTokens = append(g.ExternalTokens, et)

		case p.atKeyword("external-grammar"):
			eg, err := p.parseExternalGrammar()
			if err != nil {
				return nil, err
			}
			g.ExternalGrammar = append(g.ExternalGrammar, eg)

		case p.cur.kind == tAtKeyword && p.cur.text == "export", p.cur.kind == tIdent:
			rd, err := p.parseRuleDef()
			if err != nil {
				return nil, err
			}
			g.Rules = append(g.Rules, rd)

		default:
			return nil, diag.At(diag.StageSurface, p.cur.pos, "unexpected token %q", p.cur.text)
		}
	}

	if !haveTop {
		return nil, diag.New(diag.StageSurface, "grammar has no @top declaration")
	}

	return g, nil
}

func (p *parser) next() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *parser) atKeyword(name string) bool {
	return p.cur.kind == tAtKeyword && p.cur.text == name
}

func (p *parser) atPunct(s string) bool {
	return p.cur.kind == tPunct && p.cur.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return diag.At(diag.StageSurface, p.cur.pos, "expected %q, got %q", s, p.cur.text)
	}
	return p.next()
}

func (p *parser) expectIdent() (string, error) {
	if p.cur.kind != tIdent {
		return "", diag.At(diag.StageSurface, p.cur.pos, "expected identifier, got %q", p.cur.text)
	}
	name := p.cur.text
	return name, p.next()
}

func (p *parser) expectString() (string, error) {
	if p.cur.kind != tString {
		return "", diag.At(diag.StageSurface, p.cur.pos, "expected string literal, got %q", p.cur.text)
	}
	s := p.cur.text
	return s, p.next()
}

// parseExpr := ChoiceExpr
func (p *parser) parseExpr() (Expr, error) {
	return p.parseChoice()
}

func (p *parser) parseChoice() (Expr, error) {
	first, err := p.parseSeq()
	if err != nil {
		return Expr{}, err
	}
	items := []Expr{first}
	for p.atPunct("|") {
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		next, err := p.parseSeq()
		if err != nil {
			return Expr{}, err
		}
		items = append(items, next)
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return Choice(items...), nil
}

func (p *parser) startsPrimary() bool {
	switch p.cur.kind {
	case tString, tCharSet, tIdent:
		return true
	}
	if p.atPunct("(") || p.atPunct("$") {
		return true
	}
	if p.cur.kind == tAtKeyword && (p.cur.text == "specialize" || p.cur.text == "extend") {
		return true
	}
	return false
}

func (p *parser) parseSeq() (Expr, error) {
	var items []Expr
	var markers [][]ConflictMarker
	markers = append(markers, p.parseMarkers())

	for p.startsPrimary() {
		item, err := p.parsePostfix()
		if err != nil {
			return Expr{}, err
		}
		items = append(items, item)
		markers = append(markers, p.parseMarkers())
	}

	if len(items) == 0 {
		return Expr{Kind: KSeq, Markers: [][]ConflictMarker{{}}}, nil
	}
	if len(items) == 1 && allMarkersEmpty(markers) {
		return items[0], nil
	}
	return Expr{Kind: KSeq, Items: items, Markers: markers}, nil
}

func allMarkersEmpty(ms [][]ConflictMarker) bool {
	for _, m := range ms {
		if len(m) > 0 {
			return false
		}
	}
	return true
}

// parseMarkers consumes zero or more `~name`/`!name` conflict markers at the
// current sequence position.
func (p *parser) parseMarkers() []ConflictMarker {
	var out []ConflictMarker
	for p.atPunct("~") || p.atPunct("!") {
		amb := p.atPunct("~")
		_ = p.next()
		if p.cur.kind == tIdent {
			out = append(out, ConflictMarker{Ambiguity: amb, Name: p.cur.text})
			_ = p.next()
		}
	}
	return out
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return Expr{}, err
	}
	for {
		switch {
		case p.atPunct("*"):
			e = Star(e)
			if err := p.next(); err != nil {
				return Expr{}, err
			}
		case p.atPunct("+"):
			e = Plus(e)
			if err := p.next(); err != nil {
				return Expr{}, err
			}
		case p.atPunct("?"):
			e = Opt(e)
			if err := p.next(); err != nil {
				return Expr{}, err
			}
		case p.atPunct(":"):
			if err := p.next(); err != nil {
				return Expr{}, err
			}
			name, err := p.expectIdent()
			if err != nil {
				return Expr{}, err
			}
			e = Tagged(name, e)
		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	pos := p.cur.pos

	switch {
	case p.cur.kind == tString:
		lit, err := p.expectString()
		return Expr{Kind: KLiteral, Literal: lit, Pos: pos}, err

	case p.cur.kind == tCharSet:
		raw := p.cur.text
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		return parseCharSetBody(raw, pos)

	case p.atPunct("("):
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Expr{}, err
		}
		return e, nil

	case p.cur.kind == tAtKeyword && p.cur.text == "specialize":
		return p.parseSpecializeLike(false)

	case p.cur.kind == tAtKeyword && p.cur.text == "extend":
		return p.parseSpecializeLike(true)

	case p.cur.kind == tIdent && p.cur.text == "_":
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		return Expr{Kind: KAnyChar, Pos: pos}, nil

	case p.cur.kind == tIdent && p.cur.text == "nest":
		return p.parseNest(pos)

	case p.cur.kind == tIdent:
		return p.parseRef(pos)
	}

	return Expr{}, diag.At(diag.StageSurface, pos, "unexpected token %q in expression", p.cur.text)
}

func (p *parser) parseSpecializeLike(extend bool) (Expr, error) {
	pos := p.cur.pos
	if err := p.next(); err != nil {
		return Expr{}, err
	}
	if err := p.expectPunct("<"); err != nil {
		return Expr{}, err
	}
	tok, err := p.expectIdent()
	if err != nil {
		return Expr{}, err
	}
	if err := p.expectPunct(","); err != nil {
		return Expr{}, err
	}
	lit, err := p.expectString()
	if err != nil {
		return Expr{}, err
	}
	if err := p.expectPunct(">"); err != nil {
		return Expr{}, err
	}
	if extend {
		return Expr{Kind: KExtend, BaseToken: tok, Literal: lit, Pos: pos}, nil
	}
	return Expr{Kind: KSpecialize, BaseToken: tok, Literal: lit, Pos: pos}, nil
}

func (p *parser) parseNest(pos diag.Position) (Expr, error) {
	if err := p.next(); err != nil { // "nest"
		return Expr{}, err
	}
	if err := p.expectPunct("."); err != nil {
		return Expr{}, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return Expr{}, err
	}
	e := Expr{Kind: KNest, NestGrammar: name, Pos: pos}
	if p.atPunct("<") {
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		if p.atPunct(":") {
			if err := p.next(); err != nil {
				return Expr{}, err
			}
			tag, err := p.expectIdent()
			if err != nil {
				return Expr{}, err
			}
			e.NestTag = tag
		}
		if p.atPunct(",") {
			if err := p.next(); err != nil {
				return Expr{}, err
			}
			end, err := p.expectString()
			if err != nil {
				return Expr{}, err
			}
			e.NestEnd = end
		}
		if err := p.expectPunct(">"); err != nil {
			return Expr{}, err
		}
	}
	return e, nil
}

func (p *parser) parseRef(pos diag.Position) (Expr, error) {
	name, err := p.expectIdent()
	if err != nil {
		return Expr{}, err
	}
	ns := ""
	if p.atPunct(".") {
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		ns = name
		name, err = p.expectIdent()
		if err != nil {
			return Expr{}, err
		}
	}
	var args []Expr
	if p.atPunct("<") {
		if err := p.next(); err != nil {
			return Expr{}, err
		}
		for !p.atPunct(">") {
			arg, err := p.parseExpr()
			if err != nil {
				return Expr{}, err
			}
			args = append(args, arg)
			if p.atPunct(",") {
				if err := p.next(); err != nil {
					return Expr{}, err
				}
				continue
			}
			break
		}
		if err := p.expectPunct(">"); err != nil {
			return Expr{}, err
		}
	}
	return Expr{Kind: KRef, Namespace: ns, Name: name, Args: args, Pos: pos}, nil
}

func (p *parser) parseRuleDef() (RuleDef, error) {
	rd := RuleDef{Pos: p.cur.pos, Props: map[string]string{}}
	if p.cur.kind == tAtKeyword && p.cur.text == "export" {
		rd.Export = true
		if err := p.next(); err != nil {
			return rd, err
		}
	}
	name, err := p.expectIdent()
	if err != nil {
		return rd, err
	}
	rd.Name = name

	if p.atPunct("<") {
		if err := p.next(); err != nil {
			return rd, err
		}
		for p.cur.kind == tIdent {
			rd.Params = append(rd.Params, Param{Name: p.cur.text})
			if err := p.next(); err != nil {
				return rd, err
			}
			if p.atPunct(",") {
				if err := p.next(); err != nil {
					return rd, err
				}
			}
		}
		if err := p.expectPunct(">"); err != nil {
			return rd, err
		}
	}

	if p.atPunct("=") {
		if err := p.next(); err != nil {
			return rd, err
		}
		if _, err := p.expectIdent(); err != nil {
			return rd, err
		}
	}

	if err := p.expectPunct("{"); err != nil {
		return rd, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return rd, err
	}
	rd.Body = body
	if err := p.expectPunct("}"); err != nil {
		return rd, err
	}
	return rd, nil
}

func (p *parser) parseTokens(g *Grammar) error {
	if err := p.next(); err != nil { // "tokens"
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.atPunct("}") {
		if p.atKeyword("precedence") {
			grp, err := p.parsePrecedenceBlock()
			if err != nil {
				return err
			}
			g.TokenPrec = append(g.TokenPrec, grp)
			continue
		}
		pos := p.cur.pos
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		if p.atPunct("=") {
			if err := p.next(); err != nil {
				return err
			}
			if _, err := p.expectIdent(); err != nil {
				return err
			}
		}
		if err := p.expectPunct("{"); err != nil {
			return err
		}
		body, err := p.parseExpr()
		if err != nil {
			return err
		}
		if err := p.expectPunct("}"); err != nil {
			return err
		}
		g.TokenRules = append(g.TokenRules, TokenRule{Pos: pos, Name: name, Body: body})
	}
	return p.expectPunct("}")
}

func (p *parser) parsePrecedenceBlock() (PrecGroup, error) {
	if err := p.next(); err != nil { // "precedence"
		return PrecGroup{}, err
	}
	if err := p.expectPunct("{"); err != nil {
		return PrecGroup{}, err
	}
	var grp PrecGroup
	for !p.atPunct("}") {
		name, err := p.expectIdent()
		if err != nil {
			return grp, err
		}
		decl := PrecDecl{Name: name}
		for p.cur.kind == tAtKeyword && (p.cur.text == "left" || p.cur.text == "right" || p.cur.text == "cut") {
			if p.cur.text == "cut" {
				decl.Cut = true
			} else {
				decl.Assoc = p.cur.text
			}
			if err := p.next(); err != nil {
				return grp, err
			}
		}
		grp.Entries = append(grp.Entries, decl)
		if p.atPunct(",") {
			if err := p.next(); err != nil {
				return grp, err
			}
		}
	}
	return grp, p.expectPunct("}")
}

func (p *parser) parseSkip(g *Grammar) error {
	if err := p.next(); err != nil { // "skip"
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	e, err := p.parseExpr()
	if err != nil {
		return err
	}
	if err := p.expectPunct("}"); err != nil {
		return err
	}
	blk := SkipBlock{Expr: e}
	if p.atPunct("{") {
		if err := p.next(); err != nil {
			return err
		}
		for !p.atPunct("}") {
			rd, err := p.parseRuleDef()
			if err != nil {
				return err
			}
			blk.Rules = append(blk.Rules, rd)
		}
		if err := p.next(); err != nil {
			return err
		}
		g.ScopedSkip = append(g.ScopedSkip, blk)
		return nil
	}
	g.Skip = &blk
	return nil
}

func (p *parser) parseTags(g *Grammar) error {
	if err := p.next(); err != nil { // "tags"
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.atPunct("}") {
		switch {
		case p.cur.kind == tAtKeyword && p.cur.text == "export":
			if err := p.next(); err != nil {
				return err
			}
			name, err := p.expectIdent()
			if err != nil {
				return err
			}
			if err := p.expectPunct("="); err != nil {
				return err
			}
			if err := p.expectPunct(":"); err != nil {
				return err
			}
			tag, err := p.expectIdent()
			if err != nil {
				return err
			}
			g.Tags.Exports[name] = tag

		case p.cur.kind == tAtKeyword && p.cur.text == "punctuation":
			if err := p.next(); err != nil {
				return err
			}
			s, err := p.expectString()
			if err != nil {
				return err
			}
			g.Tags.Punctuation += s

		case p.cur.kind == tAtKeyword && p.cur.text == "detect-delim":
			if err := p.next(); err != nil {
				return err
			}
			g.Tags.DetectDelim = true

		default:
			name, err := p.expectIdent()
			if err != nil {
				return err
			}
			if err := p.expectPunct("="); err != nil {
				return err
			}
			if err := p.expectPunct(":"); err != nil {
				return err
			}
			tag, err := p.expectIdent()
			if err != nil {
				return err
			}
			g.Tags.TermTags[name] = tag
		}
		if p.atPunct(";") {
			if err := p.next(); err != nil {
				return err
			}
		}
	}
	return p.expectPunct("}")
}

func (p *parser) parseExternalTokens() (ExternalTokens, error) {
	if err := p.next(); err != nil { // "external-tokens"
		return ExternalTokens{}, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return ExternalTokens{}, err
	}
	if _, err := p.expectIdent(); err != nil { // "from"
		return ExternalTokens{}, err
	}
	src, err := p.expectString()
	if err != nil {
		return ExternalTokens{}, err
	}
	et := ExternalTokens{Name: name, Source: src, Tags: map[string]string{}}
	if err := p.expectPunct("{"); err != nil {
		return et, err
	}
	for !p.atPunct("}") {
		id, err := p.expectIdent()
		if err != nil {
			return et, err
		}
		if err := p.expectPunct("="); err != nil {
			return et, err
		}
		if err := p.expectPunct(":"); err != nil {
			return et, err
		}
		tag, err := p.expectIdent()
		if err != nil {
			return et, err
		}
		et.Tags[id] = tag
		if p.atPunct(",") {
			if err := p.next(); err != nil {
				return et, err
			}
		}
	}
	return et, p.expectPunct("}")
}

func (p *parser) parseExternalGrammar() (ExternalGrammar, error) {
	if err := p.next(); err != nil { // "external-grammar"
		return ExternalGrammar{}, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return ExternalGrammar{}, err
	}
	eg := ExternalGrammar{Name: name}
	// spec.md §9 FIXME: `as id`/`from "..."` are ambiguous with a rule named
	// `as`/`from` immediately following. We resolve it the way the source
	// parser's noted workaround does: treat `as`/`from` as reserved here.
	if p.cur.kind == tIdent && p.cur.text == "as" {
		if err := p.next(); err != nil {
			return eg, err
		}
		as, err := p.expectIdent()
		if err != nil {
			return eg, err
		}
		eg.As = as
	}
	if p.cur.kind == tIdent && p.cur.text == "from" {
		if err := p.next(); err != nil {
			return eg, err
		}
		src, err := p.expectString()
		if err != nil {
			return eg, err
		}
		eg.Source = src
	}
	return eg, nil
}

// parseCharSetBody resolves the escapes and ranges inside `[...]`
// (spec.md §6: "character sets in [...] with optional leading ^ to invert
// and - for ranges").
func parseCharSetBody(body string, pos diag.Position) (Expr, error) {
	invert := false
	i := 0
	if strings.HasPrefix(body, "^") {
		invert = true
		i = 1
	}
	var ranges []CharRange
	for i < len(body) {
		lo, next, err := decodeRuneLiteral(body, i)
		if err != nil {
			return Expr{}, diag.At(diag.StageSurface, pos, "%s", err.Error())
		}
		i = next
		if i < len(body) && body[i] == '-' && i+1 < len(body) {
			i++
			hi, next2, err := decodeRuneLiteral(body, i)
			if err != nil {
				return Expr{}, diag.At(diag.StageSurface, pos, "%s", err.Error())
			}
			i = next2
			ranges = append(ranges, CharRange{Lo: lo, Hi: hi})
		} else {
			ranges = append(ranges, CharRange{Lo: lo, Hi: lo})
		}
	}
	return Expr{Kind: KCharSet, Invert: invert, Ranges: ranges, Pos: pos}, nil
}
