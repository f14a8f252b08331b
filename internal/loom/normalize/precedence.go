package normalize

import (
	"fmt"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/grammar"
)

// precEntry is the resolved form of one `@precedence` block entry.
type precEntry struct {
	prec grammar.Precedence
	cut  bool
}

// precTable resolves `!name`/`~name` surface markers to grammar.Precedence
// values. Each `@precedence { ... }` block is one competition group
// (spec.md §3: "Two precedences conflict only when they share a group");
// entries are numbered so the first-listed entry in a block binds tightest,
// matching the convention the concrete Arith scenario in spec.md §8 assumes
// (`times` listed before `plus` binds tighter).
type precTable struct {
	byName map[string]precEntry
}

func buildPrecedenceTable(groups []ast.PrecGroup) *precTable {
	t := &precTable{byName: map[string]precEntry{}}
	for i, grp := range groups {
		groupName := grp.Name
		if groupName == "" {
			groupName = fmt.Sprintf("g%d", i)
		}
		n := len(grp.Entries)
		for j, decl := range grp.Entries {
			level := n - j
			assoc := grammar.AssocNone
			switch decl.Assoc {
			case "left":
				assoc = grammar.AssocLeft
			case "right":
				assoc = grammar.AssocRight
			}
			t.byName[decl.Name] = precEntry{
				prec: grammar.Precedence{Group: groupName, Level: level, Assoc: assoc},
				cut:  decl.Cut,
			}
		}
	}
	return t
}

// resolve looks up a conflict marker name, warning (via the supplied sink)
// and returning the zero Precedence if the name is unknown (spec.md §7:
// "precedence specified for unknown token" is only a warning, but an
// *unknown marker name* referenced from a rule body has no safe fallback
// other than "no precedence" here).
func (t *precTable) resolve(name string) (grammar.Precedence, bool, bool) {
	e, ok := t.byName[name]
	return e.prec, e.cut, ok
}

// markersToConflict merges the markers at one sequence position into a
// single grammar.Conflict, per spec.md §3's Rule.Conflicts shape.
func (c *ctx) markersToConflict(markers []ast.ConflictMarker) grammar.Conflict {
	var out grammar.Conflict
	for _, m := range markers {
		if m.Ambiguity {
			out.AmbiguityGroups = append(out.AmbiguityGroups, m.Name)
			continue
		}
		prec, cut, ok := c.precedence.resolve(m.Name)
		if !ok {
			c.warnf("precedence reference to unknown name %q", m.Name)
			continue
		}
		out.Precedence = prec
		if cut {
			out.Cut = prec.Group
		}
	}
	return out
}
