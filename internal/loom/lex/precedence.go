package lex

import (
	"sort"

	"github.com/dekarrin/loom/internal/loom/ast"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/normalize"
	"github.com/dekarrin/loom/internal/util"
)

// priorityTable is the linear priority list produced by topologically
// sorting the token-precedence DAG (spec.md §4.4, "Determinization").
// Lower rank means higher priority, matching the convention that the
// first-listed entry in a block binds tightest.
type priorityTable struct {
	rank map[string]int
}

func (p *priorityTable) has(name string) bool {
	_, ok := p.rank[name]
	return ok
}

// higher reports whether a strictly outranks b; both must be known names.
func (p *priorityTable) higher(a, b string) bool {
	return p.rank[a] < p.rank[b]
}

// buildPriority assembles the DAG from every `@precedence` block touching
// token names (each block is a chain: entry i beats entry i+1), plus one
// implicit edge per `@specialize`/`@extend` term naming it ahead of its base
// token (a specialized literal like `id/if` is always more specific than
// the `id` rule it carves the literal out of, with no `@precedence` block
// required to say so), and topologically sorts the combined graph. A cycle
// spanning two or more blocks is a fatal error (spec.md §4.4: "A cyclic
// relation is a fatal error").
func buildPriority(groups []ast.PrecGroup, specializations []normalize.Specialization) (*priorityTable, error) {
	edges := map[string][]string{}
	nodes := util.NewStringSet()
	for _, g := range groups {
		for i, e := range g.Entries {
			nodes.Add(e.Name)
			if i > 0 {
				prev := g.Entries[i-1].Name
				edges[prev] = append(edges[prev], e.Name)
			}
		}
	}
	for _, sp := range specializations {
		name := sp.Base + "/" + sp.Literal
		nodes.Add(name)
		nodes.Add(sp.Base)
		edges[name] = append(edges[name], sp.Base)
	}

	var order []string
	names := nodes.Elements()
	sort.Strings(names)

	indeg := map[string]int{}
	for _, n := range names {
		indeg[n] = 0
	}
	for _, outs := range edges {
		for _, to := range outs {
			indeg[to]++
		}
	}

	var queue []string
	for _, n := range names {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		var next []string
		for _, to := range edges[n] {
			indeg[to]--
			if indeg[to] == 0 {
				next = append(next, to)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
		sort.Strings(queue)
	}

	if len(order) != len(names) {
		return nil, diag.New(diag.StageTokenizer, "cyclic token precedence relation")
	}

	rank := map[string]int{}
	for i, n := range order {
		rank[n] = i
	}
	return &priorityTable{rank: rank}, nil
}
