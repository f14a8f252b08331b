package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/loom/internal/loom/grammar"
)

// Merge collapses nonterminals whose full alternative sets are identical
// (spec.md §4.1's merging pass) after inlining has run, redirecting every
// reference to the duplicate onto the first-declared survivor. Preserved,
// tagged, and top nonterminals are never merged away, since doing so would
// erase a name the caller asked to keep.
func Merge(terms *grammar.Table, rules []grammar.Rule) []grammar.Rule {
	for {
		redirect := findMergeRedirects(terms, rules)
		if len(redirect) == 0 {
			return renumber(rules)
		}
		var out []grammar.Rule
		for _, r := range rules {
			if _, dead := redirect[r.LHS]; dead {
				continue
			}
			r.Parts = redirectParts(r.Parts, redirect)
			out = append(out, r)
		}
		rules = out
	}
}

func findMergeRedirects(terms *grammar.Table, rules []grammar.Rule) map[grammar.TermID]grammar.TermID {
	byLHS := map[grammar.TermID][]grammar.Rule{}
	var order []grammar.TermID
	for _, r := range rules {
		if _, seen := byLHS[r.LHS]; !seen {
			order = append(order, r.LHS)
		}
		byLHS[r.LHS] = append(byLHS[r.LHS], r)
	}

	top := terms.Top()
	seenSig := map[string]grammar.TermID{}
	redirect := map[grammar.TermID]grammar.TermID{}
	for _, lhs := range order {
		term := terms.Get(lhs)
		if term.Has(grammar.FlagTerminal) || term.Has(grammar.FlagPreserve) || term.Tag != "" || lhs == top {
			continue
		}
		sig := ruleSetSignature(byLHS[lhs])
		if canon, ok := seenSig[sig]; ok {
			redirect[lhs] = canon
		} else {
			seenSig[sig] = lhs
		}
	}
	return redirect
}

func redirectParts(parts []grammar.TermID, redirect map[grammar.TermID]grammar.TermID) []grammar.TermID {
	out := make([]grammar.TermID, len(parts))
	for i, p := range parts {
		if c, ok := redirect[p]; ok {
			out[i] = c
		} else {
			out[i] = p
		}
	}
	return out
}

// ruleSetSignature builds an order-independent string identity for a
// nonterminal's alternatives, comparing right-hand sides only (spec.md §9:
// rule equality for merging purposes ignores conflict annotations).
func ruleSetSignature(rs []grammar.Rule) string {
	sigs := make([]string, len(rs))
	for i, r := range rs {
		parts := make([]string, len(r.Parts))
		for j, p := range r.Parts {
			parts[j] = fmt.Sprint(p)
		}
		sigs[i] = strings.Join(parts, ",")
	}
	sort.Strings(sigs)
	return strings.Join(sigs, "|")
}
