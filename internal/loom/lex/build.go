package lex

import (
	"sort"

	"github.com/emirpasic/gods/sets/treeset"

	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/loom/normalize"
)

// Result is the built tokenizer: the determinized DFA, the resolved
// priority order, and the raw incompatibility graph tokengroup needs to
// partition LR states into token groups (spec.md §4.5, "list incompatibility
// peers from the conflict set").
type Result struct {
	DFA      *DFA
	Priority *priorityTable

	// Conflicts pairs every two terms found co-accepting in the same DFA
	// state before precedence resolution collapsed it to one winner — the
	// "conflict set" spec.md §4.5 has the group partitioner consult. Each
	// peer set is a tree set ordered by term id, so Incompatible's answer
	// comes back sorted without a separate sort pass over the peers, the
	// same role gorgo's `treeset`-backed CFSM state set plays for states
	// inserted in discovery rather than id order.
	Conflicts map[grammar.TermID]*treeset.Set
}

func termIDComparator(a, b interface{}) int {
	x, y := a.(grammar.TermID), b.(grammar.TermID)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// Incompatible returns t's recorded conflict peers in ascending term-id
// order, or nil if t never shared a DFA state with another term.
func (r *Result) Incompatible(t grammar.TermID) []grammar.TermID {
	peers, ok := r.Conflicts[t]
	if !ok || peers.Empty() {
		return nil
	}
	vals := peers.Values()
	out := make([]grammar.TermID, len(vals))
	for i, v := range vals {
		out[i] = v.(grammar.TermID)
	}
	return out
}

// Build compiles normalize's token-rule output into an NFA, determinizes it,
// and resolves every DFA-state accept-set conflict by token precedence
// (spec.md §4.4). A zero-length token (the start state already accepting)
// or an unresolvable accept conflict (two terms tie with no precedence
// relation between them) is reported through sink as a fatal diag.Error;
// every token rule is compiled regardless so every such defect is reported
// in one pass rather than stopping at the first.
func Build(res *normalize.Result, sink diag.Sink) (*Result, error) {
	if sink == nil {
		sink = diag.DefaultSink
	}

	priority, err := buildPriority(res.TokenPrec, res.Specializations)
	if err != nil {
		return nil, err
	}

	termByName := map[string]grammar.TermID{}
	for _, t := range res.Terms.All() {
		termByName[t.Name] = t.ID
	}

	nfa := &NFA{}
	start := nfa.newState()
	nfa.Start = start

	fb := newFragBuilder(nfa, res.TokenRules)

	var names []string
	for name := range fb.ruleDefs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := fb.ruleDefs[name]
		term, ok := termByName[name]
		if !ok {
			continue
		}
		fb.building.Add(name)
		frag, err := fb.build(rule.Body, term, true)
		fb.building.Remove(name)
		if err != nil {
			return nil, err
		}
		nfa.addEpsilon(start, frag.start)
		nfa.States[frag.end].Accepts = append(nfa.States[frag.end].Accepts, term)
	}

	for _, sp := range res.Specializations {
		frag := fb.buildLiteral(sp.Literal)
		nfa.addEpsilon(start, frag.start)
		nfa.States[frag.end].Accepts = append(nfa.States[frag.end].Accepts, sp.Term)
	}

	dfa := Determinize(nfa)

	if len(dfa.States[dfa.Start].Accepts) > 0 {
		names := acceptNames(res.Terms, dfa.States[dfa.Start].Accepts)
		return nil, diag.New(diag.StageTokenizer, "zero-length token(s): %v", names)
	}

	conflicts := map[grammar.TermID]*treeset.Set{}
	for _, st := range dfa.States {
		recordConflicts(conflicts, st.Accepts)
		if err := resolveAccepts(res.Terms, st, priority); err != nil {
			return nil, err
		}
	}

	return &Result{DFA: dfa, Priority: priority, Conflicts: conflicts}, nil
}

func recordConflicts(conflicts map[grammar.TermID]*treeset.Set, accepts []grammar.TermID) {
	for i := 0; i < len(accepts); i++ {
		for j := i + 1; j < len(accepts); j++ {
			a, b := accepts[i], accepts[j]
			if conflicts[a] == nil {
				conflicts[a] = treeset.NewWith(termIDComparator)
			}
			if conflicts[b] == nil {
				conflicts[b] = treeset.NewWith(termIDComparator)
			}
			conflicts[a].Add(b)
			conflicts[b].Add(a)
		}
	}
}

func acceptNames(terms *grammar.Table, ids []grammar.TermID) []string {
	var out []string
	for _, id := range ids {
		out = append(out, terms.Get(id).Name)
	}
	return out
}

// resolveAccepts orders a DFA state's accept list by descending priority,
// dropping any term strictly outranked by another in the same state,
// reporting a fatal error when two terms tie with no precedence relation
// between them at all (spec.md §4.4, "Conflicts").
func resolveAccepts(terms *grammar.Table, st *DFAState, priority *priorityTable) error {
	if len(st.Accepts) <= 1 {
		return nil
	}
	names := make([]string, len(st.Accepts))
	for i, id := range st.Accepts {
		names[i] = terms.Get(id).Name
	}

	winner := 0
	for i := 1; i < len(st.Accepts); i++ {
		a, b := names[winner], names[i]
		switch {
		case priority.has(a) && priority.has(b):
			if priority.higher(b, a) {
				winner = i
			}
		case priority.has(a):
			// a outranks an unranked b
		case priority.has(b):
			winner = i
		default:
			return diag.New(diag.StageTokenizer, "token conflict between %q and %q: neither takes precedence", a, b)
		}
	}
	st.Accepts = []grammar.TermID{st.Accepts[winner]}
	return nil
}
