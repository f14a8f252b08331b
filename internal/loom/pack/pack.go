// Package pack serializes a collapsed LALR automaton, its tokenizer, and its
// token-group assignment into flat 16-bit arrays suitable for embedding in a
// generated parser module (spec.md §4.6).
package pack

import (
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/dekarrin/loom/internal/loom/automaton"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/loom/grammar"
	"github.com/dekarrin/loom/internal/loom/lalr"
	"github.com/dekarrin/loom/internal/loom/tokengroup"
)

// Bit layout for the reduce half of an action-data triple's second word
// (spec.md §4.6: "Reduce encodes (ruleLhsId|ReduceFlag|RepeatFlag?|StayFlag?|
// (depth<<ReduceDepthShift)) & 0xffff").
const (
	ReduceFlag uint32 = 1 << 15
	RepeatFlag uint32 = 1 << 14
	StayFlag   uint32 = 1 << 13

	// ReduceDepthShift leaves room below the three flag bits for the rule's
	// right-hand-side length, which the generated parser's runtime needs to
	// know how many stack cells to pop on a default- or forced-reduce.
	ReduceDepthShift = 8
	ReduceDepthMask  = 0x1f

	// EndSentinel terminates one state's run of action-data triples.
	EndSentinel grammar.TermID = -1
)

// State-table flags.
const (
	StateFlagHasDefaultReduce uint16 = 1 << iota
	StateFlagHasForcedReduce
	StateFlagHasSkip
)

// StateRecord is the fixed-size per-state record of the state table
// (spec.md §4.6).
type StateRecord struct {
	Flags         uint16
	ActionOffset  uint16
	RecoverOffset uint16
	SkipOffset    uint16
	TokenizerMask uint16
	DefaultReduce uint16
	ForcedReduce  uint16
}

// GotoRecord is one `(count<<1 | lastBit, targetStateId, sourceStateIds...)`
// run of the goto table, covering every source state that goes to the same
// target on the same nonterminal (spec.md §4.6).
type GotoRecord struct {
	Term    grammar.TermID
	Target  int
	Sources []int
	Last    bool
}

// Tables is the packed output of one build: the three flat arrays spec.md
// §4.6 names, plus enough side tables (term/group counts) for a generated
// parser module to interpret them.
type Tables struct {
	States     []StateRecord
	ActionData []uint16
	GotoData   []uint16

	// GotoIndex maps a nonterminal's term id to the offset of its first
	// record run in GotoData, or NoGotoOffset if the nonterminal has no
	// goto edges at all.
	GotoIndex []uint16

	NumTerms  int
	NumGroups int
}

// NoGotoOffset marks a term with no entry in GotoIndex.
const NoGotoOffset uint16 = 0xffff

// dedupedRun is one previously-emitted action-data or goto-data run, keyed by
// a blake2b-128 digest of its uint16 content so repeated linear-scan
// comparisons check a 16-byte digest before falling back to a full slice
// compare (spec.md §4.6: "linear scan for existing occurrence").
type dedupedRun struct {
	digest [16]byte
	offset int
	data   []uint16
}

type deduper struct {
	runs []dedupedRun
}

func digestOf(data []uint16) [16]byte {
	h, _ := blake2b.New(16, nil)
	buf := make([]byte, 2)
	for _, v := range data {
		buf[0] = byte(v)
		buf[1] = byte(v >> 8)
		h.Write(buf)
	}
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// intern appends data to the shared array and returns its offset, reusing an
// identical previously-appended run when one exists.
func (d *deduper) intern(arr *[]uint16, data []uint16) int {
	digest := digestOf(data)
	for _, run := range d.runs {
		if run.digest == digest && sameInts(run.data, data) {
			return run.offset
		}
	}
	offset := len(*arr)
	*arr = append(*arr, data...)
	d.runs = append(d.runs, dedupedRun{digest: digest, offset: offset, data: data})
	return offset
}

func sameInts(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Build packs a collapsed automaton, its token-group assignment, and its
// terminal/group counts into Tables. Default-reduce and forced-reduce are
// computed per state (spec.md §4.6, last paragraph); sub-array
// deduplication is applied to both the action data and the goto data.
func Build(a *lalr.Automaton, groups *tokengroup.Result, numTerms int, sink diag.Sink) (*Tables, error) {
	if sink == nil {
		sink = diag.DefaultSink
	}

	t := &Tables{
		States:    make([]StateRecord, len(a.States)),
		NumTerms:  numTerms,
		NumGroups: 0,
	}
	if groups != nil {
		t.NumGroups = len(groups.Groups)
	}

	actionDedup := &deduper{}
	gotoDedup := &deduper{}

	for _, st := range a.States {
		rec := StateRecord{}
		if groups != nil {
			group := groups.StateGroup[st.ID]
			rec.TokenizerMask = uint16(1) << uint(group)
			if groups.StateSkip[st.ID] != tokengroup.SkipNone {
				rec.Flags |= StateFlagHasSkip
			}
		}

		actionData := buildActionData(a, st.ID)
		rec.ActionOffset = uint16(actionDedup.intern(&t.ActionData, actionData))

		if dr, ok := defaultReduce(a, st.ID); ok {
			rec.Flags |= StateFlagHasDefaultReduce
			rec.DefaultReduce = uint16(dr)
		}
		if fr, ok := forcedReduce(a, st.ID); ok {
			rec.Flags |= StateFlagHasForcedReduce
			rec.ForcedReduce = uint16(fr)
		}

		t.States[st.ID] = rec
	}

	gotoData, gotoIndex := buildGotoData(a, gotoDedup, numTerms)
	t.GotoData = gotoData
	t.GotoIndex = gotoIndex

	return t, nil
}

// buildActionData encodes one state's action table as concatenated
// (term, lo16, hi16) triples, terminated by an End sentinel (spec.md §4.6).
func buildActionData(a *lalr.Automaton, stateID int) []uint16 {
	acts := a.Actions[stateID]
	var terms []grammar.TermID
	for term := range acts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i] < terms[j] })

	data := make([]uint16, 0, len(terms)*3+3)
	for _, term := range terms {
		act := acts[term]
		switch act.Kind {
		case automaton.ActionShift:
			data = append(data, uint16(term), uint16(act.Target), 0)
		case automaton.ActionReduce:
			lo, hi := encodeReduce(a.Rules[act.Rule])
			data = append(data, uint16(term), lo, hi)
		case automaton.ActionAccept:
			data = append(data, uint16(term), 0, 0)
		}
	}
	data = append(data, uint16(EndSentinel), 0, 0)
	return data
}

// encodeReduce packs a rule's reduce payload into the low/high halves of a
// 32-bit word, split the way the action-data triple's second and third words
// hold it (spec.md §4.6).
func encodeReduce(rule grammar.Rule) (lo, hi uint16) {
	depth := len(rule.Parts)
	if depth > ReduceDepthMask {
		depth = ReduceDepthMask
	}
	word := uint32(rule.LHS) | ReduceFlag | (uint32(depth) << ReduceDepthShift)
	if isRepeatRule(rule) {
		word |= RepeatFlag
	}
	return uint16(word & 0xffff), uint16((word >> 16) & 0xffff)
}

// isRepeatRule reports whether r was synthesized by the `E*`/`E+` expansion,
// identified by its aggregate precedence sitting in the repeat group (spec.md
// §4.1).
func isRepeatRule(r grammar.Rule) bool {
	return r.AggregatePrecedence().Group == grammar.PrecRepeatGroup
}

// defaultReduce reports the rule a state should reduce by on any lookahead
// not otherwise covered, when every one of its reduce actions names the same
// rule (spec.md §4.6: "a single unique reduce action on all lookaheads").
func defaultReduce(a *lalr.Automaton, stateID int) (grammar.RuleID, bool) {
	var rule grammar.RuleID = -1
	seen := false
	for _, act := range a.Actions[stateID] {
		if act.Kind != automaton.ActionReduce {
			return 0, false
		}
		if !seen {
			rule = act.Rule
			seen = true
		} else if act.Rule != rule {
			return 0, false
		}
	}
	if !seen {
		return 0, false
	}
	return rule, true
}

// forcedReduce picks the reduction used for error recovery: the item with
// the smallest remaining suffix (closest to completion), ties broken by the
// longest rule overall (spec.md §4.6, last paragraph).
func forcedReduce(a *lalr.Automaton, stateID int) (grammar.RuleID, bool) {
	st := a.States[stateID]
	best := grammar.RuleID(-1)
	bestRemaining := -1
	bestLen := -1
	found := false

	var cores []automaton.ItemCore
	for c := range st.Items {
		cores = append(cores, c)
	}
	sort.Slice(cores, func(i, j int) bool {
		if cores[i].Rule != cores[j].Rule {
			return cores[i].Rule < cores[j].Rule
		}
		return cores[i].Dot < cores[j].Dot
	})

	for _, core := range cores {
		rule := a.Rules[core.Rule]
		remaining := len(rule.Parts) - core.Dot
		ruleLen := len(rule.Parts)
		switch {
		case !found:
			found = true
			best, bestRemaining, bestLen = core.Rule, remaining, ruleLen
		case remaining < bestRemaining:
			best, bestRemaining, bestLen = core.Rule, remaining, ruleLen
		case remaining == bestRemaining && ruleLen > bestLen:
			best, bestRemaining, bestLen = core.Rule, remaining, ruleLen
		}
	}
	return best, found
}

// buildGotoData encodes the goto table: for each nonterminal with at least
// one goto edge, one `(count<<1|lastBit, targetStateId, sourceStateIds...)`
// record per distinct target state, in ascending target order, with
// sub-array deduplication applied to each record (spec.md §4.6). The
// returned index maps each term id to the offset of its first record, so a
// reader indexed by term id can find where its run starts and walk forward
// until a record's lastBit is set.
func buildGotoData(a *lalr.Automaton, dedup *deduper, numTerms int) ([]uint16, []uint16) {
	bySymbol := map[grammar.TermID]map[int][]int{}
	for stateID, g := range a.Gotos {
		for term, target := range g {
			if bySymbol[term] == nil {
				bySymbol[term] = map[int][]int{}
			}
			bySymbol[term][target] = append(bySymbol[term][target], stateID)
		}
	}

	var terms []grammar.TermID
	for term := range bySymbol {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i] < terms[j] })

	index := make([]uint16, numTerms)
	for i := range index {
		index[i] = NoGotoOffset
	}

	var out []uint16
	for _, term := range terms {
		targets := bySymbol[term]
		var targetIDs []int
		for tid := range targets {
			targetIDs = append(targetIDs, tid)
		}
		sort.Ints(targetIDs)

		first := true
		for i, target := range targetIDs {
			sources := targets[target]
			sort.Ints(sources)
			last := i == len(targetIDs)-1

			header := uint16(len(sources))<<1
			if last {
				header |= 1
			}
			record := make([]uint16, 0, 2+len(sources))
			record = append(record, header, uint16(target))
			for _, s := range sources {
				record = append(record, uint16(s))
			}
			offset := dedup.intern(&out, record)
			if first {
				if int(term) >= 0 && int(term) < numTerms {
					index[term] = uint16(offset)
				}
				first = false
			}
		}
	}
	return out, index
}
