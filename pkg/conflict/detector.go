package conflict

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/facts"
)

// antonymPairs are contradiction cues over normalized claim tokens. Both
// directions are checked, so each pair is listed once.
var antonymPairs = [][2]string{
	{"grows", "shrinks"},
	{"grow", "shrink"},
	{"growing", "shrinking"},
	{"increases", "decreases"},
	{"increase", "decrease"},
	{"increasing", "decreasing"},
	{"rises", "falls"},
	{"rising", "falling"},
	{"improves", "worsens"},
	{"improving", "worsening"},
	{"expands", "contracts"},
	{"gains", "loses"},
	{"accelerates", "decelerates"},
	{"positive", "negative"},
	{"feasible", "infeasible"},
	{"safe", "unsafe"},
	{"profitable", "unprofitable"},
	{"supports", "opposes"},
	{"above", "below"},
	{"up", "down"},
}

var negationTokens = map[string]struct{}{
	"not":    {},
	"no":     {},
	"never":  {},
	"cannot": {},
	"wont":   {},
	"isnt":   {},
	"doesnt": {},
}

// Detector finds contradictions between facts sharing a subject. Detection is
// deterministic: the same fact set always yields the same conflict list, and a
// pair appears at most once.
type Detector struct {
	clock core.Clock
}

// NewDetector creates a detector. A nil clock uses wall time.
func NewDetector(clock core.Clock) *Detector {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Detector{clock: clock}
}

// DetectAll scans the whole store. O(k^2) per subject group; prefer DetectNew
// on the hot path.
func (d *Detector) DetectAll(ctx context.Context, store facts.Store) ([]*Conflict, error) {
	all, err := store.All(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]*facts.Fact)
	for _, f := range all {
		key := facts.NormalizeText(f.Subject)
		groups[key] = append(groups[key], f)
	}

	var out []*Conflict
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if c := d.compare(group[i], group[j]); c != nil {
					out = append(out, c)
				}
			}
		}
	}
	sortConflicts(out)
	return out, nil
}

// DetectNew checks only the added facts against the rest of their subject
// groups, the incremental path the search engine uses after each expansion.
func (d *Detector) DetectNew(ctx context.Context, store facts.Store, added []*facts.Fact) ([]*Conflict, error) {
	var out []*Conflict
	seen := make(map[[2]string]struct{})

	for _, f := range added {
		group, err := store.BySubject(ctx, f.Subject)
		if err != nil {
			return nil, err
		}
		for _, other := range group {
			if other.ID == f.ID {
				continue
			}
			c := d.compare(f, other)
			if c == nil {
				continue
			}
			key := [2]string{c.FactA, c.FactB}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}
	sortConflicts(out)
	return out, nil
}

func sortConflicts(cs []*Conflict) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].FactA != cs[j].FactA {
			return cs[i].FactA < cs[j].FactA
		}
		return cs[i].FactB < cs[j].FactB
	})
}

// compare classifies one pair, or returns nil when the facts are compatible.
func (d *Detector) compare(a, b *facts.Fact) *Conflict {
	if !facts.SameSubject(a, b) {
		return nil
	}

	kind, ok := classify(a, b)
	if !ok {
		return nil
	}

	// Two confident contradicting facts are worse than a confident fact
	// against a shaky one.
	severity := (a.EffectiveConfidence() + b.EffectiveConfidence()) / 2
	return newConflict(a.ID, b.ID, kind, severity, d.clock.Now())
}

func classify(a, b *facts.Fact) (Kind, bool) {
	aClaim := claimTokens(a)
	bClaim := claimTokens(b)

	if hasAntonym(aClaim, bClaim) {
		return KindDirectContradiction, true
	}
	if isNegation(aClaim, bClaim) {
		return KindNegation, true
	}
	if isNumericMismatch(a, b) {
		return KindNumericMismatch, true
	}
	return "", false
}

func claimTokens(f *facts.Fact) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(facts.NormalizeText(f.Relation + " " + f.Object)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		tok = strings.ReplaceAll(tok, "'", "")
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}

func hasAntonym(a, b map[string]struct{}) bool {
	for _, pair := range antonymPairs {
		if contains(a, pair[0]) && contains(b, pair[1]) {
			return true
		}
		if contains(a, pair[1]) && contains(b, pair[0]) {
			return true
		}
	}
	return false
}

// isNegation holds when exactly one claim carries a negation token and the
// claims otherwise overlap enough to be about the same assertion.
func isNegation(a, b map[string]struct{}) bool {
	aNeg := stripNegation(a)
	bNeg := stripNegation(b)
	if aNeg == bNeg {
		return false
	}
	return jaccard(a, b) >= 0.5
}

// stripNegation removes negation tokens in place and reports whether any were
// present.
func stripNegation(tokens map[string]struct{}) bool {
	found := false
	for tok := range negationTokens {
		if _, ok := tokens[tok]; ok {
			delete(tokens, tok)
			found = true
		}
	}
	return found
}

// isNumericMismatch holds when both objects open with a number and the values
// differ in sign or by more than half relative to the larger magnitude. The
// relations must overlap so "costs 10" never conflicts with "weighs 200".
func isNumericMismatch(a, b *facts.Fact) bool {
	av, aok := leadingNumber(a.Object)
	bv, bok := leadingNumber(b.Object)
	if !aok || !bok {
		return false
	}
	if jaccard(relationTokens(a), relationTokens(b)) < 0.5 {
		return false
	}
	if av == bv {
		return false
	}
	if (av < 0) != (bv < 0) {
		return true
	}
	larger := math.Max(math.Abs(av), math.Abs(bv))
	if larger == 0 {
		return false
	}
	return math.Abs(av-bv)/larger > 0.5
}

func relationTokens(f *facts.Fact) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(facts.NormalizeText(f.Relation)) {
		out[tok] = struct{}{}
	}
	return out
}

func leadingNumber(s string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, false
	}
	tok := strings.TrimRight(fields[0], "%,.")
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func contains(set map[string]struct{}, tok string) bool {
	_, ok := set[tok]
	return ok
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if contains(b, tok) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
