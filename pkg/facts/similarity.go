package facts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeText canonicalizes free text for comparison: NFKC normalization,
// Unicode case folding, and whitespace collapsing.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// tokenize splits normalized text into comparison tokens, stripping common
// punctuation so "grows." and "grows" corroborate each other.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeText(s)) {
		tok = strings.Trim(tok, ".,;:!?()[]\"'")
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// Similarity computes token Jaccard overlap across the combined
// subject+relation+object text of two facts, in [0,1].
func Similarity(a, b *Fact) float64 {
	ta := tokenize(a.Subject + " " + a.Relation + " " + a.Object)
	tb := tokenize(b.Subject + " " + b.Relation + " " + b.Object)

	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// SameSubject reports whether two facts refer to the same normalized subject.
func SameSubject(a, b *Fact) bool {
	return NormalizeText(a.Subject) == NormalizeText(b.Subject)
}

var negationCues = map[string]struct{}{
	"not":    {},
	"no":     {},
	"never":  {},
	"cannot": {},
}

// OppositePolarity reports whether exactly one of the two facts negates its
// claim. "X is viable" and "X is not viable" overlap on almost every token,
// but corroborating them would launder a contradiction into a promotion; the
// conflict resolver owns that pair instead.
func OppositePolarity(a, b *Fact) bool {
	return hasNegation(a) != hasNegation(b)
}

func hasNegation(f *Fact) bool {
	for tok := range tokenize(f.Relation + " " + f.Object) {
		if _, ok := negationCues[tok]; ok {
			return true
		}
	}
	return false
}
