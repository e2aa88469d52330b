package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercasing", "Solar Capacity", "solar capacity"},
		{"whitespace collapse", "  solar   capacity ", "solar capacity"},
		{"compatibility forms", "ﬁxed costs", "fixed costs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	mk := func(s, r, o string) *Fact {
		return &Fact{Subject: s, Relation: r, Object: o}
	}

	tests := []struct {
		name string
		a, b *Fact
		min  float64
		max  float64
	}{
		{
			name: "identical facts",
			a:    mk("solar capacity", "grows by", "20% annually"),
			b:    mk("solar capacity", "grows by", "20% annually"),
			min:  1.0, max: 1.0,
		},
		{
			name: "case and punctuation variations",
			a:    mk("Solar Capacity", "grows by", "20% annually."),
			b:    mk("solar capacity", "grows by", "20% annually"),
			min:  1.0, max: 1.0,
		},
		{
			name: "partial overlap",
			a:    mk("solar capacity", "grows by", "20% annually"),
			b:    mk("solar capacity", "increases", "modestly"),
			min:  0.2, max: 0.5,
		},
		{
			name: "unrelated facts",
			a:    mk("solar capacity", "grows by", "20% annually"),
			b:    mk("wind turbines", "cost", "less than coal"),
			min:  0.0, max: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := Similarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, sim, tt.min)
			assert.LessOrEqual(t, sim, tt.max)
			// Similarity is symmetric.
			assert.InDelta(t, sim, Similarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestSameSubject(t *testing.T) {
	a := &Fact{Subject: "Solar  Capacity"}
	b := &Fact{Subject: "solar capacity"}
	c := &Fact{Subject: "wind power"}

	assert.True(t, SameSubject(a, b))
	assert.False(t, SameSubject(a, c))
}

func TestOppositePolarity(t *testing.T) {
	plain := &Fact{Subject: "hydrogen", Relation: "is", Object: "viable today"}
	negated := &Fact{Subject: "hydrogen", Relation: "is", Object: "not viable today"}
	alsoNegated := &Fact{Subject: "hydrogen", Relation: "can never be", Object: "viable"}

	assert.True(t, OppositePolarity(plain, negated))
	assert.True(t, OppositePolarity(plain, alsoNegated))
	assert.False(t, OppositePolarity(plain, plain))
	assert.False(t, OppositePolarity(negated, alsoNegated))
}

func TestEquivalentRejectsOppositePolarity(t *testing.T) {
	policy := DefaultPromotionPolicy()
	plain := &Fact{Subject: "hydrogen", Relation: "is", Object: "commercially viable today"}
	negated := &Fact{Subject: "hydrogen", Relation: "is", Object: "not commercially viable today"}

	assert.Greater(t, Similarity(plain, negated), policy.SimilarityThreshold)
	assert.False(t, policy.Equivalent(plain, negated))
}
