package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondera-ai/pondera/pkg/axiom"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "memory", cfg.Facts.Backend)
	assert.False(t, cfg.Offline)
	assert.NotEmpty(t, cfg.Axioms)
	for _, rule := range cfg.Axioms {
		assert.NoError(t, rule.Validate(), "rule %s", rule.ID)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
offline: true
search:
  max_depth: 2
  max_iterations: 10
budget:
  total: 5000
facts:
  similarity_threshold: 0.8
`))
	require.NoError(t, err)

	assert.True(t, cfg.Offline)
	assert.Equal(t, 2, cfg.Search.MaxDepth)
	assert.Equal(t, 10, cfg.Search.MaxIterations)
	assert.Equal(t, int64(5000), cfg.Budget.Total)
	assert.InDelta(t, 0.8, cfg.Facts.SimilarityThreshold, 1e-9)

	// Untouched sections keep defaults.
	assert.Equal(t, Default().Search.Variants, cfg.Search.Variants)
	assert.Equal(t, Default().Budget.BaseAllocation, cfg.Budget.BaseAllocation)
}

func TestParseAxiomRules(t *testing.T) {
	cfg, err := Parse([]byte(`
axioms:
  - id: max-claim-value
    category: plausibility
    statement: Values above 100 are implausible.
    priority: critical
    mode: rule
    condition:
      field: value
      op: gt
      threshold: 100
    enabled: true
`))
	require.NoError(t, err)

	require.Len(t, cfg.Axioms, 1)
	rule := cfg.Axioms[0]
	assert.Equal(t, "max-claim-value", rule.ID)
	assert.Equal(t, axiom.PriorityCritical, rule.Priority)
	require.NotNil(t, rule.Condition)
	assert.Equal(t, axiom.OpGT, rule.Condition.Op)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative depth", "search:\n  max_depth: -1"},
		{"bad log level", "logging:\n  level: LOUD"},
		{"bad reward weights", "reward:\n  axiom_weight: 0.9"},
		{"min over max allocation", "budget:\n  min_allocation: 5000\n  max_allocation: 100"},
		{"sqlite facts without path", "facts:\n  backend: sqlite"},
		{"sqlite cache without path", "cache:\n  backend: sqlite"},
		{"rule without condition", "axioms:\n  - id: r1\n    mode: rule\n    enabled: true"},
		{"not yaml", "search: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/no/such/config.yaml")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("offline: true\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Offline)
}

func TestNormalizeClampsTimeout(t *testing.T) {
	cfg := Default()
	cfg.Search.ExpansionTimeout = time.Millisecond
	cfg.Normalize()
	assert.Equal(t, time.Second, cfg.Search.ExpansionTimeout)
}

func TestFactsPolicy(t *testing.T) {
	cfg := Default()
	policy := cfg.Facts.Policy(nil)

	want := facts.DefaultPromotionPolicy()
	assert.Equal(t, want.SimilarityThreshold, policy.SimilarityThreshold)
	assert.Equal(t, want.CorroborateSources, policy.CorroborateSources)
	assert.Equal(t, want.VerifySources, policy.VerifySources)
	assert.Nil(t, policy.Checker)
}

func TestBuildLoggerWithFile(t *testing.T) {
	cfg := Default()
	cfg.Logging.FilePath = filepath.Join(t.TempDir(), "run.log")

	logger, err := cfg.BuildLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
