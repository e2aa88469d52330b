// Package config aggregates every tunable in the system into one YAML-backed
// document: generation service, caching, search, budget, fact promotion,
// value rules, conflict resolution, and sessions.
package config

import (
	"time"

	"github.com/pondera-ai/pondera/pkg/axiom"
	"github.com/pondera-ai/pondera/pkg/budget"
	"github.com/pondera-ai/pondera/pkg/cache"
	"github.com/pondera-ai/pondera/pkg/conflict"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/llms"
	"github.com/pondera-ai/pondera/pkg/logging"
	"github.com/pondera-ai/pondera/pkg/reward"
	"github.com/pondera-ai/pondera/pkg/search"
	"github.com/pondera-ai/pondera/pkg/session"
)

// Config is the root configuration document.
type Config struct {
	Logging LoggingConfig `yaml:"logging,omitempty"`
	LLM     llms.Config   `yaml:"llm,omitempty"`

	// Offline replaces the Anthropic service with the deterministic stub.
	Offline bool `yaml:"offline,omitempty"`

	Cache   cache.Config   `yaml:"cache,omitempty"`
	Session session.Config `yaml:"session,omitempty"`

	Search   search.Config   `yaml:"search,omitempty"`
	Budget   budget.Config   `yaml:"budget,omitempty"`
	Reward   reward.Config   `yaml:"reward,omitempty"`
	Conflict conflict.Config `yaml:"conflict,omitempty"`

	Facts  FactsConfig  `yaml:"facts,omitempty"`
	Axioms []axiom.Rule `yaml:"axioms,omitempty"`
}

// LoggingConfig configures the singleton logger.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR, FATAL.
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// FilePath duplicates log output to a file when set.
	FilePath string `yaml:"file_path,omitempty"`
}

// FactsConfig configures the fact store and its promotion thresholds.
type FactsConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database file. Ignored for the memory backend.
	Path string `yaml:"path,omitempty"`

	// SimilarityThreshold is the minimum token overlap for corroboration.
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`

	// CorroborateSources and CorroborateConfidence gate unverified → corroborated.
	CorroborateSources    int     `yaml:"corroborate_sources" validate:"min=1"`
	CorroborateConfidence float64 `yaml:"corroborate_confidence" validate:"gte=0,lte=1"`

	// VerifySources gates corroborated → verified.
	VerifySources int `yaml:"verify_sources" validate:"min=1"`
}

// Policy converts the thresholds into the store's promotion policy. The
// axiom checker is wired separately because it needs a live evaluator.
func (c FactsConfig) Policy(checker facts.AxiomChecker) facts.PromotionPolicy {
	return facts.PromotionPolicy{
		SimilarityThreshold:   c.SimilarityThreshold,
		CorroborateSources:    c.CorroborateSources,
		CorroborateConfidence: c.CorroborateConfidence,
		VerifySources:         c.VerifySources,
		Checker:               checker,
	}
}

// Default returns the full default configuration: offline disabled, memory
// backends everywhere, and a starter rule set that blocks fabricated
// statistics and implausible claims.
func Default() *Config {
	promotion := facts.DefaultPromotionPolicy()
	return &Config{
		Logging:  LoggingConfig{Level: "INFO"},
		LLM:      llms.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Session:  session.DefaultConfig(),
		Search:   search.DefaultConfig(),
		Budget:   budget.DefaultConfig(),
		Reward:   reward.DefaultConfig(),
		Conflict: conflict.DefaultConfig(),
		Facts: FactsConfig{
			Backend:               "memory",
			SimilarityThreshold:   promotion.SimilarityThreshold,
			CorroborateSources:    promotion.CorroborateSources,
			CorroborateConfidence: promotion.CorroborateConfidence,
			VerifySources:         promotion.VerifySources,
		},
		Axioms: DefaultAxioms(),
	}
}

// DefaultAxioms is the starter value-rule set.
func DefaultAxioms() []axiom.Rule {
	return []axiom.Rule{
		{
			ID:        "no-fabricated-statistics",
			Category:  "integrity",
			Statement: "Claims must not present fabricated or unsourced statistics as established fact.",
			Priority:  axiom.PriorityCritical,
			Mode:      axiom.ModeModel,
			Enabled:   true,
		},
		{
			ID:        "implausible-growth",
			Category:  "plausibility",
			Statement: "Growth figures above 1000 percent are implausible without extraordinary sourcing.",
			Priority:  axiom.PriorityHigh,
			Mode:      axiom.ModeRule,
			Condition: &axiom.Condition{Field: "value", Op: axiom.OpGT, Threshold: 1000},
			Enabled:   true,
		},
		{
			ID:        "grounded-conclusions",
			Category:  "reasoning",
			Statement: "Conclusions must follow from the evidence presented in the reasoning steps.",
			Priority:  axiom.PriorityMedium,
			Mode:      axiom.ModeModel,
			Enabled:   true,
		},
	}
}

// BuildLogger constructs a logger from the logging section and installs it as
// the process singleton.
func (c *Config) BuildLogger() (*logging.Logger, error) {
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if c.Logging.FilePath != "" {
		fileOut, err := logging.NewFileOutput(c.Logging.FilePath)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, fileOut)
	}

	level := c.Logging.Level
	if level == "" {
		level = "INFO"
	}

	logger := logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(level),
		Outputs:  outputs,
	})
	logging.SetLogger(logger)
	return logger, nil
}

const minExpansionTimeout = time.Second

// Normalize clamps sub-second expansion timeouts up to one second.
func (c *Config) Normalize() {
	if c.Search.ExpansionTimeout > 0 && c.Search.ExpansionTimeout < minExpansionTimeout {
		c.Search.ExpansionTimeout = minExpansionTimeout
	}
}
