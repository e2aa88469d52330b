package search

import (
	"time"
)

// Config tunes the search loop. All constants the selection formula and
// expansion pipeline use live here; nothing is hard-coded in the engine.
type Config struct {
	// ExplorationC scales the UCT exploration term.
	ExplorationC float64 `yaml:"exploration_c" json:"exploration_c" validate:"gte=0"`

	// CoverageWeight starts high and decays exponentially per iteration
	// toward CoverageFloor, shifting the run from exploration to
	// exploitation.
	CoverageWeight float64 `yaml:"coverage_weight" json:"coverage_weight" validate:"gte=0"`
	CoverageDecay  float64 `yaml:"coverage_decay" json:"coverage_decay" validate:"gte=0"`
	CoverageFloor  float64 `yaml:"coverage_floor" json:"coverage_floor" validate:"gte=0"`

	// PriorWeight scales the fast prior estimate's contribution.
	PriorWeight float64 `yaml:"prior_weight" json:"prior_weight" validate:"gte=0"`

	// FactWeight is the ceiling of the fact-quality bonus. The effective
	// weight ramps up linearly with store size until FactRampSize facts
	// exist, so an early accident of extraction cannot steer selection.
	FactWeight   float64 `yaml:"fact_weight" json:"fact_weight" validate:"gte=0"`
	FactRampSize int     `yaml:"fact_ramp_size" json:"fact_ramp_size" validate:"gt=0"`

	// Variants is the number of candidate reasoning chains per expansion.
	Variants int `yaml:"variants" json:"variants" validate:"gt=0"`

	// BranchingFactor caps sub-questions per decomposition.
	BranchingFactor int `yaml:"branching_factor" json:"branching_factor" validate:"gt=0"`

	// MaxDepth bounds the tree; MaxIterations bounds the run loop.
	MaxDepth      int `yaml:"max_depth" json:"max_depth" validate:"gt=0"`
	MaxIterations int `yaml:"max_iterations" json:"max_iterations" validate:"gt=0"`

	// ScoreThreshold is the axiom gate: an expansion whose chosen variant
	// scores below it prunes the node.
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold" validate:"gte=0,lte=1"`

	// ExpansionTimeout bounds each variant generation call. PriorTimeout
	// bounds the fast prior estimate and must stay well below it;
	// ExtractionTimeout bounds the claim extraction call.
	ExpansionTimeout  time.Duration `yaml:"expansion_timeout" json:"expansion_timeout"`
	PriorTimeout      time.Duration `yaml:"prior_timeout" json:"prior_timeout"`
	ExtractionTimeout time.Duration `yaml:"extraction_timeout" json:"extraction_timeout"`
}

// DefaultConfig returns the standard search tuning.
func DefaultConfig() Config {
	return Config{
		ExplorationC:      1.41,
		CoverageWeight:    0.5,
		CoverageDecay:     0.05,
		CoverageFloor:     0.1,
		PriorWeight:       0.3,
		FactWeight:        0.3,
		FactRampSize:      25,
		Variants:          3,
		BranchingFactor:   3,
		MaxDepth:          4,
		MaxIterations:     50,
		ScoreThreshold:    0.3,
		ExpansionTimeout:  60 * time.Second,
		PriorTimeout:      5 * time.Second,
		ExtractionTimeout: 20 * time.Second,
	}
}
