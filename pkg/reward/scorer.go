// Package reward scores individual reasoning steps. A step score blends three
// normalized sub-scores: axiom compliance, logical consistency with the steps
// before it, and evidence strength. Consistency and evidence each run in a
// cheap heuristic mode or a model-backed mode; model failures collapse to a
// neutral 0.5 so scoring never halts a run.
package reward

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pondera-ai/pondera/pkg/axiom"
	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/utils"
)

// Mode selects how a sub-score is computed.
type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeModel     Mode = "model"
)

const neutralScore = 0.5

// Config tunes the step scorer. Weights must sum to 1.
type Config struct {
	AxiomWeight       float64 `yaml:"axiom_weight" json:"axiom_weight" validate:"gte=0,lte=1"`
	ConsistencyWeight float64 `yaml:"consistency_weight" json:"consistency_weight" validate:"gte=0,lte=1"`
	EvidenceWeight    float64 `yaml:"evidence_weight" json:"evidence_weight" validate:"gte=0,lte=1"`

	ConsistencyMode Mode          `yaml:"consistency_mode" json:"consistency_mode" validate:"oneof=heuristic model"`
	EvidenceMode    Mode          `yaml:"evidence_mode" json:"evidence_mode" validate:"oneof=heuristic model"`
	ModelTimeout    time.Duration `yaml:"model_timeout" json:"model_timeout"`
}

// DefaultConfig returns the standard 40/40/20 blend with heuristic sub-scores.
func DefaultConfig() Config {
	return Config{
		AxiomWeight:       0.4,
		ConsistencyWeight: 0.4,
		EvidenceWeight:    0.2,
		ConsistencyMode:   ModeHeuristic,
		EvidenceMode:      ModeHeuristic,
		ModelTimeout:      10 * time.Second,
	}
}

// Validate checks the weight blend.
func (c Config) Validate() error {
	sum := c.AxiomWeight + c.ConsistencyWeight + c.EvidenceWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "step score weights must sum to 1"),
			errors.Fields{"sum": sum},
		)
	}
	return nil
}

// StepScore is the scored breakdown for one reasoning step.
type StepScore struct {
	Axiom       float64 `json:"axiom"`
	Consistency float64 `json:"consistency"`
	Evidence    float64 `json:"evidence"`
	Total       float64 `json:"total"`
}

// Scorer scores reasoning steps. The evaluator and service may be nil; a nil
// evaluator scores axiom compliance as 1 and a nil service forces heuristic
// modes.
type Scorer struct {
	cfg       Config
	evaluator *axiom.Evaluator
	service   core.GenerationService
	state     *core.RunState
}

// NewScorer creates a step scorer.
func NewScorer(cfg Config, evaluator *axiom.Evaluator, service core.GenerationService, state *core.RunState) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 10 * time.Second
	}
	return &Scorer{cfg: cfg, evaluator: evaluator, service: service, state: state}, nil
}

// ScoreStep scores one step given the steps that precede it.
func (s *Scorer) ScoreStep(ctx context.Context, step string, prior []string) StepScore {
	score := StepScore{
		Axiom:       s.axiomScore(ctx, step),
		Consistency: s.subScore(ctx, s.cfg.ConsistencyMode, consistencyHeuristic, consistencyPrompt, step, prior),
		Evidence:    s.subScore(ctx, s.cfg.EvidenceMode, evidenceHeuristic, evidencePrompt, step, nil),
	}
	score.Total = s.cfg.AxiomWeight*score.Axiom +
		s.cfg.ConsistencyWeight*score.Consistency +
		s.cfg.EvidenceWeight*score.Evidence
	return score
}

// ScoreSteps scores an ordered chain, returning per-step scores plus the mean
// and minimum totals used for variant selection.
func (s *Scorer) ScoreSteps(ctx context.Context, steps []string) (scores []StepScore, mean, min float64) {
	if len(steps) == 0 {
		return nil, 0, 0
	}
	scores = make([]StepScore, len(steps))
	min = math.Inf(1)
	var sum float64
	for i, step := range steps {
		scores[i] = s.ScoreStep(ctx, step, steps[:i])
		sum += scores[i].Total
		if scores[i].Total < min {
			min = scores[i].Total
		}
	}
	return scores, sum / float64(len(steps)), min
}

// axiomScore averages (1 if not violated else 0) over applicable rules.
func (s *Scorer) axiomScore(ctx context.Context, step string) float64 {
	if s.evaluator == nil {
		return 1.0
	}
	weighted := s.evaluator.EvaluateAll(ctx, axiom.Content{Text: step})
	if len(weighted.Results) == 0 {
		return 1.0
	}
	passing := 0
	for _, r := range weighted.Results {
		if !r.Violated {
			passing++
		}
	}
	return float64(passing) / float64(len(weighted.Results))
}

func (s *Scorer) subScore(ctx context.Context, mode Mode, heuristic func(string, []string) float64, prompt string, step string, prior []string) float64 {
	if mode == ModeModel && s.service != nil {
		return s.modelScore(ctx, prompt, step, prior)
	}
	return heuristic(step, prior)
}

const consistencyPrompt = `Rate how well this reasoning step follows from the steps before it, on a scale of 0.0 to 1.0.

Previous steps:
%s

Step:
%s

Respond with only a JSON object: {"score": <0.0-1.0>}`

const evidencePrompt = `Rate how well this reasoning step is supported by cited evidence, data, or sources, on a scale of 0.0 to 1.0.

Previous steps:
%s

Step:
%s

Respond with only a JSON object: {"score": <0.0-1.0>}`

func (s *Scorer) modelScore(ctx context.Context, prompt, step string, prior []string) float64 {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ModelTimeout)
	defer cancel()

	priorText := "(none)"
	if len(prior) > 0 {
		priorText = strings.Join(prior, "\n")
	}

	resp, err := s.service.Generate(callCtx,
		fmt.Sprintf(prompt, priorText, step),
		core.WithCapability(core.CapabilityValidation),
		core.WithQuality(core.QualityFast),
	)
	if err != nil {
		if s.state != nil && errors.CodeOf(err) == errors.Timeout {
			s.state.RecordTimeout()
		}
		return neutralScore
	}

	verdict, err := utils.ParseJSONResponse(resp.Content)
	if err != nil {
		if s.state != nil {
			s.state.RecordParseFailure()
		}
		return neutralScore
	}
	score, ok := verdict["score"].(float64)
	if !ok || score < 0 || score > 1 {
		if s.state != nil {
			s.state.RecordParseFailure()
		}
		return neutralScore
	}
	return score
}
