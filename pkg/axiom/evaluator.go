package axiom

import (
	"context"
	"fmt"
	"time"

	"github.com/pondera-ai/pondera/pkg/core"
	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
	"github.com/pondera-ai/pondera/pkg/utils"
)

// Result is the verdict of one rule against one piece of content.
type Result struct {
	RuleID      string   `json:"rule_id"`
	Priority    Priority `json:"priority"`
	Score       float64  `json:"score"`
	Violated    bool     `json:"violated"`
	Explanation string   `json:"explanation"`
}

// WeightedScore aggregates all enabled rules into a single alignment score.
type WeightedScore struct {
	Score             float64  `json:"score"`
	Results           []Result `json:"results"`
	CriticalViolation bool     `json:"critical_violation"`
}

const neutralScore = 0.5

// evaluationPrompt is the fixed template for model-based rules. The model
// must answer with a JSON verdict.
const evaluationPrompt = `You are evaluating content against a value rule.

Rule: %s

Content:
%s

Respond with only a JSON object: {"score": <0.0-1.0>, "violated": <true|false>, "explanation": "<one sentence>"}`

// Evaluator scores content against the enabled rule set. Model-based
// evaluation absorbs every generation failure into a neutral verdict;
// evaluation never throws past this boundary.
type Evaluator struct {
	rules   []Rule
	service core.GenerationService
	state   *core.RunState
	timeout time.Duration
}

// NewEvaluator creates an evaluator over a rule set. The service may be nil
// when every rule is rule-based.
func NewEvaluator(rules []Rule, service core.GenerationService, state *core.RunState, timeout time.Duration) (*Evaluator, error) {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, err
		}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Evaluator{
		rules:   rules,
		service: service,
		state:   state,
		timeout: timeout,
	}, nil
}

// Rules returns the configured rule set.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate scores content against one rule.
func (e *Evaluator) Evaluate(ctx context.Context, content Content, rule Rule) Result {
	switch rule.Mode {
	case ModeModel:
		return e.evaluateModel(ctx, content, rule)
	default:
		return e.evaluateCondition(content, rule)
	}
}

func (e *Evaluator) evaluateCondition(content Content, rule Rule) Result {
	value, ok := content.Fields[rule.Condition.Field]
	if !ok {
		// The rule's field is absent from this content: not applicable.
		return Result{
			RuleID:      rule.ID,
			Priority:    rule.Priority,
			Score:       1.0,
			Explanation: fmt.Sprintf("field %q not present, rule not applicable", rule.Condition.Field),
		}
	}

	if rule.Condition.Holds(value) {
		return Result{
			RuleID:      rule.ID,
			Priority:    rule.Priority,
			Score:       0.0,
			Violated:    true,
			Explanation: fmt.Sprintf("condition %s holds for value %g", rule.Condition, value),
		}
	}
	return Result{
		RuleID:      rule.ID,
		Priority:    rule.Priority,
		Score:       1.0,
		Explanation: fmt.Sprintf("condition %s does not hold for value %g", rule.Condition, value),
	}
}

func (e *Evaluator) evaluateModel(ctx context.Context, content Content, rule Rule) Result {
	neutral := Result{
		RuleID:      rule.ID,
		Priority:    rule.Priority,
		Score:       neutralScore,
		Explanation: "model evaluation unavailable, neutral verdict",
	}

	if e.service == nil {
		return neutral
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.service.Generate(callCtx,
		fmt.Sprintf(evaluationPrompt, rule.Statement, content.Text),
		core.WithCapability(core.CapabilityValidation),
		core.WithQuality(core.QualityFast),
	)
	if err != nil {
		e.recordFailure(ctx, err)
		return neutral
	}

	verdict, err := utils.ParseJSONResponse(resp.Content)
	if err != nil {
		if e.state != nil {
			e.state.RecordParseFailure()
		}
		return neutral
	}

	score, okScore := verdict["score"].(float64)
	violated, okViolated := verdict["violated"].(bool)
	if !okScore || !okViolated || score < 0 || score > 1 {
		if e.state != nil {
			e.state.RecordParseFailure()
		}
		return neutral
	}

	explanation, _ := verdict["explanation"].(string)
	return Result{
		RuleID:      rule.ID,
		Priority:    rule.Priority,
		Score:       score,
		Violated:    violated,
		Explanation: explanation,
	}
}

func (e *Evaluator) recordFailure(ctx context.Context, err error) {
	if e.state == nil {
		return
	}
	if errors.CodeOf(err) == errors.Timeout {
		e.state.RecordTimeout()
	}
	e.state.Logger.Debug(ctx, "model-based axiom evaluation failed: %v", err)
}

// EvaluateAll aggregates every enabled rule into a single score weighted by
// priority. With no enabled rules nothing can be violated and the score is 1.
func (e *Evaluator) EvaluateAll(ctx context.Context, content Content) WeightedScore {
	var (
		results     []Result
		weightedSum float64
		totalWeight float64
		critical    bool
	)

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		result := e.Evaluate(ctx, content, rule)
		results = append(results, result)

		w := rule.Priority.Weight()
		weightedSum += w * result.Score
		totalWeight += w

		if result.Violated && rule.Priority == PriorityCritical {
			critical = true
		}
	}

	score := 1.0
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}

	return WeightedScore{
		Score:             score,
		Results:           results,
		CriticalViolation: critical,
	}
}

// CheckFact implements facts.AxiomChecker: a fact passes when its evaluation
// carries no critical violation.
func (e *Evaluator) CheckFact(ctx context.Context, f *facts.Fact) bool {
	content := FactContent(f.Subject, f.Relation, f.Object, f.Confidence)
	return !e.EvaluateAll(ctx, content).CriticalViolation
}

var _ facts.AxiomChecker = (*Evaluator)(nil)
