// Package axiom evaluates content against a declarative value-rule set,
// producing alignment scores and pass/fail verdicts.
package axiom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// Priority levels order conflict tie-breaking and aggregation weight. They
// never drive selection order directly.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns the aggregation weight for this priority level.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.7
	case PriorityMedium:
		return 0.4
	case PriorityLow:
		return 0.2
	default:
		return 0.4
	}
}

// Mode selects how a rule is evaluated.
type Mode string

const (
	// ModeRule applies a closed-form condition over numeric fields.
	ModeRule Mode = "rule"
	// ModeModel delegates the verdict to the generation service.
	ModeModel Mode = "model"
)

// Op is a comparison operator in a rule condition.
type Op string

const (
	OpLT Op = "lt"
	OpLE Op = "le"
	OpGT Op = "gt"
	OpGE Op = "ge"
	OpEQ Op = "eq"
	OpNE Op = "ne"
)

// Condition is a typed, closed-interpreter replacement for free-form
// condition strings: the rule is violated when `field op threshold` holds.
type Condition struct {
	Field     string  `yaml:"field" json:"field"`
	Op        Op      `yaml:"op" json:"op"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// Validate checks the condition is well-formed.
func (c *Condition) Validate() error {
	if c.Field == "" {
		return errors.New(errors.InvalidInput, "condition requires a field name")
	}
	switch c.Op {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
		return nil
	default:
		return errors.WithFields(
			errors.New(errors.InvalidInput, "unknown condition operator"),
			errors.Fields{"op": string(c.Op)},
		)
	}
}

// Holds evaluates the condition against a field value.
func (c *Condition) Holds(value float64) bool {
	switch c.Op {
	case OpLT:
		return value < c.Threshold
	case OpLE:
		return value <= c.Threshold
	case OpGT:
		return value > c.Threshold
	case OpGE:
		return value >= c.Threshold
	case OpEQ:
		return value == c.Threshold
	case OpNE:
		return value != c.Threshold
	default:
		return false
	}
}

func (c *Condition) String() string {
	return fmt.Sprintf("%s %s %g", c.Field, c.Op, c.Threshold)
}

// Rule is one declarative value rule.
type Rule struct {
	ID        string     `yaml:"id" json:"id"`
	Category  string     `yaml:"category" json:"category"`
	Statement string     `yaml:"statement" json:"statement"`
	Priority  Priority   `yaml:"priority" json:"priority"`
	Mode      Mode       `yaml:"mode" json:"mode"`
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
	Enabled   bool       `yaml:"enabled" json:"enabled"`
}

// Validate checks the rule is well-formed.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.New(errors.InvalidInput, "rule requires an id")
	}
	switch r.Mode {
	case ModeRule:
		if r.Condition == nil {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "rule-based rules require a condition"),
				errors.Fields{"rule_id": r.ID},
			)
		}
		return r.Condition.Validate()
	case ModeModel:
		return nil
	default:
		return errors.WithFields(
			errors.New(errors.InvalidInput, "unknown evaluation mode"),
			errors.Fields{"rule_id": r.ID, "mode": string(r.Mode)},
		)
	}
}

// Content is the unit of evaluation: free text plus any numeric fields the
// caller extracted from it.
type Content struct {
	Text   string
	Fields map[string]float64
}

// FactContent builds evaluation content from a subject/relation/object
// triple, extracting a numeric field from the object when one is present.
func FactContent(subject, relation, object string, confidence float64) Content {
	fields := map[string]float64{"confidence": confidence}
	if v, ok := leadingNumber(object); ok {
		fields["value"] = v
	}
	return Content{
		Text:   strings.TrimSpace(subject + " " + relation + " " + object),
		Fields: fields,
	}
}

// leadingNumber parses a number from the start of free text, tolerating
// sign prefixes and percent/unit suffixes ("20% annually" -> 20).
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
