package rules

import (
	"encoding/json"
	"fmt"
)

// Operator is a leaf condition's comparison.
type Operator string

const (
	OperatorLT  Operator = "<"
	OperatorGT  Operator = ">"
	OperatorLTE Operator = "<="
	OperatorGTE Operator = ">="
	OperatorEQ  Operator = "=="
	OperatorNEQ Operator = "!="

	OperatorContains      Operator = "contains"
	OperatorNotContains   Operator = "not_contains"
	OperatorContainsI     Operator = "contains_i"
	OperatorNotContainsI  Operator = "not_contains_i"

	OperatorIn    Operator = "in"
	OperatorNotIn Operator = "not_in"

	OperatorRegex  Operator = "regex"
	OperatorRegexI Operator = "regex_i"

	// OperatorAI matches a leaf against a previously answered AI question.
	OperatorAI Operator = "ai"

	// OperatorExpr runs the leaf's Expression through the safe-expression
	// evaluator instead of comparing Field against Value.
	OperatorExpr Operator = "expr"
)

// normalizeOperator accepts the older "aiQuestion" alias.
func normalizeOperator(raw string) Operator {
	if raw == "aiQuestion" {
		return OperatorAI
	}
	return Operator(raw)
}

// Logic joins a Nested condition's children. NOT is a supplement beyond the
// two the authoritative rules format names, kept because it composes
// naturally with the same evaluator and costs nothing in the wire format.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
	LogicNot Logic = "NOT"
)

func normalizeLogic(raw string) Logic {
	switch raw {
	case "and":
		return LogicAnd
	case "or":
		return LogicOr
	case "not":
		return LogicNot
	default:
		return Logic(raw)
	}
}

// maxConditionDepth bounds nested condition trees so a malicious or
// malformed rule set cannot blow the evaluation stack.
const maxConditionDepth = 10

// Condition is a tagged sum type: exactly one of Leaf or Nested is set.
// A condition tree is built this way (rather than as an interface) so it
// round-trips through JSON without a custom MarshalJSON per node kind.
type Condition struct {
	Leaf   *LeafCondition
	Nested *NestedCondition
}

// LeafCondition compares one allow-listed field against a value.
type LeafCondition struct {
	Field      string   `json:"field"`
	Operator   Operator `json:"operator"`
	Value      any      `json:"value,omitempty"`
	QuestionID string   `json:"questionId,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

// NestedCondition combines child conditions, arena-style: children are a
// plain slice, never a pointer back up, so the tree is trivially
// round-trippable through encoding/json.
type NestedCondition struct {
	LogicalOperator Logic       `json:"logicalOperator"`
	Rules           []Condition `json:"rules"`
}

// MarshalJSON flattens the tagged union back to the wire shape: a nested
// node carries "logicalOperator"/"rules", a leaf carries "field"/"operator"/...
func (c Condition) MarshalJSON() ([]byte, error) {
	if c.Nested != nil {
		return json.Marshal(c.Nested)
	}
	if c.Leaf != nil {
		return json.Marshal(c.Leaf)
	}
	return []byte("null"), nil
}

func parseCondition(raw json.RawMessage, depth int) (Condition, error) {
	if depth > maxConditionDepth {
		return Condition{}, fmt.Errorf("condition tree exceeds max depth %d", maxConditionDepth)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return Condition{}, fmt.Errorf("missing condition")
	}

	var probe struct {
		LogicalOperator string `json:"logicalOperator"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Condition{}, fmt.Errorf("decoding condition: %w", err)
	}

	if probe.LogicalOperator != "" {
		var wire struct {
			LogicalOperator string            `json:"logicalOperator"`
			Rules           []json.RawMessage `json:"rules"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return Condition{}, fmt.Errorf("decoding nested condition: %w", err)
		}
		children := make([]Condition, 0, len(wire.Rules))
		for i, childRaw := range wire.Rules {
			child, err := parseCondition(childRaw, depth+1)
			if err != nil {
				return Condition{}, fmt.Errorf("child %d: %w", i, err)
			}
			children = append(children, child)
		}
		return Condition{Nested: &NestedCondition{LogicalOperator: normalizeLogic(wire.LogicalOperator), Rules: children}}, nil
	}

	var leaf LeafCondition
	if err := json.Unmarshal(raw, &leaf); err != nil {
		return Condition{}, fmt.Errorf("decoding leaf condition: %w", err)
	}
	leaf.Operator = normalizeOperator(string(leaf.Operator))
	return Condition{Leaf: &leaf}, nil
}
