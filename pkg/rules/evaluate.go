package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	autoerrors "github.com/cdmackie/automod-core/internal/errors"
)

// Engine evaluates a community's RuleSet against one event's EvalInput.
type Engine struct {
	regexes *regexCache
	logger  *slog.Logger
}

// NewEngine creates a rule Engine with its own regex compile cache. A
// forbidden or unrecognized field reference is logged through logger and
// evaluates to false rather than aborting the rule set.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{regexes: newRegexCache(), logger: logger}
}

// Match is the first enabled rule (in descending priority order) whose
// condition tree matched.
type Match struct {
	Rule Rule
}

// Evaluate walks rs in priority order and returns the first matching,
// enabled rule applicable to kind, skipping AI rules when aiAvailable is
// false (no AI analysis was run for this event). ok is false when nothing
// matched.
func (e *Engine) Evaluate(rs RuleSet, kind ContentType, in EvalInput, aiAvailable bool) (Match, bool, error) {
	ordered := sortedByPriority(rs.Rules)
	for _, rule := range ordered {
		if !rule.Enabled || !rule.AppliesTo(kind) {
			continue
		}
		if !aiAvailable && referencesAI(rule.Condition) {
			continue
		}
		matched, err := e.evalCondition(rule.Condition, in)
		if err != nil {
			return Match{}, false, fmt.Errorf("rule %q: %w", rule.ID, err)
		}
		if matched {
			return Match{Rule: rule}, true, nil
		}
	}
	return Match{}, false, nil
}

func referencesAI(c Condition) bool {
	if c.Nested != nil {
		for _, child := range c.Nested.Rules {
			if referencesAI(child) {
				return true
			}
		}
		return false
	}
	return c.Leaf != nil && c.Leaf.Operator == OperatorAI
}

// sortedByPriority returns rules in descending-priority order, ties broken
// on original array order (stable sort).
func sortedByPriority(rules []Rule) []Rule {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Priority > ordered[j-1].Priority; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

func (e *Engine) evalCondition(c Condition, in EvalInput) (bool, error) {
	if c.Nested != nil {
		return e.evalNested(*c.Nested, in)
	}
	if c.Leaf != nil {
		return e.evalLeaf(*c.Leaf, in)
	}
	return false, fmt.Errorf("empty condition")
}

func (e *Engine) evalNested(n NestedCondition, in EvalInput) (bool, error) {
	switch n.LogicalOperator {
	case LogicAnd:
		for _, child := range n.Rules {
			ok, err := e.evalCondition(child, in)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case LogicOr:
		for _, child := range n.Rules {
			ok, err := e.evalCondition(child, in)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case LogicNot:
		if len(n.Rules) != 1 {
			return false, fmt.Errorf("NOT requires exactly one child condition")
		}
		ok, err := e.evalCondition(n.Rules[0], in)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown logical operator %q", n.LogicalOperator)
	}
}

func (e *Engine) evalLeaf(leaf LeafCondition, in EvalInput) (bool, error) {
	switch leaf.Operator {
	case OperatorExpr:
		return e.evalExpression(leaf.Expression, in)
	case OperatorAI:
		answer, ok := in.AI.Lookup(leaf.QuestionID)
		if !ok {
			return false, nil
		}
		return string(answer.Answer) == fmt.Sprintf("%v", leaf.Value), nil
	}

	actual, err := resolveField(leaf.Field, in)
	if err != nil {
		var fieldErr *FieldError
		if errors.As(err, &fieldErr) {
			e.logSecurityViolation(leaf.Field, err)
			return false, nil
		}
		return false, err
	}
	// Missing/null resolves to false for every operator except explicit !=.
	if actual == nil {
		return leaf.Operator == OperatorNEQ, nil
	}

	switch leaf.Operator {
	case OperatorEQ:
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", leaf.Value), nil
	case OperatorNEQ:
		return fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", leaf.Value), nil
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE:
		return evalNumericComparison(leaf.Operator, actual, leaf.Value)
	case OperatorContains, OperatorNotContains:
		return evalContains(actual, leaf.Value, false, leaf.Operator == OperatorNotContains)
	case OperatorContainsI, OperatorNotContainsI:
		return evalContains(actual, leaf.Value, true, leaf.Operator == OperatorNotContainsI)
	case OperatorIn, OperatorNotIn:
		return evalMembership(actual, leaf.Value, leaf.Operator == OperatorNotIn)
	case OperatorRegex, OperatorRegexI:
		return e.evalRegex(leaf.Operator, actual, leaf.Value)
	default:
		return false, fmt.Errorf("unknown operator %q", leaf.Operator)
	}
}

func evalNumericComparison(op Operator, actual, expected any) (bool, error) {
	a, aok := toFloat(actual)
	b, bok := toFloat(expected)
	if !aok || !bok {
		return false, fmt.Errorf("%s requires numeric operands", op)
	}
	switch op {
	case OperatorGT:
		return a > b, nil
	case OperatorLT:
		return a < b, nil
	case OperatorGTE:
		return a >= b, nil
	case OperatorLTE:
		return a <= b, nil
	default:
		return false, fmt.Errorf("not a numeric operator: %q", op)
	}
}

// evalContains implements membership for arrays and substring match for
// strings, per spec.md §4.4.1.
func evalContains(actual, expected any, caseInsensitive, negate bool) (bool, error) {
	var result bool
	if list, ok := actual.([]string); ok {
		needle := fmt.Sprintf("%v", expected)
		for _, v := range list {
			if stringsEqual(v, needle, caseInsensitive) {
				result = true
				break
			}
		}
	} else {
		haystack := fmt.Sprintf("%v", actual)
		needle := fmt.Sprintf("%v", expected)
		if caseInsensitive {
			result = strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
		} else {
			result = strings.Contains(haystack, needle)
		}
	}
	if negate {
		return !result, nil
	}
	return result, nil
}

func stringsEqual(a, b string, caseInsensitive bool) bool {
	if caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func evalMembership(actual, expected any, negate bool) (bool, error) {
	seq, ok := expected.([]any)
	if !ok {
		return false, fmt.Errorf("in/not_in requires a sequence value")
	}
	actualStr := fmt.Sprintf("%v", actual)
	found := false
	for _, v := range seq {
		if fmt.Sprintf("%v", v) == actualStr {
			found = true
			break
		}
	}
	if negate {
		return !found, nil
	}
	return found, nil
}

// logSecurityViolation records a forbidden/unrecognized field reference.
// Per spec, this never aborts rule evaluation: the offending leaf simply
// evaluates to false.
func (e *Engine) logSecurityViolation(field string, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Warn("rule field reference rejected, evaluating to false",
		"field", field, "error", autoerrors.New(autoerrors.KindSecurityViolation, err))
}

// evalExpression runs a rule's "expr" operator. A forbidden/unrecognized
// field referenced by the expression evaluates the whole expression to
// false rather than propagating, matching evalLeaf's field-access contract.
func (e *Engine) evalExpression(expression string, in EvalInput) (bool, error) {
	ok, fieldErr, err := evalExpression(expression, in)
	if fieldErr != nil {
		e.logSecurityViolation(expression, fieldErr)
		return false, nil
	}
	return ok, err
}

func (e *Engine) evalRegex(op Operator, actual, pattern any) (bool, error) {
	raw := fmt.Sprintf("%v", pattern)
	if op == OperatorRegexI {
		raw = "(?i)" + raw
	}
	re, err := e.regexes.Compile(raw)
	if err != nil {
		// A rejected pattern never-matches rather than erroring the rule out.
		return false, nil
	}
	return re.MatchString(fmt.Sprintf("%v", actual)), nil
}
