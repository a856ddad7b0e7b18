package rules

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
)

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*`)

// evalExpression runs a rule's "expr" operator: a safe-expression escape
// hatch for conditions the leaf operators can't express directly (numeric
// formulas, multi-field comparisons). Every identifier the expression
// references must itself pass the same field allow-list as a leaf
// condition — expr-lang's compiled sandbox never touches Go reflection
// beyond the map of values we hand it.
//
// fieldErr is set, distinct from err, when an identifier fails field-access
// validation: the caller fails that closed to false rather than treating it
// as a rule evaluation error.
func evalExpression(expression string, in EvalInput) (ok bool, fieldErr, err error) {
	if len(expression) > maxPatternLen*2 {
		return false, nil, fmt.Errorf("expression exceeds max length")
	}

	env, ferr := buildExprEnv(expression, in)
	if ferr != nil {
		return false, ferr, nil
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, nil, fmt.Errorf("compiling expression: %w", err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, nil, fmt.Errorf("running expression: %w", err)
	}

	resultBool, isBool := result.(bool)
	if !isBool {
		return false, nil, fmt.Errorf("expression did not evaluate to a boolean")
	}
	return resultBool, nil, nil
}

// buildExprEnv resolves only the field paths referenced by the expression,
// rejecting any identifier outside the allow-list before expr ever sees it.
func buildExprEnv(expression string, in EvalInput) (map[string]any, error) {
	env := make(map[string]any)
	for _, ident := range identifierPattern.FindAllString(expression, -1) {
		if _, already := env[ident]; already {
			continue
		}
		if isReservedWord(ident) {
			continue
		}
		value, err := resolveField(ident, in)
		if err != nil {
			return nil, err
		}
		env[ident] = value
	}
	return env, nil
}

var reservedWords = map[string]bool{
	"true": true, "false": true, "nil": true,
	"and": true, "or": true, "not": true, "in": true,
}

func isReservedWord(s string) bool {
	return reservedWords[s]
}
