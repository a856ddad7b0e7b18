package rules

import (
	"testing"

	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/profile"
)

func leafRule(id string, priority int, leaf LeafCondition, action string) Rule {
	return Rule{
		ID: id, Enabled: true, ContentType: ContentTypeAll, Priority: priority,
		Condition: Condition{Leaf: &leaf}, Action: action,
	}
}

func TestEvaluateLeafOperators(t *testing.T) {
	in := EvalInput{
		Profile:   profile.UserProfile{AccountAgeDays: 2, TotalKarma: 5},
		Current:   content.Item{Title: "buy cheap watches now", Body: "visit http://spam.example.com"},
		Subreddit: "golang",
	}

	tests := []struct {
		name string
		leaf LeafCondition
		want bool
	}{
		{"numeric lt matches", LeafCondition{Field: "profile.accountAgeDays", Operator: OperatorLT, Value: 7.0}, true},
		{"numeric gte fails", LeafCondition{Field: "profile.totalKarma", Operator: OperatorGTE, Value: 100.0}, false},
		{"contains case sensitive", LeafCondition{Field: "currentPost.title", Operator: OperatorContains, Value: "cheap"}, true},
		{"contains_i matches different case", LeafCondition{Field: "currentPost.title", Operator: OperatorContainsI, Value: "CHEAP"}, true},
		{"not_contains", LeafCondition{Field: "currentPost.title", Operator: OperatorNotContains, Value: "giraffe"}, true},
		{"eq on subreddit", LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "golang"}, true},
		{"neq on missing field is true", LeafCondition{Field: "profile.username", Operator: OperatorNEQ, Value: "anything"}, true},
		{"in membership", LeafCondition{Field: "subreddit", Operator: OperatorIn, Value: []any{"golang", "rust"}}, true},
		{"regex match", LeafCondition{Field: "currentPost.body", Operator: OperatorRegex, Value: `spam\.example`}, true},
	}

	e := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.evalLeaf(tt.leaf, in)
			if err != nil {
				t.Fatalf("evalLeaf() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("evalLeaf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateForbiddenFieldEvaluatesFalseWithoutError(t *testing.T) {
	e := NewEngine(nil)
	in := EvalInput{Subreddit: "golang"}

	got, err := e.evalLeaf(LeafCondition{Field: "profile.constructor.polluted", Operator: OperatorEQ, Value: "x"}, in)
	if err != nil {
		t.Fatalf("evalLeaf() with forbidden field segment error = %v, want nil (fail closed to false)", err)
	}
	if got {
		t.Error("evalLeaf() with forbidden field segment = true, want false")
	}

	got, err = e.evalLeaf(LeafCondition{Field: "os.Environ", Operator: OperatorEQ, Value: "x"}, in)
	if err != nil {
		t.Fatalf("evalLeaf() with disallowed prefix error = %v, want nil (fail closed to false)", err)
	}
	if got {
		t.Error("evalLeaf() with disallowed prefix = true, want false")
	}
}

func TestEvaluateForbiddenFieldDoesNotAbortRuleSet(t *testing.T) {
	rs := RuleSet{Rules: []Rule{
		leafRule("forbidden", 10, LeafCondition{Field: "profile.__proto__.x", Operator: OperatorEQ, Value: "x"}, "REMOVE"),
		leafRule("fallback", 1, LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "golang"}, "FLAG"),
	}}

	e := NewEngine(nil)
	match, ok, err := e.Evaluate(rs, ContentTypeAll, EvalInput{Subreddit: "golang"}, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil: a forbidden field must not abort the whole rule set", err)
	}
	if !ok || match.Rule.ID != "fallback" {
		t.Errorf("Evaluate() = %+v, ok=%v, want the fallback rule to match after the forbidden leaf fails closed", match, ok)
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	rs := RuleSet{Rules: []Rule{
		leafRule("low", 1, LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "golang"}, "FLAG"),
		leafRule("high", 10, LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "golang"}, "REMOVE"),
	}}

	e := NewEngine(nil)
	match, ok, err := e.Evaluate(rs, ContentTypeAll, EvalInput{Subreddit: "golang"}, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Fatal("Evaluate() ok = false, want true")
	}
	if match.Rule.ID != "high" {
		t.Errorf("Evaluate() matched %q, want %q (higher priority)", match.Rule.ID, "high")
	}
}

func TestEvaluateSkipsAIRuleWhenUnavailable(t *testing.T) {
	rs := RuleSet{Rules: []Rule{
		leafRule("ai-rule", 10, LeafCondition{Field: "x", Operator: OperatorAI, QuestionID: "q1", Value: "YES"}, "REMOVE"),
		leafRule("fallback", 1, LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "golang"}, "FLAG"),
	}}

	e := NewEngine(nil)
	match, ok, err := e.Evaluate(rs, ContentTypeAll, EvalInput{Subreddit: "golang"}, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok || match.Rule.ID != "fallback" {
		t.Errorf("Evaluate() = %+v, ok=%v, want fallback rule to match when AI unavailable", match, ok)
	}
}

func TestEvaluateNestedLogic(t *testing.T) {
	and := Condition{Nested: &NestedCondition{
		LogicalOperator: LogicAnd,
		Rules: []Condition{
			{Leaf: &LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "golang"}},
			{Leaf: &LeafCondition{Field: "profile.totalKarma", Operator: OperatorLT, Value: 10.0}},
		},
	}}
	not := Condition{Nested: &NestedCondition{
		LogicalOperator: LogicNot,
		Rules:           []Condition{{Leaf: &LeafCondition{Field: "subreddit", Operator: OperatorEQ, Value: "rust"}}},
	}}

	e := NewEngine(nil)
	in := EvalInput{Profile: profile.UserProfile{TotalKarma: 5}, Subreddit: "golang"}

	if ok, err := e.evalCondition(and, in); err != nil || !ok {
		t.Errorf("AND condition = %v, %v, want true, nil", ok, err)
	}
	if ok, err := e.evalCondition(not, in); err != nil || !ok {
		t.Errorf("NOT condition = %v, %v, want true, nil", ok, err)
	}
}
