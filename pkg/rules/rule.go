package rules

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	autoerrors "github.com/cdmackie/automod-core/internal/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ContentType selects which kind of submission a rule applies to.
type ContentType string

const (
	ContentTypePost    ContentType = "post"
	ContentTypeComment ContentType = "comment"
	ContentTypeAll     ContentType = "all"
)

// normalizeContentType accepts the current values plus the older aliases a
// community's saved rule set may still use.
func normalizeContentType(raw string) ContentType {
	switch raw {
	case "submission":
		return ContentTypePost
	case "any", "":
		return ContentTypeAll
	case "post":
		return ContentTypePost
	case "comment":
		return ContentTypeComment
	default:
		return ContentType(raw)
	}
}

// Rule is one configurable moderation rule: a condition tree plus the
// action to take when it matches.
type Rule struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name"`
	Enabled     bool        `json:"enabled"`
	ContentType ContentType `json:"contentType"`
	Priority    int         `json:"priority"`
	Condition   Condition   `json:"condition"`
	Action      string      `json:"action" validate:"required,oneof=APPROVE FLAG REMOVE COMMENT"`
	Message     string      `json:"message"`
	Questions   []Question  `json:"questions,omitempty"`
}

// Question is an AI question a rule's condition tree may reference via an
// "ai" operator leaf.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// RuleSet is a community's full configured rule list, evaluated in
// Priority order (highest first), first match wins.
type RuleSet struct {
	Rules []Rule `json:"rules"`
}

// AppliesTo reports whether the rule should be evaluated for the given
// content kind.
func (r Rule) AppliesTo(kind ContentType) bool {
	return r.ContentType == ContentTypeAll || r.ContentType == kind
}

// AllQuestions collects every AI question referenced across the rule set,
// deduplicated by ID, so a single LM batch call can answer them all.
func (rs RuleSet) AllQuestions() []Question {
	seen := make(map[string]bool)
	var out []Question
	for _, r := range rs.Rules {
		for _, q := range r.Questions {
			if seen[q.ID] {
				continue
			}
			seen[q.ID] = true
			out = append(out, q)
		}
		collectConditionQuestions(r.Condition, seen, &out)
	}
	return out
}

func collectConditionQuestions(c Condition, seen map[string]bool, out *[]Question) {
	if c.Nested != nil {
		for _, child := range c.Nested.Rules {
			collectConditionQuestions(child, seen, out)
		}
		return
	}
	if c.Leaf != nil && c.Leaf.Operator == OperatorAI && c.Leaf.QuestionID != "" {
		if !seen[c.Leaf.QuestionID] {
			seen[c.Leaf.QuestionID] = true
			*out = append(*out, Question{ID: c.Leaf.QuestionID, Text: c.Leaf.Field})
		}
	}
}

// ParseRuleSet decodes and validates a community's raw rules JSON,
// normalizing backwards-compatible aliases as it goes.
func ParseRuleSet(raw string) (RuleSet, error) {
	if raw == "" {
		return RuleSet{}, nil
	}

	var wire struct {
		Rules []json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return RuleSet{}, fmt.Errorf("decoding rule set: %w", err)
	}

	rs := RuleSet{Rules: make([]Rule, 0, len(wire.Rules))}
	for i, rawRule := range wire.Rules {
		var wireRule struct {
			ID          string          `json:"id"`
			Name        string          `json:"name"`
			Enabled     bool            `json:"enabled"`
			ContentType string          `json:"contentType"`
			Priority    int             `json:"priority"`
			Condition   json.RawMessage `json:"condition"`
			Action      string          `json:"action"`
			Message     string          `json:"message"`
			Questions   []Question      `json:"questions"`
		}
		if err := json.Unmarshal(rawRule, &wireRule); err != nil {
			return RuleSet{}, fmt.Errorf("rule %d: %w", i, err)
		}

		cond, err := parseCondition(wireRule.Condition, 1)
		if err != nil {
			return RuleSet{}, fmt.Errorf("rule %d (%s): %w", i, wireRule.ID, err)
		}

		rule := Rule{
			ID:          wireRule.ID,
			Name:        wireRule.Name,
			Enabled:     wireRule.Enabled,
			ContentType: normalizeContentType(wireRule.ContentType),
			Priority:    wireRule.Priority,
			Condition:   cond,
			Action:      wireRule.Action,
			Message:     wireRule.Message,
			Questions:   wireRule.Questions,
		}
		if err := validate.Struct(rule); err != nil {
			return RuleSet{}, autoerrors.New(autoerrors.KindValidationFailure,
				fmt.Errorf("rule %d (%s): %w", i, wireRule.ID, err))
		}

		rs.Rules = append(rs.Rules, rule)
	}
	return rs, nil
}
