package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Substitute fills a rule's message template. Supported placeholders are
// {path} against the same allow-listed fields a condition can reference,
// plus the AI shorthands {ai.answer}/{ai.confidence}/{ai.reasoning} (the
// rule's own primary question) and {ai.<questionId>.answer|confidence|reasoning}.
// Anything that can't be resolved becomes "[undefined]" rather than
// failing the whole message.
func Substitute(template string, in EvalInput, primaryQuestionID string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSuffix(strings.TrimPrefix(match, "{"), "}")
		value, ok := resolvePlaceholder(path, in, primaryQuestionID)
		if !ok {
			return "[undefined]"
		}
		return fmt.Sprintf("%v", value)
	})
}

func resolvePlaceholder(path string, in EvalInput, primaryQuestionID string) (any, bool) {
	if path == "subreddit" {
		return in.Subreddit, true
	}

	if strings.HasPrefix(path, "ai.") {
		rest := strings.TrimPrefix(path, "ai.")
		parts := strings.SplitN(rest, ".", 2)

		questionID := primaryQuestionID
		sub := parts[0]
		if len(parts) == 2 {
			questionID = parts[0]
			sub = parts[1]
		}
		if questionID == "" {
			return nil, false
		}

		answer, ok := in.AI.Lookup(questionID)
		if !ok {
			return nil, false
		}
		switch sub {
		case "answer":
			return string(answer.Answer), true
		case "confidence":
			return answer.Confidence, true
		case "reasoning":
			return answer.Reasoning, true
		default:
			return nil, false
		}
	}

	value, err := resolveField(path, in)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}
