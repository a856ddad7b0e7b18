package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/llm"
	"github.com/cdmackie/automod-core/pkg/profile"
)

// allowedPrefixes is the safe-field allow-list: a condition or expression
// may only dereference paths under one of these roots.
var allowedPrefixes = []string{
	"profile.",
	"currentPost.",
	"postHistory.",
	"aiAnalysis.",
	"subreddit",
}

// forbiddenSegments blocks prototype-pollution-style field names even
// though Go has no prototype chain — the allow-list mirrors the original
// JS rule engine's safety contract so ported rule sets behave the same way.
var forbiddenSegments = map[string]bool{
	"__proto__":        true,
	"constructor":      true,
	"prototype":        true,
	"__defineGetter__":  true,
	"__defineSetter__":  true,
}

// FieldError means a condition referenced a field outside the allow-list.
type FieldError struct {
	Path string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q is not allowed", e.Path)
}

// EvalInput bundles everything a condition's field path may resolve
// against.
type EvalInput struct {
	Profile   profile.UserProfile
	Current   content.Item
	History   profile.PostHistory
	AI        llm.AIBatchResult
	Subreddit string
}

func isAllowed(path string) bool {
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func hasForbiddenSegment(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if forbiddenSegments[seg] {
			return true
		}
	}
	return false
}

// resolveField validates path against the allow-list and max-depth bound,
// then looks up its value.
func resolveField(path string, in EvalInput) (any, error) {
	if strings.Count(path, ".") > maxConditionDepth {
		return nil, &FieldError{Path: path}
	}
	if hasForbiddenSegment(path) {
		return nil, &FieldError{Path: path}
	}
	if !isAllowed(path) {
		return nil, &FieldError{Path: path}
	}

	switch {
	case path == "subreddit":
		return in.Subreddit, nil
	case strings.HasPrefix(path, "profile."):
		return resolveProfileField(strings.TrimPrefix(path, "profile."), in.Profile)
	case strings.HasPrefix(path, "currentPost."):
		return resolveItemField(strings.TrimPrefix(path, "currentPost."), in.Current)
	case strings.HasPrefix(path, "postHistory."):
		return resolveHistoryField(strings.TrimPrefix(path, "postHistory."), in.History)
	case strings.HasPrefix(path, "aiAnalysis."):
		return resolveAIField(strings.TrimPrefix(path, "aiAnalysis."), in.AI)
	default:
		return nil, &FieldError{Path: path}
	}
}

func resolveProfileField(field string, p profile.UserProfile) (any, error) {
	switch field {
	case "accountAgeDays":
		return p.AccountAgeDays, nil
	case "totalKarma":
		return p.TotalKarma, nil
	case "postKarma":
		return p.PostKarma, nil
	case "commentKarma":
		return p.CommentKarma, nil
	case "emailVerified":
		return p.EmailVerified, nil
	case "isModerator":
		return p.IsModerator, nil
	case "hasFlair":
		return p.HasFlair, nil
	case "hasPremium":
		return p.HasPremium, nil
	case "isVerified":
		return p.IsVerified, nil
	case "username":
		return p.Username, nil
	default:
		return nil, &FieldError{Path: "profile." + field}
	}
}

func resolveItemField(field string, item content.Item) (any, error) {
	switch field {
	case "title":
		return item.Title, nil
	case "body":
		return item.Body, nil
	case "wordCount":
		return item.WordCount, nil
	case "charCount":
		return item.CharCount, nil
	case "titleLength":
		return item.TitleLength, nil
	case "bodyLength":
		return item.BodyLength, nil
	case "type":
		return item.Type, nil
	case "hasMedia":
		return item.HasMedia, nil
	case "linkUrl":
		return item.LinkURL, nil
	case "isEdited":
		return item.IsEdited, nil
	case "domains":
		return item.Domains, nil
	case "hasExternalLinks":
		return item.HasExternalLinks(), nil
	default:
		return nil, &FieldError{Path: "currentPost." + field}
	}
}

func resolveHistoryField(field string, h profile.PostHistory) (any, error) {
	switch field {
	case "totalItems":
		return h.Metrics.TotalItems, nil
	case "postsInTargetSubs":
		return h.Metrics.PostsInTargetSubs, nil
	case "postsInDatingSubs":
		return h.Metrics.PostsInDatingSubs, nil
	case "avgScore":
		return h.Metrics.AvgScore, nil
	case "oldestItemDate":
		return h.Metrics.OldestItemDate, nil
	case "newestItemDate":
		return h.Metrics.NewestItemDate, nil
	default:
		return nil, &FieldError{Path: "postHistory." + field}
	}
}

func resolveAIField(field string, ai llm.AIBatchResult) (any, error) {
	parts := strings.SplitN(field, ".", 2)
	questionID := parts[0]
	sub := "answer"
	if len(parts) == 2 {
		sub = parts[1]
	}

	answer, ok := ai.Lookup(questionID)
	if !ok {
		return nil, nil
	}

	switch sub {
	case "answer":
		return string(answer.Answer), nil
	case "confidence":
		return answer.Confidence, nil
	case "reasoning":
		return answer.Reasoning, nil
	default:
		return nil, &FieldError{Path: "aiAnalysis." + field}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
