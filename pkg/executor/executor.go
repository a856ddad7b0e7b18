// Package executor carries out the action a decision pipeline settled on:
// approve, flag, remove, or comment, against the host platform, honoring a
// community's dry-run override.
package executor

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	autoerrors "github.com/cdmackie/automod-core/internal/errors"
	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/platform"
	"github.com/cdmackie/automod-core/pkg/settings"
)

const (
	ActionApprove = "APPROVE"
	ActionFlag    = "FLAG"
	ActionRemove  = "REMOVE"
	ActionComment = "COMMENT"
)

const maxCommentLength = 10000

const truncationSuffix = "\n\n[Comment truncated due to length]"

const maxFlagReasonLength = 100

const dryRunReasonPrefix = "[DRY RUN] "

// Decision is what the pipeline decided to do and why.
type Decision struct {
	Action     string
	Reason     string
	Message    string
	RuleID     string
	Layer      string
	Confidence int
}

// Result reports what actually happened when a Decision was carried out.
// Decision is the decision that was actually enacted and should be audited:
// in dry-run mode this is the FLAG-coerced, reason-prefixed stand-in for any
// non-APPROVE action, not the original Decision passed to Execute.
type Result struct {
	Success      bool
	Error        string
	CommentAdded bool
	Decision     Decision
}

// Executor applies Decisions against a platform.Host.
type Executor struct {
	host   platform.Host
	logger *slog.Logger
}

// New creates an Executor.
func New(host platform.Host, logger *slog.Logger) *Executor {
	return &Executor{host: host, logger: logger}
}

// Execute carries out decision against targetID (the post or comment ID),
// honoring dryRun: in dry-run mode no host action is taken. Any non-APPROVE
// decision is coerced to a FLAG with its reason prefixed, since nothing
// beyond a flag would really happen under dry-run enforcement; the caller
// audits Result.Decision, not the Decision passed in, so the audit trail
// reflects what dry-run actually did rather than what the rule engine
// decided.
func (e *Executor) Execute(ctx context.Context, decision Decision, targetID string, item content.Item, dryRun settings.DryRun) Result {
	if dryRun.Enabled {
		if dryRun.LogDetails {
			e.logger.Info("dry run: action suppressed",
				"action", decision.Action, "target", targetID, "reason", decision.Reason, "rule", decision.RuleID)
		}
		return Result{Success: true, Decision: dryRunDecision(decision)}
	}

	var result Result
	switch decision.Action {
	case ActionApprove:
		result = e.approve(ctx, targetID)
	case ActionFlag:
		result = e.flag(ctx, targetID, decision)
	case ActionRemove:
		result = e.remove(ctx, targetID, decision, item)
	case ActionComment:
		result = e.comment(ctx, targetID, decision, item)
	default:
		result = Result{Success: false, Error: "unknown action: " + decision.Action}
	}
	result.Decision = decision
	return result
}

// dryRunDecision returns the decision to audit under dry-run: APPROVE passes
// through unchanged, everything else becomes a FLAG with its reason
// prefixed to mark it as a would-be action that was never actually taken.
func dryRunDecision(decision Decision) Decision {
	if decision.Action == ActionApprove {
		return decision
	}
	coerced := decision
	coerced.Action = ActionFlag
	coerced.Reason = dryRunReasonPrefix + decision.Reason
	return coerced
}

func (e *Executor) approve(ctx context.Context, targetID string) Result {
	_ = ctx
	_ = targetID
	return Result{Success: true}
}

func (e *Executor) flag(ctx context.Context, targetID string, decision Decision) Result {
	reason := truncateFlagReason(decision.Reason)
	err := e.host.Report(ctx, targetID, platform.ReportOptions{Reason: reason})
	if err != nil {
		return rateLimitAwareResult(err)
	}
	_ = e.host.AddModLog(ctx, platform.ModLogEntry{Action: "flag", Target: targetID, Details: reason})
	return Result{Success: true}
}

// remove posts the explanation comment first and removes the item even if
// the comment fails: a user left without an explanation is worse than a
// mod-log entry without one. CommentAdded reports whether the comment
// actually went through, so the audit trail can distinguish the two cases.
func (e *Executor) remove(ctx context.Context, targetID string, decision Decision, item content.Item) Result {
	commentAdded := false
	if decision.Message != "" {
		text := renderComment(decision.Message, decision, item)
		if err := e.host.SubmitComment(ctx, targetID, text); err != nil {
			e.logger.Warn("failed to post removal explanation comment", "target", targetID, "error", err)
		} else {
			commentAdded = true
		}
	}

	if err := e.host.Remove(ctx, targetID, false); err != nil {
		result := rateLimitAwareResult(err)
		result.CommentAdded = commentAdded
		return result
	}
	_ = e.host.AddModLog(ctx, platform.ModLogEntry{Action: "remove", Target: targetID, Details: decision.Reason})
	return Result{Success: true, CommentAdded: commentAdded}
}

func (e *Executor) comment(ctx context.Context, targetID string, decision Decision, item content.Item) Result {
	text := renderComment(decision.Message, decision, item)
	if err := e.host.SubmitComment(ctx, targetID, text); err != nil {
		return rateLimitAwareResult(err)
	}
	return Result{Success: true}
}

func renderComment(template string, decision Decision, item content.Item) string {
	replacer := strings.NewReplacer(
		"{reason}", decision.Reason,
		"{subreddit}", item.Subreddit,
		"{contentType}", string(item.Kind),
		"{confidence}", strconv.Itoa(decision.Confidence),
	)
	text := replacer.Replace(template)
	if len(text) > maxCommentLength {
		text = text[:maxCommentLength-len(truncationSuffix)] + truncationSuffix
	}
	return text
}

func truncateFlagReason(reason string) string {
	if len(reason) <= maxFlagReasonLength {
		return reason
	}
	return reason[:maxFlagReasonLength]
}

func rateLimitAwareResult(err error) Result {
	if autoerrors.Is(err, autoerrors.KindTransientRemote) {
		return Result{Success: false, Error: "Rate limit exceeded - action will be retried"}
	}
	return Result{Success: false, Error: err.Error()}
}
