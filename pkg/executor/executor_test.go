package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	autoerrors "github.com/cdmackie/automod-core/internal/errors"
	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/platform"
	"github.com/cdmackie/automod-core/pkg/settings"
)

type fakeHost struct {
	reportErr  error
	removeErr  error
	commentErr error

	reportedReason string
	commentedText  string
	modLogDetails  string
}

func (f *fakeHost) GetPostByID(ctx context.Context, id string) (platform.ContentItem, error) { return platform.ContentItem{}, nil }
func (f *fakeHost) GetCommentByID(ctx context.Context, id string) (platform.ContentItem, error) { return platform.ContentItem{}, nil }
func (f *fakeHost) GetUserByID(ctx context.Context, id string) (platform.UserInfo, error) { return platform.UserInfo{}, nil }
func (f *fakeHost) GetCommentsAndPostsByUser(ctx context.Context, username string, limit int) ([]platform.ContentItem, error) {
	return nil, nil
}
func (f *fakeHost) IsModerator(ctx context.Context, subreddit, userID string) (bool, error) { return false, nil }
func (f *fakeHost) IsApprovedUser(ctx context.Context, subreddit, userID string) (bool, error) { return false, nil }

func (f *fakeHost) Report(ctx context.Context, targetID string, opts platform.ReportOptions) error {
	f.reportedReason = opts.Reason
	return f.reportErr
}
func (f *fakeHost) Remove(ctx context.Context, id string, isSpam bool) error { return f.removeErr }
func (f *fakeHost) SubmitComment(ctx context.Context, targetID, text string) error {
	f.commentedText = text
	return f.commentErr
}
func (f *fakeHost) AddModNote(ctx context.Context, note platform.ModNote) error { return nil }
func (f *fakeHost) AddModLog(ctx context.Context, entry platform.ModLogEntry) error {
	f.modLogDetails = entry.Details
	return nil
}

func newTestExecutor(host *fakeHost) *Executor {
	return New(host, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFlagTruncatesLongReason(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)
	reason := strings.Repeat("x", 250)

	result := e.Execute(context.Background(), Decision{Action: ActionFlag, Reason: reason}, "t1_abc", content.Item{}, settings.DryRun{})

	if !result.Success {
		t.Fatalf("Execute() = %+v, want Success=true", result)
	}
	if len(host.reportedReason) != maxFlagReasonLength {
		t.Errorf("reported reason length = %d, want %d", len(host.reportedReason), maxFlagReasonLength)
	}
	if len(host.modLogDetails) != maxFlagReasonLength {
		t.Errorf("mod log details length = %d, want %d", len(host.modLogDetails), maxFlagReasonLength)
	}
}

func TestFlagLeavesShortReasonUnchanged(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)

	e.Execute(context.Background(), Decision{Action: ActionFlag, Reason: "short reason"}, "t1_abc", content.Item{}, settings.DryRun{})

	if host.reportedReason != "short reason" {
		t.Errorf("reportedReason = %q, want unchanged", host.reportedReason)
	}
}

func TestRemoveTracksCommentAdded(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(),
		Decision{Action: ActionRemove, Reason: "spam", Message: "Removed: {reason}"},
		"t3_abc", content.Item{Subreddit: "golang"}, settings.DryRun{})

	if !result.Success || !result.CommentAdded {
		t.Errorf("Execute() = %+v, want Success=true, CommentAdded=true", result)
	}
	if !strings.Contains(host.commentedText, "spam") {
		t.Errorf("commentedText = %q, want it to contain the reason", host.commentedText)
	}
}

func TestRemoveSurvivesCommentFailure(t *testing.T) {
	host := &fakeHost{commentErr: errors.New("comment API down")}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(),
		Decision{Action: ActionRemove, Reason: "spam", Message: "Removed: {reason}"},
		"t3_abc", content.Item{}, settings.DryRun{})

	if !result.Success {
		t.Errorf("Execute() Success = false, want true (removal should proceed despite comment failure)")
	}
	if result.CommentAdded {
		t.Error("CommentAdded = true, want false when the comment call failed")
	}
}

func TestRemoveReportsRateLimitOnFailure(t *testing.T) {
	host := &fakeHost{removeErr: autoerrors.New(autoerrors.KindTransientRemote, errors.New("429"))}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(), Decision{Action: ActionRemove, Reason: "spam"}, "t3_abc", content.Item{}, settings.DryRun{})

	if result.Success {
		t.Error("Execute() Success = true, want false on remove failure")
	}
	if !strings.Contains(result.Error, "Rate limit") {
		t.Errorf("Error = %q, want a rate-limit-aware message", result.Error)
	}
}

func TestExecuteDryRunSuppressesHostAction(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(), Decision{Action: ActionRemove, Reason: "spam"},
		"t3_abc", content.Item{}, settings.DryRun{Enabled: true})

	if !result.Success {
		t.Errorf("Execute() in dry run = %+v, want Success=true", result)
	}
	if host.commentedText != "" || host.modLogDetails != "" {
		t.Error("dry run should not invoke any host action")
	}
}

func TestExecuteDryRunCoercesNonApproveActionToFlag(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(),
		Decision{Action: ActionRemove, Reason: "spam", RuleID: "r1"},
		"t3_abc", content.Item{}, settings.DryRun{Enabled: true})

	if result.Decision.Action != ActionFlag {
		t.Errorf("Decision.Action = %q, want %q for a dry-run REMOVE", result.Decision.Action, ActionFlag)
	}
	if !strings.HasPrefix(result.Decision.Reason, "[DRY RUN] ") {
		t.Errorf("Decision.Reason = %q, want it prefixed with \"[DRY RUN] \"", result.Decision.Reason)
	}
	if !strings.Contains(result.Decision.Reason, "spam") {
		t.Errorf("Decision.Reason = %q, want it to retain the original reason", result.Decision.Reason)
	}
	if result.Decision.RuleID != "r1" {
		t.Errorf("Decision.RuleID = %q, want it preserved from the original decision", result.Decision.RuleID)
	}
}

func TestExecuteDryRunLeavesApproveUncoerced(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(),
		Decision{Action: ActionApprove, Reason: "looks fine"},
		"t3_abc", content.Item{}, settings.DryRun{Enabled: true})

	if result.Decision.Action != ActionApprove {
		t.Errorf("Decision.Action = %q, want %q (APPROVE is never coerced)", result.Decision.Action, ActionApprove)
	}
	if result.Decision.Reason != "looks fine" {
		t.Errorf("Decision.Reason = %q, want unchanged for APPROVE", result.Decision.Reason)
	}
}

func TestExecuteLiveRunEchoesOriginalDecision(t *testing.T) {
	host := &fakeHost{}
	e := newTestExecutor(host)

	result := e.Execute(context.Background(), Decision{Action: ActionFlag, Reason: "spam"},
		"t1_abc", content.Item{}, settings.DryRun{})

	if result.Decision.Action != ActionFlag || result.Decision.Reason != "spam" {
		t.Errorf("Decision = %+v, want the original decision echoed back outside dry-run", result.Decision)
	}
}
