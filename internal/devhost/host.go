// Package devhost provides a stand-in platform.Host for running the
// moderation core without a real host platform wired in: every call is
// logged and returns a safe zero value, the same degrade-to-logging-only
// shape the teacher's slack.Notifier falls back to when it has no bot
// token. A production deployment replaces this with the host platform's
// own Host implementation; pkg/platform.Host is the contract, and building
// that adapter is explicitly out of this module's scope.
package devhost

import (
	"context"
	"log/slog"

	"github.com/cdmackie/automod-core/pkg/platform"
)

// LoggingHost implements platform.Host by logging every call it receives
// and returning harmless zero values, so the pipeline can run end-to-end
// against synthetic or replayed events without a live host connection.
type LoggingHost struct {
	logger *slog.Logger
}

// New creates a LoggingHost.
func New(logger *slog.Logger) *LoggingHost {
	return &LoggingHost{logger: logger}
}

func (h *LoggingHost) GetPostByID(ctx context.Context, id string) (platform.ContentItem, error) {
	h.logger.Debug("devhost: GetPostByID", "id", id)
	return platform.ContentItem{ID: id, Kind: "post"}, nil
}

func (h *LoggingHost) GetCommentByID(ctx context.Context, id string) (platform.ContentItem, error) {
	h.logger.Debug("devhost: GetCommentByID", "id", id)
	return platform.ContentItem{ID: id, Kind: "comment"}, nil
}

func (h *LoggingHost) GetUserByID(ctx context.Context, id string) (platform.UserInfo, error) {
	h.logger.Debug("devhost: GetUserByID", "id", id)
	return platform.UserInfo{ID: id}, nil
}

func (h *LoggingHost) GetCommentsAndPostsByUser(ctx context.Context, username string, limit int) ([]platform.ContentItem, error) {
	h.logger.Debug("devhost: GetCommentsAndPostsByUser", "username", username, "limit", limit)
	return nil, nil
}

func (h *LoggingHost) IsModerator(ctx context.Context, subreddit, userID string) (bool, error) {
	h.logger.Debug("devhost: IsModerator", "subreddit", subreddit, "user", userID)
	return false, nil
}

func (h *LoggingHost) IsApprovedUser(ctx context.Context, subreddit, userID string) (bool, error) {
	h.logger.Debug("devhost: IsApprovedUser", "subreddit", subreddit, "user", userID)
	return false, nil
}

func (h *LoggingHost) Report(ctx context.Context, targetID string, opts platform.ReportOptions) error {
	h.logger.Info("devhost: Report", "target", targetID, "reason", opts.Reason)
	return nil
}

func (h *LoggingHost) Remove(ctx context.Context, id string, isSpam bool) error {
	h.logger.Info("devhost: Remove", "id", id, "spam", isSpam)
	return nil
}

func (h *LoggingHost) SubmitComment(ctx context.Context, targetID, text string) error {
	h.logger.Info("devhost: SubmitComment", "target", targetID, "text", text)
	return nil
}

func (h *LoggingHost) AddModNote(ctx context.Context, note platform.ModNote) error {
	h.logger.Info("devhost: AddModNote", "user", note.UserID, "label", note.Label)
	return nil
}

func (h *LoggingHost) AddModLog(ctx context.Context, entry platform.ModLogEntry) error {
	h.logger.Info("devhost: AddModLog", "action", entry.Action, "target", entry.Target)
	return nil
}

var _ platform.Host = (*LoggingHost)(nil)
