// Package platform declares the host platform contract the moderation core
// consumes: event registration, the reddit-style content API, moderation
// primitives, and the settings reader. Production hosts implement Host;
// tests substitute a fake.
package platform

import "context"

// UserInfo is the subset of account facts the host's user API returns.
type UserInfo struct {
	ID                string
	Username          string
	CreatedAt         int64
	LinkKarma         int
	CommentKarma      int
	HasVerifiedEmail  bool
}

// ContentItem is a single post or comment as returned by the host's history
// API, used to build a PostHistory window.
type ContentItem struct {
	ID         string
	Kind       string // "post" or "comment"
	Subreddit  string
	Content    string
	Score      int
	CreatedAt  int64
}

// ReportOptions configures a report call.
type ReportOptions struct {
	Reason string
}

// ModNote is a moderator note attached to a user or item.
type ModNote struct {
	UserID string
	Note   string
	Label  string
}

// ModLogEntry records an action taken by the moderation core for the
// subreddit's mod log.
type ModLogEntry struct {
	Action  string
	Details string
	Target  string
}

// Host is the platform contract consumed by the pipeline: content lookups,
// moderation primitives, and the settings reader. It is the moderation
// core's only way to reach outside its own process.
type Host interface {
	GetPostByID(ctx context.Context, id string) (ContentItem, error)
	GetCommentByID(ctx context.Context, id string) (ContentItem, error)
	GetUserByID(ctx context.Context, id string) (UserInfo, error)

	// GetCommentsAndPostsByUser returns the user's recent activity, most
	// recent first, bounded by limit.
	GetCommentsAndPostsByUser(ctx context.Context, username string, limit int) ([]ContentItem, error)

	// IsModerator reports whether userID moderates subreddit.
	IsModerator(ctx context.Context, subreddit, userID string) (bool, error)

	// IsApprovedUser reports whether userID is on subreddit's
	// platform-approved-submitter list, bypassing moderation independently
	// of karma/account-age heuristics.
	IsApprovedUser(ctx context.Context, subreddit, userID string) (bool, error)

	Report(ctx context.Context, targetID string, opts ReportOptions) error
	Remove(ctx context.Context, id string, isSpam bool) error
	SubmitComment(ctx context.Context, targetID, text string) error
	AddModNote(ctx context.Context, note ModNote) error
	AddModLog(ctx context.Context, entry ModLogEntry) error
}

// SettingsReader returns the raw per-community settings map the host
// exposes; pkg/settings parses and validates it into a typed Community.
type SettingsReader interface {
	Read(ctx context.Context, subreddit string) (map[string]any, error)
}
