// Package pipeline wires every domain component into the Decision Pipeline
// orchestrator: the single place an inbound event becomes a host action,
// a trust update, and an audit entry.
package pipeline

// Kind distinguishes the two event shapes the pipeline accepts.
type Kind string

const (
	KindPostSubmit    Kind = "post_submit"
	KindCommentSubmit Kind = "comment_submit"
)

// Event is the pipeline's single entry point shape, built by the HTTP
// handlers from the host's webhook payloads.
type Event struct {
	Kind       Kind
	ItemID     string
	AuthorID   string
	AuthorName string
	Subreddit  string
	Title      string
	Body       string
	CreatedAt  int64
}
