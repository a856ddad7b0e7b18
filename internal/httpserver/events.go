package httpserver

import (
	"context"
	"net/http"
)

// PostSubmitRequest is the webhook payload for a new post.
type PostSubmitRequest struct {
	ItemID     string `json:"itemId" validate:"required"`
	AuthorID   string `json:"authorId" validate:"required"`
	AuthorName string `json:"authorName" validate:"required"`
	Subreddit  string `json:"subreddit" validate:"required"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	CreatedAt  int64  `json:"createdAt" validate:"required"`
}

// CommentSubmitRequest is the webhook payload for a new comment.
type CommentSubmitRequest struct {
	ItemID     string `json:"itemId" validate:"required"`
	AuthorID   string `json:"authorId" validate:"required"`
	AuthorName string `json:"authorName" validate:"required"`
	Subreddit  string `json:"subreddit" validate:"required"`
	Body       string `json:"body" validate:"required"`
	CreatedAt  int64  `json:"createdAt" validate:"required"`
}

// ModActionRequest is the webhook payload for a moderator action, used to
// retroactively attribute removals against ApprovedContentRecord entries.
type ModActionRequest struct {
	ItemID      string `json:"itemId" validate:"required"`
	ModeratorID string `json:"moderatorId" validate:"required"`
	Action      string `json:"action" validate:"required,oneof=approve remove"`
	Subreddit   string `json:"subreddit" validate:"required"`
	CreatedAt   int64  `json:"createdAt" validate:"required"`
}

// Moderator is the contract the decision pipeline satisfies for the webhook
// ingestion surface. Each method corresponds to one of the host platform's
// onPostSubmit/onCommentSubmit/onModAction registrations.
type Moderator interface {
	HandlePostSubmit(ctx context.Context, req PostSubmitRequest) error
	HandleCommentSubmit(ctx context.Context, req CommentSubmitRequest) error
	HandleModAction(ctx context.Context, req ModActionRequest) error
}

// mountEvents registers the /events routes against the given moderator.
func mountEvents(mux interface {
	Post(pattern string, h http.HandlerFunc)
}, mod Moderator, eventDeadline timeoutFunc) {
	mux.Post("/events/post", func(w http.ResponseWriter, r *http.Request) {
		var req PostSubmitRequest
		if !DecodeAndValidate(w, r, &req) {
			return
		}
		ctx, cancel := eventDeadline(r.Context())
		defer cancel()
		if err := mod.HandlePostSubmit(ctx, req); err != nil {
			RespondError(w, http.StatusInternalServerError, "handler_error", err.Error())
			return
		}
		Respond(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	mux.Post("/events/comment", func(w http.ResponseWriter, r *http.Request) {
		var req CommentSubmitRequest
		if !DecodeAndValidate(w, r, &req) {
			return
		}
		ctx, cancel := eventDeadline(r.Context())
		defer cancel()
		if err := mod.HandleCommentSubmit(ctx, req); err != nil {
			RespondError(w, http.StatusInternalServerError, "handler_error", err.Error())
			return
		}
		Respond(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	mux.Post("/events/mod-action", func(w http.ResponseWriter, r *http.Request) {
		var req ModActionRequest
		if !DecodeAndValidate(w, r, &req) {
			return
		}
		ctx, cancel := eventDeadline(r.Context())
		defer cancel()
		if err := mod.HandleModAction(ctx, req); err != nil {
			RespondError(w, http.StatusInternalServerError, "handler_error", err.Error())
			return
		}
		Respond(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})
}

type timeoutFunc func(ctx context.Context) (context.Context, context.CancelFunc)
