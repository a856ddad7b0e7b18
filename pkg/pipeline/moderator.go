package pipeline

import (
	"context"
	"fmt"

	"github.com/cdmackie/automod-core/internal/httpserver"
	"github.com/cdmackie/automod-core/internal/kv"
)

// HandlePostSubmit satisfies httpserver.Moderator for new posts.
func (p *Pipeline) HandlePostSubmit(ctx context.Context, req httpserver.PostSubmitRequest) error {
	return p.HandleEvent(ctx, Event{
		Kind:       KindPostSubmit,
		ItemID:     req.ItemID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Subreddit:  req.Subreddit,
		Title:      req.Title,
		Body:       req.Body,
		CreatedAt:  req.CreatedAt,
	})
}

// HandleCommentSubmit satisfies httpserver.Moderator for new comments.
func (p *Pipeline) HandleCommentSubmit(ctx context.Context, req httpserver.CommentSubmitRequest) error {
	return p.HandleEvent(ctx, Event{
		Kind:       KindCommentSubmit,
		ItemID:     req.ItemID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Subreddit:  req.Subreddit,
		Body:       req.Body,
		CreatedAt:  req.CreatedAt,
	})
}

// HandleModAction satisfies httpserver.Moderator. A manual removal of
// content the pipeline had already approved reverses its ApprovedContentRecord
// and community-trust counters so the user's approval rate isn't inflated by
// a decision a human later overturned.
func (p *Pipeline) HandleModAction(ctx context.Context, req httpserver.ModActionRequest) error {
	if req.Action != "remove" {
		return nil
	}
	community, err := p.settings.Read(ctx, req.Subreddit)
	if err != nil {
		return fmt.Errorf("reading settings for %s: %w", req.Subreddit, err)
	}
	kb := kv.NewKeyBuilder(p.codeVersion, community.SettingsVersion())
	return p.community.RetroactiveRemoval(ctx, kb, req.ItemID)
}
