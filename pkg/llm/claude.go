package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider calls Anthropic's Messages API.
type ClaudeProvider struct {
	client anthropic.Client
}

// NewClaudeProvider creates a ClaudeProvider authenticated with apiKey.
func NewClaudeProvider(apiKey string) *ClaudeProvider {
	return &ClaudeProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Name implements Provider.
func (c *ClaudeProvider) Name() string { return "claude" }

// Complete implements Provider.
func (c *ClaudeProvider) Complete(ctx context.Context, prompt, model string, opts CompleteOptions) (CompleteResult, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("claude completion: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Text != "" {
			text += block.Text
		}
	}

	return CompleteResult{
		Text:      text,
		TokensIn:  int(msg.Usage.InputTokens),
		TokensOut: int(msg.Usage.OutputTokens),
	}, nil
}
