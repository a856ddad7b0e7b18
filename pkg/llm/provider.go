package llm

import "context"

// CompleteOptions configures a single provider call.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
}

// CompleteResult is a provider's raw chat-completion response.
type CompleteResult struct {
	Text       string
	TokensIn   int
	TokensOut  int
}

// Provider is the chat-completion-style contract every LM vendor
// implements: Claude, OpenAI, and any OpenAI-compatible endpoint
// configured by base URL and model name.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt, model string, opts CompleteOptions) (CompleteResult, error)
}

// price is the per-million-token price for one model.
type price struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// priceTable gives a reasonable default cost estimate per known model; an
// unrecognized model falls back to the zero price, so its calls are recorded
// at cost 0 and add nothing to the USD budget.
var priceTable = map[string]price{
	"claude-3-5-haiku-latest":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-5-sonnet-latest": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"gpt-4o-mini":              {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":                   {InputPerMillion: 2.50, OutputPerMillion: 10.00},
}

// Cost computes the USD cost of a call given its token counts and model.
func Cost(model string, tokensIn, tokensOut int) float64 {
	p, ok := priceTable[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1_000_000*p.InputPerMillion + float64(tokensOut)/1_000_000*p.OutputPerMillion
}
