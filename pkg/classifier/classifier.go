// Package classifier calls the external, free policy-classification
// provider for Layer 2: a single HTTP call returning per-category
// booleans/scores over a fixed category set.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cdmackie/automod-core/pkg/ratelimiter"
	"github.com/cdmackie/automod-core/pkg/settings"
)

const callTimeout = 10 * time.Second

// classifierRateLimitName is the ratelimiter bucket key for this outbound
// API, independent of any LM provider's own buckets.
const classifierRateLimitName = "classifier"

// classifierRateLimit caps calls to the classifier endpoint, which is a
// shared free-tier API with its own rate limits.
const classifierRateLimit = 500

// Category is one of the fixed moderation categories the classifier scores.
type Category string

const (
	CategoryHate                  Category = "hate"
	CategoryHateThreatening       Category = "hate/threatening"
	CategoryHarassment            Category = "harassment"
	CategoryHarassmentThreatening Category = "harassment/threatening"
	CategorySelfHarm              Category = "self-harm"
	CategorySelfHarmIntent        Category = "self-harm/intent"
	CategorySelfHarmInstructions  Category = "self-harm/instructions"
	CategorySexual                Category = "sexual"
	CategorySexualMinors          Category = "sexual/minors"
	CategoryViolence               Category = "violence"
	CategoryViolenceGraphic        Category = "violence/graphic"
)

// Result is the outcome of a classification call.
type Result struct {
	Flagged    bool
	Categories map[Category]bool
	Scores     map[Category]float64
}

type apiRequest struct {
	Input string `json:"input"`
}

type apiResponse struct {
	Results []struct {
		Flagged        bool                 `json:"flagged"`
		Categories     map[string]bool      `json:"categories"`
		CategoryScores map[string]float64   `json:"category_scores"`
	} `json:"results"`
}

// Client calls the safety classifier endpoint.
type Client struct {
	httpClient *http.Client
	apiURL     string
	limiter    *ratelimiter.Limiter
}

// NewClient creates a classifier Client. apiURL is the moderation endpoint;
// it defaults to OpenAI's free moderation endpoint when empty. rdb backs a
// fixed-window rate limiter shared across all calls to that endpoint.
func NewClient(apiURL string, rdb *redis.Client) *Client {
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/moderations"
	}
	return &Client{
		httpClient: &http.Client{Timeout: callTimeout},
		apiURL:     apiURL,
		limiter:    ratelimiter.New(rdb, classifierRateLimit, time.Minute),
	}
}

// Classify scores text against the fixed category set. Any error (network,
// timeout, non-2xx, malformed body, rate limit wait exceeding the call
// deadline) returns ok=false so the caller proceeds to Layer 3 as the spec
// requires — classifier failure never blocks the pipeline.
func (c *Client) Classify(ctx context.Context, cfg settings.Layer2, text string) (Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := c.limiter.CheckLimit(ctx, classifierRateLimitName); err != nil {
		return Result{}, false
	}

	body, err := json.Marshal(apiRequest{Input: text})
	if err != nil {
		return Result{}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, false
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, false
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Results) == 0 {
		return Result{}, false
	}

	return evaluate(cfg, parsed.Results[0].CategoryScores), true
}

func evaluate(cfg settings.Layer2, scores map[string]float64) Result {
	checkSet := make(map[string]bool, len(cfg.CategoriesToCheck))
	for _, cat := range cfg.CategoriesToCheck {
		checkSet[cat] = true
	}

	out := Result{
		Categories: make(map[Category]bool, len(scores)),
		Scores:     make(map[Category]float64, len(scores)),
	}

	for cat, score := range scores {
		c := Category(cat)
		out.Scores[c] = score

		flagged := checkSet[cat] && score >= cfg.Threshold
		if c == CategorySexualMinors {
			// sexual/minors is always flagged, regardless of threshold or
			// whether it's in the checked-category list.
			flagged = true
		}
		out.Categories[c] = flagged
		if flagged {
			out.Flagged = true
		}
	}
	return out
}

// Action returns the action and whether alwaysRemoveMinorSexual overrides it
// for a flagged Result.
func (r Result) Action(cfg settings.Layer2) (string, bool) {
	if cfg.AlwaysRemoveMinorSexual && r.Categories[CategorySexualMinors] {
		return "REMOVE", true
	}
	if r.Flagged {
		return cfg.Action, true
	}
	return "", false
}
