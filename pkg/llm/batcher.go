package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/pkg/coalescer"
	"github.com/cdmackie/automod-core/pkg/costledger"
)

const providerTimeout = 15 * time.Second

// EvalContext carries the evaluation-time facts the fingerprint and prompt
// are built from.
type EvalContext struct {
	UserID         string
	Subreddit      string
	ContentKind    string
	CurrentText    string
	ProfileSummary string
}

// Batcher implements the LM Question Batcher: fingerprinted answer cache,
// distributed single-flight via Coalescer, budget enforcement via
// costledger.Ledger, and primary/fallback provider calls.
type Batcher struct {
	store     *kv.Store
	coalescer *coalescer.Coalescer
	ledger    *costledger.Ledger
	registry  *Registry
	logger    *slog.Logger
}

// NewBatcher creates a Batcher.
func NewBatcher(store *kv.Store, c *coalescer.Coalescer, ledger *costledger.Ledger, registry *Registry, logger *slog.Logger) *Batcher {
	return &Batcher{store: store, coalescer: c, ledger: ledger, registry: registry, logger: logger}
}

// BatchOptions configures one Batch call.
type BatchOptions struct {
	PrimaryProvider   string
	FallbackProvider  string
	Model             string
	DailyBudgetUSD    float64
	MonthlyBudgetUSD  float64
	AnswerCacheTTL    time.Duration
}

// Fingerprint computes the deterministic cache key for a set of questions
// over an evaluation context.
func Fingerprint(questions []Question, ec EvalContext) string {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(ec.UserID))
	h.Write([]byte(ec.Subreddit))
	h.Write([]byte(ec.ContentKind))
	h.Write([]byte(strings.Join(ids, ",")))
	h.Write([]byte(normalizeText(ec.CurrentText)))
	h.Write([]byte(ec.ProfileSummary))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func answerCacheKey(kb *kv.KeyBuilder, fingerprint string) string {
	return kb.Global("ai-cache", fingerprint)
}

// Batch runs the full LM Question Batcher protocol, returning ok=false when
// the batch failed or the budget would be exceeded — AI rules are skipped
// in either case and the pipeline continues.
func (b *Batcher) Batch(ctx context.Context, kb *kv.KeyBuilder, questions []Question, ec EvalContext, opts BatchOptions) (AIBatchResult, bool) {
	fingerprint := Fingerprint(questions, ec)
	cacheKey := answerCacheKey(kb, fingerprint)

	if result, ok := b.readCache(ctx, cacheKey); ok {
		return result, true
	}

	correlationID := fingerprint[:16]
	if b.coalescer.AcquireLock(ctx, kb, ec.UserID, correlationID) {
		defer b.coalescer.ReleaseLock(ctx, kb, ec.UserID)
		return b.runPrimary(ctx, kb, cacheKey, questions, ec, opts)
	}

	if raw, ok := b.coalescer.WaitForResult(ctx, kb, ec.UserID); ok {
		if result, ok := decodeBatch(raw); ok {
			return result, true
		}
	}

	// Follower timed out waiting for the leader; proceed as primary.
	if b.coalescer.AcquireLock(ctx, kb, ec.UserID, correlationID) {
		defer b.coalescer.ReleaseLock(ctx, kb, ec.UserID)
		return b.runPrimary(ctx, kb, cacheKey, questions, ec, opts)
	}

	return AIBatchResult{}, false
}

func (b *Batcher) readCache(ctx context.Context, cacheKey string) (AIBatchResult, bool) {
	raw, err := b.store.Get(ctx, cacheKey)
	if err != nil {
		return AIBatchResult{}, false
	}
	return decodeBatch(raw)
}

func decodeBatch(raw string) (AIBatchResult, bool) {
	var result AIBatchResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return AIBatchResult{}, false
	}
	return result, true
}

func (b *Batcher) runPrimary(ctx context.Context, kb *kv.KeyBuilder, cacheKey string, questions []Question, ec EvalContext, opts BatchOptions) (AIBatchResult, bool) {
	allowed, err := b.ledger.Check(ctx, kb, ec.Subreddit, opts.DailyBudgetUSD, opts.MonthlyBudgetUSD, estimateCost(opts.Model))
	if err != nil {
		b.logger.Warn("cost ledger check failed", "error", err)
	}
	if !allowed {
		b.logger.Info("llm batch skipped: budget exceeded", "subreddit", ec.Subreddit)
		return AIBatchResult{}, false
	}

	result, err := b.callWithFallback(ctx, kb, questions, ec, opts)
	if err != nil {
		b.logger.Warn("llm batch failed", "error", err)
		return AIBatchResult{}, false
	}

	encoded, err := json.Marshal(result)
	if err == nil {
		ttl := opts.AnswerCacheTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		_, _ = b.store.Set(ctx, cacheKey, string(encoded), kv.SetOptions{Expiration: ttl})
		_ = b.coalescer.PublishResult(ctx, kb, ec.UserID, string(encoded), ttl)
	}

	return result, true
}

func estimateCost(model string) float64 {
	return Cost(model, 1500, 500)
}

func (b *Batcher) callWithFallback(ctx context.Context, kb *kv.KeyBuilder, questions []Question, ec EvalContext, opts BatchOptions) (AIBatchResult, error) {
	prompt := buildPrompt(questions, ec)

	primary, err := b.registry.Get(opts.PrimaryProvider)
	if err == nil {
		result, callErr := b.call(ctx, kb, primary, prompt, ec, opts, questions)
		if callErr == nil {
			return result, nil
		}
		b.logger.Warn("primary llm provider failed, trying fallback", "provider", opts.PrimaryProvider, "error", callErr)
	}

	if opts.FallbackProvider == "" {
		return AIBatchResult{}, fmt.Errorf("primary provider %q unavailable and no fallback configured", opts.PrimaryProvider)
	}

	fallback, err := b.registry.Get(opts.FallbackProvider)
	if err != nil {
		return AIBatchResult{}, fmt.Errorf("fallback provider: %w", err)
	}
	return b.call(ctx, kb, fallback, prompt, ec, opts, questions)
}

// call runs one provider completion and records its cost to the ledger as
// soon as the provider call succeeds, whether or not the response parses:
// the tokens were spent either way, and the budget must reflect that even
// when a malformed response later fails the batch.
func (b *Batcher) call(ctx context.Context, kb *kv.KeyBuilder, provider Provider, prompt string, ec EvalContext, opts BatchOptions, questions []Question) (AIBatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	raw, err := provider.Complete(ctx, prompt, opts.Model, CompleteOptions{MaxTokens: 1024, Temperature: 0})
	if err != nil {
		return AIBatchResult{}, fmt.Errorf("%s completion: %w", provider.Name(), err)
	}

	costUSD := Cost(opts.Model, raw.TokensIn, raw.TokensOut)
	b.recordCost(ctx, kb, ec.Subreddit, ec.UserID, provider.Name(), costUSD, opts.DailyBudgetUSD, opts.MonthlyBudgetUSD)

	answers, parseErr := parseAnswers(raw.Text, questions)
	if parseErr != nil {
		return AIBatchResult{}, fmt.Errorf("%s response: %w", provider.Name(), parseErr)
	}

	return AIBatchResult{
		Answers:    answers,
		Provider:   provider.Name(),
		Model:      opts.Model,
		TokensUsed: raw.TokensIn + raw.TokensOut,
		CostUSD:    costUSD,
	}, nil
}

func (b *Batcher) recordCost(ctx context.Context, kb *kv.KeyBuilder, subreddit, userID, provider string, costUSD, dailyBudgetUSD, monthlyBudgetUSD float64) {
	crossings, err := b.ledger.Record(ctx, kb, subreddit, userID, provider, costUSD, dailyBudgetUSD, monthlyBudgetUSD)
	if err != nil {
		b.logger.Warn("cost ledger record failed", "error", err)
		return
	}
	for _, c := range crossings {
		b.logger.Info("cost budget threshold crossed",
			"subreddit", c.Subreddit, "period", c.Period, "fraction", c.Fraction, "spent", c.Spent, "limit", c.Limit)
	}
}

func buildPrompt(questions []Question, ec EvalContext) string {
	var b strings.Builder
	b.WriteString("You are a content moderation assistant. Answer each question about the following content as a JSON array of objects with fields questionId, answer (YES|NO|UNSURE), confidence (0-100), reasoning (<=400 chars).\n\n")
	fmt.Fprintf(&b, "Content (%s in r/%s):\n%s\n\n", ec.ContentKind, ec.Subreddit, ec.CurrentText)
	b.WriteString("Questions:\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "- id=%s: %s", q.ID, q.Text)
		if q.Context != "" {
			fmt.Fprintf(&b, " (context: %s)", q.Context)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with only the JSON array.")
	return b.String()
}

type rawAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// parseAnswers strictly validates that every requested question ID is
// present, clamping confidence and truncating reasoning. Malformed entries
// become UNSURE at confidence 0 rather than failing the whole batch.
func parseAnswers(text string, questions []Question) ([]AIAnswer, error) {
	jsonStart := strings.Index(text, "[")
	jsonEnd := strings.LastIndex(text, "]")
	if jsonStart < 0 || jsonEnd < jsonStart {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var raws []rawAnswer
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &raws); err != nil {
		return nil, fmt.Errorf("decoding answers: %w", err)
	}

	byID := make(map[string]rawAnswer, len(raws))
	for _, r := range raws {
		byID[r.QuestionID] = r
	}

	answers := make([]AIAnswer, 0, len(questions))
	for _, q := range questions {
		r, ok := byID[q.ID]
		if !ok {
			answers = append(answers, AIAnswer{QuestionID: q.ID, Answer: AnswerUnsure, Confidence: 0})
			continue
		}
		answer := normalizeAnswer(r.Answer)
		confidence := clampConfidence(r.Confidence)
		if answer != Answer(r.Answer) {
			confidence = 0
		}
		answers = append(answers, AIAnswer{
			QuestionID: q.ID,
			Answer:     answer,
			Confidence: confidence,
			Reasoning:  truncateReasoning(r.Reasoning),
		})
	}
	return answers, nil
}
