package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/pkg/coalescer"
	"github.com/cdmackie/automod-core/pkg/costledger"
)

type fakeProvider struct {
	name   string
	result CompleteResult
	err    error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Complete(ctx context.Context, prompt, model string, opts CompleteOptions) (CompleteResult, error) {
	return f.result, f.err
}

func newTestBatcher(t *testing.T, providers ...Provider) (*Batcher, *kv.KeyBuilder) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := kv.NewStore(rdb)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry()
	for _, p := range providers {
		registry.Register(p)
	}

	batcher := NewBatcher(store, coalescer.New(store, logger), costledger.New(store), registry, logger)
	return batcher, kv.NewKeyBuilder("1", "1")
}

func TestBatchRecordsCostEvenWhenParseFails(t *testing.T) {
	provider := &fakeProvider{
		name:   "primary",
		result: CompleteResult{Text: "not a json array", TokensIn: 1000, TokensOut: 1000},
	}
	batcher, kb := newTestBatcher(t, provider)

	questions := []Question{{ID: "q1", Text: "is this spam?"}}
	ec := EvalContext{UserID: "u1", Subreddit: "golang", ContentKind: "post", CurrentText: "hello"}
	opts := BatchOptions{PrimaryProvider: "primary", Model: "gpt-4o"}

	_, ok := batcher.Batch(context.Background(), kb, questions, ec, opts)
	if ok {
		t.Fatal("Batch() ok = true, want false on unparseable provider response")
	}

	allowed, err := batcher.ledger.Check(context.Background(), kb, "golang", 0, 0.0000001, 0)
	if err != nil {
		t.Fatalf("ledger.Check: %v", err)
	}
	if allowed {
		t.Error("ledger recorded no spend for a provider call whose response failed to parse, want the incurred cost recorded regardless")
	}
}

func TestBatchDoesNotRecordCostWhenProviderCallFails(t *testing.T) {
	provider := &fakeProvider{name: "primary", err: errors.New("connection refused")}
	batcher, kb := newTestBatcher(t, provider)

	questions := []Question{{ID: "q1", Text: "is this spam?"}}
	ec := EvalContext{UserID: "u1", Subreddit: "golang", ContentKind: "post", CurrentText: "hello"}
	opts := BatchOptions{PrimaryProvider: "primary", Model: "gpt-4o"}

	_, ok := batcher.Batch(context.Background(), kb, questions, ec, opts)
	if ok {
		t.Fatal("Batch() ok = true, want false when the provider call itself fails")
	}

	allowed, err := batcher.ledger.Check(context.Background(), kb, "golang", 0, 0.0000001, 0)
	if err != nil {
		t.Fatalf("ledger.Check: %v", err)
	}
	if !allowed {
		t.Error("ledger recorded spend for a call that never reached the provider, want no cost recorded")
	}
}

func TestBatchRecordsCostOnSuccess(t *testing.T) {
	provider := &fakeProvider{
		name: "primary",
		result: CompleteResult{
			Text:      `[{"questionId":"q1","answer":"YES","confidence":90,"reasoning":"matches"}]`,
			TokensIn:  1000,
			TokensOut: 1000,
		},
	}
	batcher, kb := newTestBatcher(t, provider)

	questions := []Question{{ID: "q1", Text: "is this spam?"}}
	ec := EvalContext{UserID: "u1", Subreddit: "golang", ContentKind: "post", CurrentText: "hello"}
	opts := BatchOptions{PrimaryProvider: "primary", Model: "gpt-4o"}

	result, ok := batcher.Batch(context.Background(), kb, questions, ec, opts)
	if !ok {
		t.Fatal("Batch() ok = false, want true on a successful call")
	}
	if len(result.Answers) != 1 || result.Answers[0].Answer != AnswerYes {
		t.Errorf("Answers = %+v, want one YES answer", result.Answers)
	}

	allowed, err := batcher.ledger.Check(context.Background(), kb, "golang", 0, 0.0000001, 0)
	if err != nil {
		t.Fatalf("ledger.Check: %v", err)
	}
	if allowed {
		t.Error("ledger recorded no spend after a successful call")
	}
}
