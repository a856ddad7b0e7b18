// Package costledger accounts LM spend per day and per (day, provider),
// enforcing daily/monthly budgets and emitting threshold-crossing
// notifications (delivery is an external collaborator's responsibility).
package costledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
)

// retentionTTL is the TTL applied to every per-day cost counter: 35 days,
// comfortably longer than the monthly budget window it backs.
const retentionTTL = 35 * 24 * time.Hour

// thresholds are the spend fractions that trigger a ThresholdCrossing.
var thresholds = []float64{0.5, 0.75, 0.9}

// ThresholdCrossing is emitted when cumulative spend crosses one of the
// configured fractions of a budget limit. Delivery (notification, digest)
// is handled outside this package.
type ThresholdCrossing struct {
	Subreddit string
	Period    string // "daily" or "monthly"
	Fraction  float64
	Spent     float64
	Limit     float64
}

// Ledger tracks and enforces cost budgets.
type Ledger struct {
	store *kv.Store
}

// New creates a Ledger.
func New(store *kv.Store) *Ledger {
	return &Ledger{store: store}
}

func dayKey(kb *kv.KeyBuilder, subreddit, day string) string {
	return kb.Global("cost", subreddit, "day", day)
}

func dayProviderKey(kb *kv.KeyBuilder, subreddit, day, provider string) string {
	return kb.Global("cost", subreddit, "day", day, provider)
}

func monthKey(kb *kv.KeyBuilder, subreddit, month, provider string) string {
	return kb.Global("cost", subreddit, "month", month, provider)
}

func dayString(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthString(t time.Time) string { return t.UTC().Format("2006-01") }

// Check reports whether a call costing estimatedCost fits within the
// community's daily and monthly limits (true = allowed; a limit of 0 means
// no limit).
func (l *Ledger) Check(ctx context.Context, kb *kv.KeyBuilder, subreddit string, dailyLimit, monthlyLimit, estimatedCost float64) (bool, error) {
	now := time.Now()

	daySpent, err := l.readFloat(ctx, dayKey(kb, subreddit, dayString(now)))
	if err != nil {
		return false, err
	}
	if dailyLimit > 0 && daySpent+estimatedCost > dailyLimit {
		return false, nil
	}

	monthSpent, err := l.monthSpent(ctx, kb, subreddit, monthString(now))
	if err != nil {
		return false, err
	}
	if monthlyLimit > 0 && monthSpent+estimatedCost > monthlyLimit {
		return false, nil
	}

	return true, nil
}

func (l *Ledger) monthSpent(ctx context.Context, kb *kv.KeyBuilder, subreddit, month string) (float64, error) {
	return l.readFloat(ctx, kb.Global("cost", subreddit, "month", month, "total"))
}

func (l *Ledger) readFloat(ctx context.Context, key string) (float64, error) {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, nil
	}
	var v float64
	_, scanErr := fmt.Sscanf(raw, "%g", &v)
	if scanErr != nil {
		return 0, nil
	}
	return v, nil
}

// Record increments the day, day+provider, and month+provider counters for
// a completed LM call, attributes the cost to userID for per-user cache
// bookkeeping, and reports any budget thresholds newly crossed.
func (l *Ledger) Record(ctx context.Context, kb *kv.KeyBuilder, subreddit, userID, provider string, cost, dailyLimit, monthlyLimit float64) ([]ThresholdCrossing, error) {
	now := time.Now()
	day, month := dayString(now), monthString(now)

	if userID != "" {
		l.recordUserAttribution(ctx, kb, subreddit, userID, provider, cost, now)
	}

	before, err := l.readFloat(ctx, dayKey(kb, subreddit, day))
	if err != nil {
		return nil, err
	}

	if _, err := l.store.IncrByFloat(ctx, dayKey(kb, subreddit, day), cost, retentionTTL); err != nil {
		return nil, fmt.Errorf("incrementing daily cost: %w", err)
	}
	if _, err := l.store.IncrByFloat(ctx, dayProviderKey(kb, subreddit, day, provider), cost, retentionTTL); err != nil {
		return nil, fmt.Errorf("incrementing daily provider cost: %w", err)
	}
	if _, err := l.store.IncrByFloat(ctx, monthKey(kb, subreddit, month, provider), cost, retentionTTL); err != nil {
		return nil, fmt.Errorf("incrementing monthly provider cost: %w", err)
	}
	monthTotalBefore, err := l.monthSpent(ctx, kb, subreddit, month)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.IncrByFloat(ctx, kb.Global("cost", subreddit, "month", month, "total"), cost, retentionTTL); err != nil {
		return nil, fmt.Errorf("incrementing monthly total cost: %w", err)
	}

	after := before + cost
	monthAfter := monthTotalBefore + cost

	var crossings []ThresholdCrossing
	if dailyLimit > 0 {
		crossings = append(crossings, crossed("daily", subreddit, before, after, dailyLimit)...)
	}
	if monthlyLimit > 0 {
		crossings = append(crossings, crossed("monthly", subreddit, monthTotalBefore, monthAfter, monthlyLimit)...)
	}

	return crossings, nil
}

// userAttribution is the cache payload recorded per user per subreddit, so
// ClearSubredditCache(includeCost=true) has something real to evict for a
// superseded settings generation instead of a dead key convention.
type userAttribution struct {
	Provider     string    `json:"provider"`
	LastCostUSD  float64   `json:"lastCostUsd"`
	RecordedAt   time.Time `json:"recordedAt"`
}

func (l *Ledger) recordUserAttribution(ctx context.Context, kb *kv.KeyBuilder, subreddit, userID, provider string, cost float64, now time.Time) {
	encoded, err := json.Marshal(userAttribution{Provider: provider, LastCostUSD: cost, RecordedAt: now.UTC()})
	if err != nil {
		return
	}
	if _, err := l.store.Set(ctx, kb.User(userID, "cost"), string(encoded), kv.SetOptions{Expiration: retentionTTL}); err != nil {
		return
	}
	_ = l.store.TrackCostUser(ctx, kb, subreddit, userID)
}

func crossed(period, subreddit string, before, after, limit float64) []ThresholdCrossing {
	var out []ThresholdCrossing
	for _, frac := range thresholds {
		mark := limit * frac
		if before < mark && after >= mark {
			out = append(out, ThresholdCrossing{
				Subreddit: subreddit,
				Period:    period,
				Fraction:  frac,
				Spent:     after,
				Limit:     limit,
			})
		}
	}
	return out
}
