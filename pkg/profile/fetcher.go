package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/pkg/platform"
)

const (
	profileTTL = 24 * time.Hour
	historyTTL = 24 * time.Hour

	historyFetchLimit = 100
)

// Fetcher fetches UserProfile and PostHistory from the host, caching both
// in the KV substrate with a 24 h TTL.
type Fetcher struct {
	host  platform.Host
	store *kv.Store
}

// NewFetcher creates a Fetcher.
func NewFetcher(host platform.Host, store *kv.Store) *Fetcher {
	return &Fetcher{host: host, store: store}
}

// Profile returns the cached UserProfile, fetching and caching on miss.
// subreddit is tracked against the cache entry so a later bulk invalidation
// (ClearSubredditCache) can find it without a KV scan.
func (f *Fetcher) Profile(ctx context.Context, kb *kv.KeyBuilder, subreddit, userID string) (UserProfile, error) {
	key := kb.User(userID, "profile")

	if cached, err := f.store.Get(ctx, key); err == nil {
		if p, perr := unmarshal[UserProfile](cached); perr == nil {
			return p, nil
		}
	}

	info, err := f.host.GetUserByID(ctx, userID)
	if err != nil {
		return UserProfile{}, fmt.Errorf("fetching user %s: %w", userID, err)
	}

	profile := UserProfile{
		UserID:         info.ID,
		Username:       info.Username,
		AccountAgeDays: accountAgeDays(info.CreatedAt),
		CommentKarma:   info.CommentKarma,
		PostKarma:      info.LinkKarma,
		TotalKarma:     info.LinkKarma + info.CommentKarma,
		EmailVerified:  info.HasVerifiedEmail,
		FetchedAt:      time.Now().UTC(),
	}

	if encoded, err := marshal(profile); err == nil {
		_, _ = f.store.Set(ctx, key, encoded, kv.SetOptions{Expiration: profileTTL})
		_ = f.store.TrackUser(ctx, kb, subreddit, userID)
	}

	return profile, nil
}

// History returns the cached PostHistory, fetching and caching on miss.
// targetSubs and datingSubs drive the cross-posting metrics the rule engine
// and trust score consult. subreddit is tracked the same way Profile does.
func (f *Fetcher) History(ctx context.Context, kb *kv.KeyBuilder, subreddit, userID, username string, targetSubs, datingSubs []string) (PostHistory, error) {
	key := kb.User(userID, "history")

	if cached, err := f.store.Get(ctx, key); err == nil {
		if h, herr := unmarshal[PostHistory](cached); herr == nil {
			return h, nil
		}
	}

	raw, err := f.host.GetCommentsAndPostsByUser(ctx, username, historyFetchLimit)
	if err != nil {
		return PostHistory{}, fmt.Errorf("fetching history for %s: %w", username, err)
	}

	items := make([]HistoryItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, HistoryItem{
			ID:        r.ID,
			Kind:      r.Kind,
			Subreddit: r.Subreddit,
			Content:   r.Content,
			Score:     r.Score,
			CreatedAt: r.CreatedAt,
		})
	}

	history := PostHistory{
		UserID:  userID,
		Items:   items,
		Metrics: computeMetrics(items, targetSubs, datingSubs),
	}

	if encoded, err := marshal(history); err == nil {
		_, _ = f.store.Set(ctx, key, encoded, kv.SetOptions{Expiration: historyTTL})
		_ = f.store.TrackUser(ctx, kb, subreddit, userID)
	}

	return history, nil
}

// Invalidate clears the cached profile and history for userID, used after a
// negative mod action.
func (f *Fetcher) Invalidate(ctx context.Context, kb *kv.KeyBuilder, userID string) error {
	return f.store.ClearUserCache(ctx, kb, userID, "profile", "history")
}

func accountAgeDays(createdAtMillis int64) int {
	created := time.UnixMilli(createdAtMillis)
	return int(time.Since(created).Hours() / 24)
}

func computeMetrics(items []HistoryItem, targetSubs, datingSubs []string) HistoryMetrics {
	m := HistoryMetrics{TotalItems: len(items)}
	if len(items) == 0 {
		return m
	}

	targetSet := toSet(targetSubs)
	datingSet := toSet(datingSubs)

	var scoreSum int
	oldest, newest := items[0].CreatedAt, items[0].CreatedAt
	for _, it := range items {
		scoreSum += it.Score
		if it.CreatedAt < oldest {
			oldest = it.CreatedAt
		}
		if it.CreatedAt > newest {
			newest = it.CreatedAt
		}
		if it.Kind == "post" {
			if targetSet[it.Subreddit] {
				m.PostsInTargetSubs++
			}
			if datingSet[it.Subreddit] {
				m.PostsInDatingSubs++
			}
		}
	}

	m.AvgScore = float64(scoreSum) / float64(len(items))
	m.OldestItemDate = oldest
	m.NewestItemDate = newest
	return m
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, i := range items {
		s[i] = true
	}
	return s
}
