// Package trust implements the per-(user, subreddit) TrustScore (metadata
// only) and the CommunityTrust approval-rate bypass gate.
package trust

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/profile"
)

const scoreTTL = 7 * 24 * time.Hour

// Scorer computes and caches the metadata-only TrustScore (0-100).
type Scorer struct {
	store *kv.Store
}

// NewScorer creates a Scorer.
func NewScorer(store *kv.Store) *Scorer {
	return &Scorer{store: store}
}

// Score computes the TrustScore for a user, using approvedCount (the
// number of the user's approved submissions in this subreddit) as the
// fourth component.
func Score(p profile.UserProfile, approvedCount int) int {
	score := accountAgeComponent(p.AccountAgeDays) +
		karmaComponent(p.TotalKarma) +
		emailComponent(p.EmailVerified) +
		approvedComponent(approvedCount)

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// IsTrusted reports whether score clears the metadata-only trust bar.
func IsTrusted(score int) bool {
	return score >= 70
}

func accountAgeComponent(days int) int {
	switch {
	case days < 7:
		return 0
	case days < 30:
		return 10
	case days < 90:
		return 20
	case days < 365:
		return 30
	default:
		return 40
	}
}

func karmaComponent(karma int) int {
	switch {
	case karma < 10:
		return 0
	case karma < 100:
		return 5
	case karma < 500:
		return 10
	case karma < 1000:
		return 15
	case karma < 5000:
		return 20
	default:
		return 30
	}
}

func emailComponent(verified bool) int {
	if verified {
		return 15
	}
	return 0
}

func approvedComponent(approved int) int {
	switch {
	case approved <= 0:
		return 0
	case approved <= 2:
		return 5
	case approved <= 5:
		return 10
	default:
		return 15
	}
}

// cachedScore is the JSON shape stored in the KV substrate.
type cachedScore struct {
	Score     int       `json:"score"`
	CachedAt  time.Time `json:"cachedAt"`
}

// Cached returns a previously cached score, if present.
func (s *Scorer) Cached(ctx context.Context, kb *kv.KeyBuilder, userID string) (int, bool) {
	raw, err := s.store.Get(ctx, kb.User(userID, "trustscore"))
	if err != nil {
		return 0, false
	}
	var cs cachedScore
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return 0, false
	}
	return cs.Score, true
}

// Cache stores score with the 7-day TTL, tracking userID under subreddit so
// ClearSubredditCache can find and evict it without a KV scan.
func (s *Scorer) Cache(ctx context.Context, kb *kv.KeyBuilder, subreddit, userID string, score int) {
	encoded, err := json.Marshal(cachedScore{Score: score, CachedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	_, _ = s.store.Set(ctx, kb.User(userID, "trustscore"), string(encoded), kv.SetOptions{Expiration: scoreTTL})
	_ = s.store.TrackUser(ctx, kb, subreddit, userID)
}

// Invalidate clears the cached score, called on any negative mod action.
func (s *Scorer) Invalidate(ctx context.Context, kb *kv.KeyBuilder, userID string) error {
	return s.store.ClearUserCache(ctx, kb, userID, "trustscore")
}

// contentKindOf maps a content.Kind to the CommunityTrust tracking kind.
func contentKindOf(k content.Kind) Kind {
	if k == content.KindComment {
		return KindComment
	}
	return KindPost
}
