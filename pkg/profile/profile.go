// Package profile fetches and caches the account facts and recent activity
// window the rest of the pipeline evaluates against.
package profile

import (
	"encoding/json"
	"time"
)

// UserProfile holds immutable-once-cached account facts.
type UserProfile struct {
	UserID           string    `json:"userId"`
	Username         string    `json:"username"`
	AccountAgeDays   int       `json:"accountAgeDays"`
	CommentKarma     int       `json:"commentKarma"`
	PostKarma        int       `json:"postKarma"`
	TotalKarma       int       `json:"totalKarma"`
	EmailVerified    bool      `json:"emailVerified"`
	IsModerator      bool      `json:"isModerator"`
	HasFlair         bool      `json:"hasFlair"`
	HasPremium       bool      `json:"hasPremium"`
	IsVerified       bool      `json:"isVerified"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// HistoryItem is one entry in a PostHistory window.
type HistoryItem struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // post|comment
	Subreddit string `json:"subreddit"`
	Content   string `json:"content"`
	Score     int    `json:"score"`
	CreatedAt int64  `json:"createdAt"`
}

// HistoryMetrics summarizes a PostHistory window.
type HistoryMetrics struct {
	TotalItems         int     `json:"totalItems"`
	PostsInTargetSubs  int     `json:"postsInTargetSubs"`
	PostsInDatingSubs  int     `json:"postsInDatingSubs"`
	AvgScore           float64 `json:"avgScore"`
	OldestItemDate     int64   `json:"oldestItemDate"`
	NewestItemDate     int64   `json:"newestItemDate"`
}

// PostHistory is the cached recent-activity window for a user.
type PostHistory struct {
	UserID  string         `json:"userId"`
	Items   []HistoryItem  `json:"items"`
	Metrics HistoryMetrics `json:"metrics"`
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func unmarshal[T any](s string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
