package trust

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
)

// Kind distinguishes post-trust from comment-trust tracking, which are kept
// independent so high comment approval never uplifts post trust.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// Action is a pipeline decision that feeds the community-trust counters.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionFlag    Action = "FLAG"
	ActionRemove  Action = "REMOVE"
)

const approvedRecordTTL = 24 * time.Hour

// counters holds the raw submitted/approved/flagged/removed tallies for one
// (user, subreddit, kind).
type counters struct {
	Submitted     int       `json:"submitted"`
	Approved      int       `json:"approved"`
	Flagged       int       `json:"flagged"`
	Removed       int       `json:"removed"`
	LastActivity  time.Time `json:"lastActivity"`
	LastCalculated time.Time `json:"lastCalculated"`
}

func (c counters) approvalRate() float64 {
	if c.Submitted == 0 {
		return 0
	}
	return float64(c.Approved) / float64(c.Submitted) * 100
}

// Status is the public getTrust result.
type Status struct {
	IsTrusted      bool
	ApprovalRate   float64
	Submissions    int
	Reason         string
	MonthsInactive int
	DecayApplied   float64
}

// Tracker implements the CommunityTrust bypass gate and its counters.
// Its thresholds are supplied per call, not fixed at construction, since
// they come from the per-community settings.Community.Trust the caller
// already read for this event.
type Tracker struct {
	store *kv.Store
}

// NewTracker creates a Tracker.
func NewTracker(store *kv.Store) *Tracker {
	return &Tracker{store: store}
}

func counterKey(kb *kv.KeyBuilder, userID, subreddit string, kind Kind) string {
	return kb.User(userID, "community-trust", subreddit, string(kind))
}

func (t *Tracker) load(ctx context.Context, kb *kv.KeyBuilder, userID, subreddit string, kind Kind) counters {
	raw, err := t.store.Get(ctx, counterKey(kb, userID, subreddit, kind))
	if err != nil {
		return counters{}
	}
	var c counters
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return counters{}
	}
	return c
}

func (t *Tracker) save(ctx context.Context, kb *kv.KeyBuilder, userID, subreddit string, kind Kind, c counters) error {
	encoded, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling community-trust counters: %w", err)
	}
	_, err = t.store.Set(ctx, counterKey(kb, userID, subreddit, kind), string(encoded), kv.SetOptions{})
	return err
}

// GetTrust returns the bypass decision for (userID, subreddit, kind):
// trusted iff submissions >= minSubmissions and the decayed approval rate
// (raw rate minus 5 points per calendar month of inactivity) clears
// minApprovalRate. Both thresholds come from the community's own settings
// (settings.Community.Trust), not a process-wide default, since they are
// configurable per community.
func (t *Tracker) GetTrust(ctx context.Context, kb *kv.KeyBuilder, userID, subreddit string, kind Kind, minSubmissions int, minApprovalRate float64) Status {
	c := t.load(ctx, kb, userID, subreddit, kind)
	rawRate := c.approvalRate()

	months := monthsInactive(c.LastActivity)
	decay := 5.0 * float64(months)
	effective := rawRate - decay
	if effective < 0 {
		effective = 0
	}

	trusted := c.Submitted >= minSubmissions && effective >= minApprovalRate

	reason := "insufficient submissions or approval rate"
	if trusted {
		reason = "community trust bypass"
	}

	return Status{
		IsTrusted:      trusted,
		ApprovalRate:   rawRate,
		Submissions:    c.Submitted,
		Reason:         reason,
		MonthsInactive: months,
		DecayApplied:   decay,
	}
}

// ApprovedCount returns the number of the user's approved submissions in
// subreddit, the TrustScore's fourth component (spec's "approved in
// subreddit" factor).
func (t *Tracker) ApprovedCount(ctx context.Context, kb *kv.KeyBuilder, userID, subreddit string, kind Kind) int {
	return t.load(ctx, kb, userID, subreddit, kind).Approved
}

// UpdateTrust increments the counters for (userID, subreddit, kind) after a
// pipeline decision. APPROVE also refreshes lastActivity.
func (t *Tracker) UpdateTrust(ctx context.Context, kb *kv.KeyBuilder, userID, subreddit string, action Action, kind Kind) error {
	c := t.load(ctx, kb, userID, subreddit, kind)
	c.Submitted++
	c.LastCalculated = time.Now().UTC()

	switch action {
	case ActionApprove:
		c.Approved++
		c.LastActivity = time.Now().UTC()
	case ActionFlag:
		c.Flagged++
	case ActionRemove:
		c.Removed++
	}

	return t.save(ctx, kb, userID, subreddit, kind, c)
}

// approvedRecord is the ApprovedContentRecord written on every APPROVE so a
// later moderator removal can be retroactively attributed.
type approvedRecord struct {
	ContentID   string    `json:"contentId"`
	UserID      string    `json:"userId"`
	Subreddit   string    `json:"subreddit"`
	ContentKind Kind      `json:"contentType"`
	ApprovedAt  time.Time `json:"approvedAt"`
}

func approvedRecordKey(kb *kv.KeyBuilder, contentID string) string {
	return kb.Global("approved-content", contentID)
}

// TrackApproved writes the 24h ApprovedContentRecord for contentID.
func (t *Tracker) TrackApproved(ctx context.Context, kb *kv.KeyBuilder, contentID, userID, subreddit string, kind Kind) error {
	rec := approvedRecord{
		ContentID:   contentID,
		UserID:      userID,
		Subreddit:   subreddit,
		ContentKind: kind,
		ApprovedAt:  time.Now().UTC(),
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling approved-content record: %w", err)
	}
	_, err = t.store.Set(ctx, approvedRecordKey(kb, contentID), string(encoded), kv.SetOptions{Expiration: approvedRecordTTL})
	return err
}

// RetroactiveRemoval decrements approved/increments removed for the user
// behind contentID, if an ApprovedContentRecord is still live, and deletes
// the record. No-op if the record has already expired or never existed.
func (t *Tracker) RetroactiveRemoval(ctx context.Context, kb *kv.KeyBuilder, contentID string) error {
	key := approvedRecordKey(kb, contentID)
	raw, err := t.store.Get(ctx, key)
	if err != nil {
		return nil
	}

	var rec approvedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return t.store.Del(ctx, key)
	}

	c := t.load(ctx, kb, rec.UserID, rec.Subreddit, rec.ContentKind)
	if c.Approved > 0 {
		c.Approved--
	}
	c.Removed++
	if err := t.save(ctx, kb, rec.UserID, rec.Subreddit, rec.ContentKind, c); err != nil {
		return err
	}

	return t.store.Del(ctx, key)
}

func monthsInactive(lastActivity time.Time) int {
	if lastActivity.IsZero() {
		return 0
	}
	now := time.Now().UTC()
	months := (now.Year()-lastActivity.Year())*12 + int(now.Month()) - int(lastActivity.Month())
	if now.Day() < lastActivity.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return months
}
