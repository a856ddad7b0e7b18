// Package coalescer implements the distributed single-flight guarantee: at
// most one concurrent LM analysis per user. Followers poll a per-user result
// key rather than blocking in-process, so the guarantee holds across replicas
// sharing the same KV substrate.
package coalescer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
)

const (
	lockTTL       = 30 * time.Second
	maxWait       = 30 * time.Second
	pollStart     = 500 * time.Millisecond
	pollMax       = 1000 * time.Millisecond
	pollBackoff   = 1.5
)

// InFlightRequest is the value stored at the lock key while a leader holds
// it, used both as the lock payload and for diagnostics.
type InFlightRequest struct {
	UserID        string    `json:"userId"`
	CorrelationID string    `json:"correlationId"`
	StartTime     time.Time `json:"startTime"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Coalescer guards LM calls with a KV-backed lock plus result-key polling.
type Coalescer struct {
	store  *kv.Store
	logger *slog.Logger
}

// New creates a Coalescer.
func New(store *kv.Store, logger *slog.Logger) *Coalescer {
	return &Coalescer{store: store, logger: logger}
}

func lockKey(kb *kv.KeyBuilder, userID string) string {
	return kb.User(userID, "ai-inflight")
}

func resultKey(kb *kv.KeyBuilder, userID string) string {
	return kb.User(userID, "ai-analysis")
}

// AcquireLock attempts to become the leader for userID. Returns true if
// newly acquired. On any KV error, fails safe by returning false so the
// caller proceeds non-coalesced rather than block moderation.
func (c *Coalescer) AcquireLock(ctx context.Context, kb *kv.KeyBuilder, userID, correlationID string) bool {
	now := time.Now().UTC()
	req := InFlightRequest{
		UserID:        userID,
		CorrelationID: correlationID,
		StartTime:     now,
		ExpiresAt:     now.Add(lockTTL),
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		c.logger.Error("coalescer: marshaling in-flight request", "error", err)
		return false
	}

	ok, err := c.store.Set(ctx, lockKey(kb, userID), string(encoded), kv.SetOptions{Expiration: lockTTL, NX: true})
	if err != nil {
		c.logger.Warn("coalescer: acquire lock failed", "user_id", userID, "error", err)
		return false
	}
	return ok
}

// ReleaseLock deletes the lock; a missing key is not an error.
func (c *Coalescer) ReleaseLock(ctx context.Context, kb *kv.KeyBuilder, userID string) {
	if err := c.store.Del(ctx, lockKey(kb, userID)); err != nil {
		c.logger.Warn("coalescer: release lock failed", "user_id", userID, "error", err)
	}
}

// PublishResult stores resultJSON at the user's result key so followers
// waiting in WaitForResult observe it.
func (c *Coalescer) PublishResult(ctx context.Context, kb *kv.KeyBuilder, userID, resultJSON string, ttl time.Duration) error {
	_, err := c.store.Set(ctx, resultKey(kb, userID), resultJSON, kv.SetOptions{Expiration: ttl})
	return err
}

// WaitForResult polls the user's result key with backoff (500ms -> 1000ms,
// x1.5) until it appears or maxWait elapses, returning ok=false on timeout
// or context cancellation.
func (c *Coalescer) WaitForResult(ctx context.Context, kb *kv.KeyBuilder, userID string) (string, bool) {
	deadline := time.Now().Add(maxWait)
	interval := pollStart

	for time.Now().Before(deadline) {
		val, err := c.store.Get(ctx, resultKey(kb, userID))
		if err == nil {
			return val, true
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * pollBackoff)
		if interval > pollMax {
			interval = pollMax
		}
	}
	return "", false
}

// GetInFlightRequest is a diagnostic reader; a corrupt stored value is
// deleted and treated as absent.
func (c *Coalescer) GetInFlightRequest(ctx context.Context, kb *kv.KeyBuilder, userID string) (InFlightRequest, bool) {
	raw, err := c.store.Get(ctx, lockKey(kb, userID))
	if err != nil {
		return InFlightRequest{}, false
	}

	var req InFlightRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		_ = c.store.Del(ctx, lockKey(kb, userID))
		return InFlightRequest{}, false
	}
	return req, true
}
