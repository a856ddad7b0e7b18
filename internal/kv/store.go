// Package kv implements the KV substrate contract of the host platform
// (get/set/del/incrBy/zAdd/zRange/sMembers) on top of Redis, plus the
// versioned Key Builder every other component goes through.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// SetOptions mirrors the host contract's set(key, value, {expiration?, nx?}).
type SetOptions struct {
	// Expiration is the TTL to attach to the key. Zero means no expiry.
	Expiration time.Duration
	// NX sets the key only if it does not already exist (used by the
	// coalescer's distributed single-flight lock).
	NX bool
}

// Store wraps a Redis client with the exact KV operations the pipeline and
// its supporting components rely on.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps an already-connected Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies the underlying Redis connection is reachable, used by the
// server's readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get reads a string value. Returns ErrNotFound if the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return val, nil
}

// Set writes a string value, honoring the given options. When NX is set and
// the key already exists, Set returns ok=false without error — the caller
// uses this to detect lock contention.
func (s *Store) Set(ctx context.Context, key, value string, opts SetOptions) (bool, error) {
	if opts.NX {
		ok, err := s.rdb.SetNX(ctx, key, value, opts.Expiration).Result()
		if err != nil {
			return false, fmt.Errorf("kv setnx %q: %w", key, err)
		}
		return ok, nil
	}
	if err := s.rdb.Set(ctx, key, value, opts.Expiration).Err(); err != nil {
		return false, fmt.Errorf("kv set %q: %w", key, err)
	}
	return true, nil
}

// Del removes one or more keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv del: %w", err)
	}
	return nil
}

// IncrBy atomically increments key by delta, returning the new value. If
// ttl is positive, the TTL is (re)applied to the key on every call.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := s.rdb.Pipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv incrby %q: %w", key, err)
	}
	return incr.Val(), nil
}

// IncrByFloat atomically increments a floating-point counter, used by the
// cost ledger for fractional USD amounts.
func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	pipe := s.rdb.Pipeline()
	incr := pipe.IncrByFloat(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv incrbyfloat %q: %w", key, err)
	}
	return incr.Val(), nil
}

// ZAdd adds a member with the given score to a sorted set.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("kv zadd %q: %w", key, err)
	}
	return nil
}

// ZRange returns members in the given rank range, ascending by score.
func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("kv zrange %q: %w", key, err)
	}
	return vals, nil
}

// SAdd adds one or more members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	anyMembers := make([]any, len(members))
	for i, m := range members {
		anyMembers[i] = m
	}
	if err := s.rdb.SAdd(ctx, key, anyMembers...).Err(); err != nil {
		return fmt.Errorf("kv sadd %q: %w", key, err)
	}
	return nil
}

// SMembers returns all members of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv smembers %q: %w", key, err)
	}
	return vals, nil
}

// Expire sets a TTL on an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv expire %q: %w", key, err)
	}
	return nil
}

// TrackUser records userID as having a cache entry under subreddit, so
// ClearSubredditCache can later invalidate it without a key scan.
func (s *Store) TrackUser(ctx context.Context, kb *KeyBuilder, subreddit, userID string) error {
	return s.SAdd(ctx, kb.trackedUsersKey(subreddit), userID)
}

// TrackCostUser records userID as having a cost-ledger entry under
// subreddit, mirroring TrackUser for the budget-clearing path.
func (s *Store) TrackCostUser(ctx context.Context, kb *KeyBuilder, subreddit, userID string) error {
	return s.SAdd(ctx, kb.trackedCostUsersKey(subreddit), userID)
}

// ClearUserCache deletes a single user's keys for each of the given parts
// (e.g. "profile", "history").
func (s *Store) ClearUserCache(ctx context.Context, kb *KeyBuilder, userID string, parts ...string) error {
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, kb.User(userID, p))
	}
	return s.Del(ctx, keys...)
}

// ClearSubredditCache invalidates every tracked per-user key under a
// subreddit, and optionally the cost-ledger tracked set as well, by
// SMembers-ing the tracked-users sets and bulk-deleting — never a KV scan.
func (s *Store) ClearSubredditCache(ctx context.Context, kb *KeyBuilder, subreddit string, includeCost bool, parts ...string) error {
	users, err := s.SMembers(ctx, kb.trackedUsersKey(subreddit))
	if err != nil {
		return fmt.Errorf("listing tracked users for %q: %w", subreddit, err)
	}
	for _, u := range users {
		if err := s.ClearUserCache(ctx, kb, u, parts...); err != nil {
			return err
		}
	}
	if err := s.Del(ctx, kb.trackedUsersKey(subreddit)); err != nil {
		return err
	}

	if !includeCost {
		return nil
	}

	costUsers, err := s.SMembers(ctx, kb.trackedCostUsersKey(subreddit))
	if err != nil {
		return fmt.Errorf("listing tracked cost users for %q: %w", subreddit, err)
	}
	for _, u := range costUsers {
		if err := s.Del(ctx, kb.User(u, "cost")); err != nil {
			return err
		}
	}
	return s.Del(ctx, kb.trackedCostUsersKey(subreddit))
}
