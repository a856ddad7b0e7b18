// Package ratelimiter implements the fixed-window limiter for calls to
// external APIs (LM providers, the safety classifier), generalized from the
// teacher's login rate limiter onto a configurable window/limit and backed
// by the same Redis INCR+EXPIRE shape.
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

const defaultWindow = 60 * time.Second
const defaultLimit = 60

// ErrRateLimited is returned by fn passed to WithRetry to mark a
// rate-limit-class failure eligible for retry; any other error propagates
// immediately.
var ErrRateLimited = errors.New("ratelimiter: rate limited")

// Limiter is a fixed-window rate limiter keyed by an arbitrary string
// (provider name, endpoint, etc). The window starts at the first call after
// the key is absent and the count resets only when the key expires; the
// window does not slide.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// New creates a Limiter. limit<=0 defaults to 60 requests per 60s window.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = defaultLimit
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

func (l *Limiter) key(name string) string {
	return "ratelimit:" + name
}

// CheckLimit blocks (respecting ctx) until a slot in the current window is
// free, then records the call.
func (l *Limiter) CheckLimit(ctx context.Context, name string) error {
	for {
		count, err := l.rdb.Get(ctx, l.key(name)).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("checking rate limit: %w", err)
		}

		if count < l.limit {
			pipe := l.rdb.Pipeline()
			incr := pipe.Incr(ctx, l.key(name))
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("recording rate limit: %w", err)
			}
			if incr.Val() == 1 {
				l.rdb.Expire(ctx, l.key(name), l.window)
			}
			return nil
		}

		ttl, err := l.rdb.TTL(ctx, l.key(name)).Result()
		if err != nil {
			return fmt.Errorf("getting rate limit TTL: %w", err)
		}
		if ttl <= 0 {
			ttl = l.window
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ttl):
		}
	}
}

// WithRetry retries fn up to maxRetries times with backoff 2^i*1s, but only
// when fn fails with ErrRateLimited; any other error propagates immediately.
func WithRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	operation := func() (struct{}, error) {
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		attempt++
		if !errors.Is(err, ErrRateLimited) {
			return struct{}{}, backoff.Permanent(err)
		}
		if attempt > maxRetries {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxRetries)+1))
	return err
}
