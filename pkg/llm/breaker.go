package llm

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerProvider wraps a Provider with a circuit breaker so a failing
// vendor is given time to recover instead of being hammered by every
// incoming event.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps inner with a circuit breaker: opens after 5
// consecutive failures, half-opens after 30s.
func NewBreakerProvider(inner Provider) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        "llm-" + inner.Name(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

func (b *BreakerProvider) Complete(ctx context.Context, prompt, model string, opts CompleteOptions) (CompleteResult, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Complete(ctx, prompt, model, opts)
	})
	if err != nil {
		return CompleteResult{}, err
	}
	return result.(CompleteResult), nil
}
