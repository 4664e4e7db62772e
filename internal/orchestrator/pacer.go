package orchestrator

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces batches so bulk runs stay under the provider's request-rate
// ceiling. The pacing policy is swappable without touching orchestration.
type Pacer interface {
	// Wait blocks until the next batch may start, or the context ends.
	Wait(ctx context.Context) error
}

// FixedDelayPacer sleeps a constant duration between batches.
type FixedDelayPacer struct {
	Delay time.Duration
}

// Wait sleeps for the configured delay.
func (p FixedDelayPacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TokenBucketPacer admits batches through a token bucket, smoothing bursts
// instead of sleeping a fixed interval.
type TokenBucketPacer struct {
	limiter *rate.Limiter
}

// NewTokenBucketPacer creates a pacer admitting batchesPerSecond with the
// given burst.
func NewTokenBucketPacer(batchesPerSecond float64, burst int) *TokenBucketPacer {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketPacer{limiter: rate.NewLimiter(rate.Limit(batchesPerSecond), burst)}
}

// Wait blocks until a token is available.
func (p *TokenBucketPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
