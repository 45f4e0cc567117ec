package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"
)

// RetryPolicy bounds retries of retryable backend failures. Jitter is seeded
// from the request fingerprint so delays are reproducible in tests; it
// defaults off for determinism.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	Jitter        bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   4,
		InitialDelay:  200 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      60 * time.Second,
		Jitter:        false,
	}
}

// SleepFunc abstracts retry sleeping so tests can run without wall-clock
// delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DelayForAttempt computes the backoff delay before retry number attempt
// (1-indexed): initial * factor^(attempt-1), capped, then jittered.
func DelayForAttempt(attempt int, p RetryPolicy, seed string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.InitialDelay <= 0 {
		return 0
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1.0
	}

	ms := float64(p.InitialDelay.Milliseconds()) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 {
		ms = math.Min(ms, float64(p.MaxDelay.Milliseconds()))
	}
	if p.Jitter {
		ms *= 0.5 + jitterUnit(seed) // [0.5, 1.5]
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func jitterUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	return float64(u) / float64(^uint64(0))
}
