package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Delay returns the un-jittered delay before retry n, where n is 0 for the
// first retry on a model: min(InitialDelay * BackoffMultiplier^n, MaxDelay).
func (c Config) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(n))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// newBackOff returns the jittered delay sequence for one model. Successive
// NextBackOff calls yield Delay(0), Delay(1), ... each randomized within
// ±Jitter. The sequence never stops on its own; the attempt budget does.
func (c Config) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(c.InitialDelay, c.MaxDelay)
	b.MaxInterval = c.MaxDelay
	b.Multiplier = c.BackoffMultiplier
	b.RandomizationFactor = c.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
