package timeutil

import (
	"context"
	"time"
)

// PeriodFromHz converts a loop rate to a tick period. Non-positive rates
// fall back to the provided default.
func PeriodFromHz(hz float64, fallback time.Duration) time.Duration {
	if hz <= 0 {
		return fallback
	}
	return time.Duration(float64(time.Second) / hz)
}

// RunFixedRate calls fn once per period until ctx is cancelled. The context
// is observed at every tick boundary, which is the only place the loop
// suspends. fn receives the clock time of the tick.
func RunFixedRate(ctx context.Context, clock Clock, period time.Duration, fn func(now time.Time)) error {
	ticker := clock.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(now)
		}
	}
}
