package entrez

import (
	"context"
	"time"
)

// Throttle spaces consecutive calls to one remote service by at least
// interval, measured from the end of the previous call.
// It is not safe for concurrent use.
type Throttle struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewThrottle returns a throttle with the given minimum spacing.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, now: time.Now, sleep: sleepCtx}
}

// Interval returns the configured spacing.
func (t *Throttle) Interval() time.Duration { return t.interval }

// Wait blocks until the interval since the last call has elapsed.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.last.IsZero() || t.interval <= 0 {
		return ctx.Err()
	}
	remaining := t.interval - t.now().Sub(t.last)
	if remaining <= 0 {
		return ctx.Err()
	}
	return t.sleep(ctx, remaining)
}

// Done marks the end of a call, successful or not.
func (t *Throttle) Done() {
	t.last = t.now()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
