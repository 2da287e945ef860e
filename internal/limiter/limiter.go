// Package limiter throttles the request rate against a remote service.
package limiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces remote calls.
type Limiter interface {
	// Wait blocks until a new call may start.
	Wait(ctx context.Context) error
	// Pause applies the mandatory delay after a completed call.
	Pause(ctx context.Context) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Throttle combines an optional token bucket ceiling with a fixed post-call delay.
type Throttle struct {
	delay  time.Duration
	bucket *rate.Limiter
	sleep  SleepFunc
}

// NewThrottle constructs a throttle. delay is applied after every completed call;
// perSecond <= 0 disables the proactive ceiling. A nil sleep means Sleep.
func NewThrottle(delay time.Duration, perSecond float64, sleep SleepFunc) *Throttle {
	t := &Throttle{delay: delay, sleep: sleep}
	if t.sleep == nil {
		t.sleep = Sleep
	}
	if perSecond > 0 {
		t.bucket = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return t
}

// Wait blocks on the token bucket, if any.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.bucket == nil {
		return ctx.Err()
	}
	return t.bucket.Wait(ctx)
}

// Pause sleeps for the configured delay.
func (t *Throttle) Pause(ctx context.Context) error {
	if t.delay <= 0 {
		return nil
	}
	return t.sleep(ctx, t.delay)
}

// Delay reports the post-call delay.
func (t *Throttle) Delay() time.Duration { return t.delay }
