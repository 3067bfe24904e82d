// Package clock abstracts the passage of time for the retry engine.
//
// The abstraction is generic over the instant and duration types so the
// engine never hard-codes time.Time. time.Time and time.Duration satisfy the
// constraints directly, and the package ships a real System clock plus a
// deterministic Fake for tests.
package clock

import (
	"context"
	"time"
)

// Duration is the constraint for clock durations. Durations are counted in
// integer units, so any delay can be expressed as a whole number of ticks
// of a clock's minimum resolution.
type Duration interface {
	~int64
}

// Instant is the constraint for points in time of a clock whose durations
// are D.
type Instant[I any, D Duration] interface {
	Add(d D) I
	Sub(other I) D
	Before(other I) bool
}

// Resolver exposes the smallest duration a clock can distinguish.
type Resolver[D Duration] interface {
	// MinimumResolution returns a constant duration greater than zero.
	MinimumResolution() D
}

// Clock supplies the current time and a cancellable suspension primitive.
type Clock[I Instant[I, D], D Duration] interface {
	Resolver[D]

	// Now returns the current instant. Successive calls never go backwards.
	Now() I

	// SleepUntil blocks until the clock has reached deadline. It returns
	// ctx.Err() as soon as ctx is done, whether that happens before or
	// during the wait.
	SleepUntil(ctx context.Context, deadline I) error
}

// System is the real monotonic clock.
type System struct{}

var _ Clock[time.Time, time.Duration] = System{}

// Now implements Clock.
func (System) Now() time.Time {
	return time.Now()
}

// MinimumResolution implements Clock.
func (System) MinimumResolution() time.Duration {
	return time.Nanosecond
}

// SleepUntil implements Clock.
func (System) SleepUntil(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d := time.Until(deadline)
	if d <= 0 {
		return nil
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
