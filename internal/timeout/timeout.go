// Package timeout bounds individual attempts of a retried operation.
//
// An attempt that runs past its limit fails with *Error, which reports
// itself as a network timeout so the network classifier retries it. When
// the caller's own context ends first the operation's error is returned
// unchanged and the engine treats it as cancellation.
package timeout

import (
	"context"
	"errors"
	"time"
)

// PhaseAttempt labels errors raised by Attempt.
const PhaseAttempt = "attempt"

// Error is returned when a phase runs out of time.
type Error struct {
	Phase string
	Limit time.Duration
	Err   error
}

func (e *Error) Error() string {
	msg := e.Phase + " timeout after " + e.Limit.String()
	if e.Err != nil && !errors.Is(e.Err, context.DeadlineExceeded) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the error the operation reported when it was cut off.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout always reports true. Together with Temporary it satisfies
// net.Error.
func (e *Error) Timeout() bool { return true }

// Temporary always reports true.
func (e *Error) Temporary() bool { return true }

// IsTimeout returns true if err is, or wraps, an *Error.
func IsTimeout(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Attempt bounds every call of op by limit. A non-positive limit returns
// op unchanged.
func Attempt(limit time.Duration, op func(ctx context.Context) error) func(ctx context.Context) error {
	if limit <= 0 {
		return op
	}
	return func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		err := op(attemptCtx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return &Error{Phase: PhaseAttempt, Limit: limit, Err: err}
		}
		return err
	}
}
