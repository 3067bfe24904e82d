package retry

import (
	"context"

	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// Result is how an invocation ended.
type Result string

// Invocation results.
const (
	ResultSuccess   Result = "success"
	ResultGaveUp    Result = "give_up"
	ResultExhausted Result = "exhausted"
	ResultCancelled Result = "cancelled"
)

// AttemptEvent describes a failed attempt.
type AttemptEvent[D clock.Duration] struct {
	// Operation is the Config operation label.
	Operation string

	// Attempt is the zero-based attempt number.
	Attempt int

	// Err is the failure with retry markers stripped.
	Err error

	// Action is the recovery applied. It is ActionGiveUp when the attempt
	// budget ran out, even if the classifier asked for a retry.
	Action Action

	// Delay is the total suspension before the next attempt. Zero when
	// giving up.
	Delay D

	// RetryAfter is the minimum delay requested by a RetryAfter decision.
	RetryAfter D

	// Consumed is the number of backoff delays drawn for this attempt.
	Consumed int
}

// FinishEvent describes the end of an invocation.
type FinishEvent struct {
	Operation string

	// Attempts is the number of times the operation was invoked.
	Attempts int

	Result Result

	// Err is the error returned to the caller, nil on success.
	Err error
}

// Observer receives engine events. Methods are called synchronously from
// the invoking goroutine and must be safe for concurrent use.
type Observer[D clock.Duration] interface {
	AttemptFailed(ctx context.Context, event AttemptEvent[D])
	Finished(ctx context.Context, event FinishEvent)
}
