package retry

import (
	"fmt"
	"time"
)

// Action is the kind of recovery chosen for a failed attempt.
type Action int

const (
	// ActionGiveUp stops retrying and returns the latest error.
	ActionGiveUp Action = iota

	// ActionRetry retries after the next backoff delay.
	ActionRetry

	// ActionRetryAfter retries no earlier than Decision.NotBefore.
	ActionRetryAfter
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionGiveUp:
		return "give_up"
	case ActionRetry:
		return "retry"
	case ActionRetryAfter:
		return "retry_after"
	default:
		return "unknown"
	}
}

// ParseAction parses the string form of an action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "give_up":
		return ActionGiveUp, nil
	case "retry":
		return ActionRetry, nil
	case "retry_after":
		return ActionRetryAfter, nil
	default:
		return ActionGiveUp, fmt.Errorf("unknown retry action %q", s)
	}
}

// Decision is the outcome of classifying a failure.
type Decision[I any] struct {
	Action Action

	// NotBefore is the earliest instant for the next attempt. It is only
	// meaningful when Action is ActionRetryAfter.
	NotBefore I
}

// Retry returns a decision to retry after the next backoff delay.
func Retry[I any]() Decision[I] {
	return Decision[I]{Action: ActionRetry}
}

// RetryAfter returns a decision to retry no earlier than notBefore, for
// example a server's advertised Retry-After instant.
func RetryAfter[I any](notBefore I) Decision[I] {
	return Decision[I]{Action: ActionRetryAfter, NotBefore: notBefore}
}

// GiveUp returns a decision to stop retrying.
func GiveUp[I any]() Decision[I] {
	return Decision[I]{Action: ActionGiveUp}
}

// Classifier decides how to recover from a failure. Implementations are
// shared by every invocation that uses the same Config and must be safe for
// concurrent use.
//
// Classify is never called for cancellation or for errors wrapped with
// Retryable or NotRetryable.
type Classifier[I any] interface {
	Classify(err error) Decision[I]
}

// ClassifierFunc is an adapter that allows a function to be used as a
// Classifier.
type ClassifierFunc[I any] func(err error) Decision[I]

// Classify implements Classifier.
func (f ClassifierFunc[I]) Classify(err error) Decision[I] {
	return f(err)
}

// ShouldRetryFunc is the simplified boolean form of a Classifier.
type ShouldRetryFunc func(err error) bool

// FromShouldRetry maps a boolean predicate onto Retry and GiveUp.
func FromShouldRetry[I any](fn ShouldRetryFunc) Classifier[I] {
	return ClassifierFunc[I](func(err error) Decision[I] {
		if fn(err) {
			return Retry[I]()
		}
		return GiveUp[I]()
	})
}

// AlwaysRetry is the default classifier: every failure that reaches it is
// retried, subject to the attempt budget.
func AlwaysRetry[I any]() Classifier[I] {
	return ClassifierFunc[I](func(error) Decision[I] {
		return Retry[I]()
	})
}

// TimeDecision is the Decision type used with the system clock.
type TimeDecision = Decision[time.Time]
