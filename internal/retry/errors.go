package retry

import (
	"context"
	"errors"
)

// Configuration errors returned by Do and DoValue before the first attempt.
var (
	// ErrNoClock is returned when the Config has no clock, for example the
	// zero Config.
	ErrNoClock = errors.New("retry: config has no clock")

	// ErrNoBackoff is returned when the Config has no backoff factory.
	ErrNoBackoff = errors.New("retry: config has no backoff")
)

// RetryableError marks an error as retryable regardless of the configured
// classifier. The attempt budget and cancellation still apply.
type RetryableError struct {
	Err error
}

// Error returns the message of the wrapped error.
func (e *RetryableError) Error() string {
	if e.Err == nil {
		return "retryable error"
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NotRetryableError marks an error as final regardless of the configured
// classifier.
type NotRetryableError struct {
	Err error
}

// Error returns the message of the wrapped error.
func (e *NotRetryableError) Error() string {
	if e.Err == nil {
		return "not retryable error"
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *NotRetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err so that it is always retried. The wrapper is stripped
// before the error is logged or returned. Retryable(nil) returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// NotRetryable wraps err so that it is never retried. The wrapper is
// stripped before the error is logged or returned. NotRetryable(nil)
// returns nil.
func NotRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NotRetryableError{Err: err}
}

// IsCancellation reports whether err signals cooperative cancellation of
// the calling context: context.Canceled anywhere in the chain, or the error
// ctx itself reports once it is done (which covers the caller's deadline).
// A deadline of a per-attempt child context is not a cancellation of ctx.
func IsCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return true
	}
	return false
}

// marker is the classification forced by a wrapper on the error chain.
type marker int

const (
	markerNone marker = iota
	markerRetryable
	markerNotRetryable
)

// findMarker walks the unwrap chain and returns the outermost marker.
func findMarker(err error) marker {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e.(type) {
		case *RetryableError:
			return markerRetryable
		case *NotRetryableError:
			return markerNotRetryable
		}
	}
	return markerNone
}

// stripMarkers removes every marker sitting directly on top of err, so
// NotRetryable(Retryable(e)) becomes e. A marker with no payload is kept
// so a failure never strips down to nil.
func stripMarkers(err error) error {
	for {
		switch m := err.(type) {
		case *RetryableError:
			if m.Err == nil {
				return err
			}
			err = m.Err
		case *NotRetryableError:
			if m.Err == nil {
				return err
			}
			err = m.Err
		default:
			return err
		}
	}
}

// classify applies the recovery rules to a failed attempt in strict order:
// cancellation, then the outermost marker, then the classifier. The
// returned error has its markers stripped. Cancellation revealed by
// stripping always forces a give-up.
func classify[I any](ctx context.Context, err error, c Classifier[I]) (decision Decision[I], latest error) {
	latest = stripMarkers(err)

	if IsCancellation(ctx, err) {
		return GiveUp[I](), latest
	}

	switch findMarker(err) {
	case markerRetryable:
		decision = Retry[I]()
	case markerNotRetryable:
		decision = GiveUp[I]()
	default:
		decision = c.Classify(err)
	}

	if IsCancellation(ctx, latest) {
		return GiveUp[I](), latest
	}
	return decision, latest
}

// Decide applies the engine's recovery rules to a failed attempt without
// running anything: cancellation first, then the outermost marker, then
// the classifier. The returned error has its markers stripped.
func (c Config[I, D]) Decide(ctx context.Context, err error) (Decision[I], error) {
	return classify(ctx, err, c.Classifier())
}
