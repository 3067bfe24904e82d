// Package idempotent restricts retries to requests that are safe to repeat.
//
// Do and DoValue refuse to run a request that does not report itself as
// idempotent. DoUnsafe and DoValueUnsafe skip that check for callers that
// know better. In both cases a request implementing Overrider sees every
// failure before the classifier does, so protocol-aware requests can force
// transport failures to be retried and permanent ones to be final.
package idempotent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaretry/internal/clock"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// ErrNotIdempotent is returned by Do and DoValue, without invoking the
// operation, when the request is not idempotent.
var ErrNotIdempotent = errors.New("idempotent: request is not idempotent")

// Request reports whether repeating an operation has the same effect as
// performing it once.
type Request interface {
	IsIdempotent() bool
}

// Overrider is implemented by requests that adjust classification. Override
// returns err unchanged or wrapped with retry.Retryable or
// retry.NotRetryable.
type Overrider interface {
	Override(err error) error
}

// Do runs op under cfg if req is idempotent and returns ErrNotIdempotent
// otherwise.
func Do[I clock.Instant[I, D], D clock.Duration](
	ctx context.Context,
	cfg retry.Config[I, D],
	req Request,
	op retry.Func,
) error {
	_, err := DoValue(ctx, cfg, req, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any, I clock.Instant[I, D], D clock.Duration](
	ctx context.Context,
	cfg retry.Config[I, D],
	req Request,
	op func(ctx context.Context) (T, error),
) (T, error) {
	if req == nil || !req.IsIdempotent() {
		cfg.Logger().Debug("refusing to retry non-idempotent request",
			zap.String("operation", cfg.Operation()),
		)
		var zero T
		return zero, ErrNotIdempotent
	}
	return DoValueUnsafe(ctx, cfg, req, op)
}

// DoUnsafe runs op under cfg without checking that req is idempotent.
func DoUnsafe[I clock.Instant[I, D], D clock.Duration](
	ctx context.Context,
	cfg retry.Config[I, D],
	req Request,
	op retry.Func,
) error {
	_, err := DoValueUnsafe(ctx, cfg, req, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValueUnsafe is DoUnsafe for operations that produce a value. A nil req
// runs op with the configured classifier alone.
func DoValueUnsafe[T any, I clock.Instant[I, D], D clock.Duration](
	ctx context.Context,
	cfg retry.Config[I, D],
	req Request,
	op func(ctx context.Context) (T, error),
) (T, error) {
	return retry.DoValue(ctx, cfg, overridden(req, op))
}

func overridden[T any](req Request, op func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	o, ok := req.(Overrider)
	if !ok {
		return op
	}
	return func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err != nil {
			return v, o.Override(err)
		}
		return v, nil
	}
}

// marked reports whether err already carries a retry marker. Overrides
// leave such errors alone so an explicit marker from the operation wins.
func marked(err error) bool {
	var r *retry.RetryableError
	var n *retry.NotRetryableError
	return errors.As(err, &r) || errors.As(err, &n)
}
