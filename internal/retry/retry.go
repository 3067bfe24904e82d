package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// Func is an operation retried by Do.
type Func func(ctx context.Context) error

// maxAccumulatedDelays bounds the backoff draws spent honoring a single
// RetryAfter decision.
const maxAccumulatedDelays = 1 << 12

// Do invokes op until it succeeds, the classifier gives up, the attempt
// budget runs out or ctx is cancelled. It returns nil on success and
// otherwise the latest failure with retry markers stripped.
func Do[I clock.Instant[I, D], D clock.Duration](ctx context.Context, cfg Config[I, D], op Func) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any, I clock.Instant[I, D], D clock.Duration](
	ctx context.Context,
	cfg Config[I, D],
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if err := cfg.validate(); err != nil {
		return zero, err
	}

	r := &run[I, D]{
		cfg:        cfg,
		clock:      cfg.clock,
		algorithm:  cfg.backoff.Make(cfg.clock),
		classifier: cfg.Classifier(),
		logger:     cfg.Logger(),
	}

	for attempt := 0; ; {
		r.invocations++
		v, err := op(ctx)
		if err == nil {
			r.finish(ctx, ResultSuccess, nil)
			return v, nil
		}

		next, err := r.recover(ctx, attempt, err)
		if err != nil {
			return zero, err
		}
		attempt = next
	}
}

// run is the state of one invocation. It is never shared.
type run[I clock.Instant[I, D], D clock.Duration] struct {
	cfg         Config[I, D]
	clock       clock.Clock[I, D]
	algorithm   backoff.Algorithm[D]
	classifier  Classifier[I]
	logger      *zap.Logger
	invocations int
}

// recover handles a failed attempt. It either suspends and returns the
// next attempt number, or returns the error to hand to the caller.
func (r *run[I, D]) recover(ctx context.Context, attempt int, failure error) (int, error) {
	decision, latest := classify(ctx, failure, r.classifier)
	event := AttemptEvent[D]{
		Operation: r.cfg.operation,
		Attempt:   attempt,
		Err:       latest,
		Action:    decision.Action,
	}

	switch decision.Action {
	case ActionRetry:
		if r.exhausted(attempt) {
			return 0, r.giveUp(ctx, event, ResultExhausted)
		}
		now := r.clock.Now()
		event.Delay = r.algorithm.NextDelay()
		event.Consumed = 1
		if err := r.suspend(ctx, event, now.Add(event.Delay)); err != nil {
			return 0, err
		}
		return attempt + 1, nil

	case ActionRetryAfter:
		now := r.clock.Now()
		event.RetryAfter = max(decision.NotBefore.Sub(now), 0)
		for {
			if r.exhausted(attempt + event.Consumed) {
				return 0, r.giveUp(ctx, event, ResultExhausted)
			}
			event.Delay = AddSaturating(event.Delay, r.algorithm.NextDelay())
			event.Consumed++
			if !now.Add(event.Delay).Before(decision.NotBefore) {
				break
			}
			// Only reachable without an attempt budget, where a backoff
			// that keeps drawing zero would never reach the instant.
			if event.Consumed >= maxAccumulatedDelays {
				event.Delay = max(event.Delay, event.RetryAfter)
				break
			}
		}
		if err := r.suspend(ctx, event, now.Add(event.Delay)); err != nil {
			return 0, err
		}
		return attempt + event.Consumed, nil

	default:
		result := ResultGaveUp
		if IsCancellation(ctx, latest) {
			result = ResultCancelled
		}
		return 0, r.giveUp(ctx, event, result)
	}
}

// exhausted reports whether no attempt may follow attempt.
func (r *run[I, D]) exhausted(attempt int) bool {
	return r.cfg.maxAttempts > 0 && attempt+1 >= r.cfg.maxAttempts
}

func (r *run[I, D]) suspend(ctx context.Context, event AttemptEvent[D], deadline I) error {
	r.attemptFailed(ctx, event)
	if err := r.clock.SleepUntil(ctx, deadline); err != nil {
		r.finish(ctx, ResultCancelled, err)
		return err
	}
	return nil
}

func (r *run[I, D]) giveUp(ctx context.Context, event AttemptEvent[D], result Result) error {
	event.Action = ActionGiveUp
	event.Delay = 0
	r.attemptFailed(ctx, event)
	r.finish(ctx, result, event.Err)
	return event.Err
}

func (r *run[I, D]) attemptFailed(ctx context.Context, event AttemptEvent[D]) {
	if ce := r.logger.Check(zap.DebugLevel, "attempt failed"); ce != nil {
		fields := []zap.Field{
			zap.String("operation", event.Operation),
			zap.Int("attempt", event.Attempt),
			zap.String("error_type", fmt.Sprintf("%T", event.Err)),
			zap.Error(event.Err),
			zap.Stringer("action", event.Action),
		}
		if event.Action != ActionGiveUp {
			fields = append(fields, durationField("delay", event.Delay))
		}
		if event.RetryAfter > 0 || event.Action == ActionRetryAfter {
			fields = append(fields, durationField("retry_after", event.RetryAfter))
		}
		ce.Write(fields...)
	}

	for _, o := range r.cfg.observers {
		o.AttemptFailed(ctx, event)
	}
}

func (r *run[I, D]) finish(ctx context.Context, result Result, err error) {
	if len(r.cfg.observers) == 0 {
		return
	}
	event := FinishEvent{
		Operation: r.cfg.operation,
		Attempts:  r.invocations,
		Result:    result,
		Err:       err,
	}
	for _, o := range r.cfg.observers {
		o.Finished(ctx, event)
	}
}

// AddSaturating adds two non-negative durations, clamping at the largest
// representable value.
func AddSaturating[D clock.Duration](a, b D) D {
	if b > D(math.MaxInt64)-a {
		return D(math.MaxInt64)
	}
	return a + b
}

// durationField logs time.Duration natively and other duration types as
// their integer value.
func durationField[D clock.Duration](key string, d D) zap.Field {
	if td, ok := any(d).(time.Duration); ok {
		return zap.Duration(key, td)
	}
	return zap.Int64(key, int64(d))
}
