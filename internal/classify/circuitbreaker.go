package classify

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreaker handles rejections from a gobreaker circuit breaker. An
// open breaker is retried no earlier than openFor from now, which should
// match the breaker's Timeout. A half-open breaker refusing extra requests
// is retried after the next backoff delay. Other failures go to inner.
func CircuitBreaker(openFor time.Duration, inner Classifier, opts ...Option) Classifier {
	if inner == nil {
		inner = Never()
	}
	o := newOptions(opts)

	return Func(func(err error) Decision {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			return retryAfter(o.now, openFor)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			return retryNow()
		default:
			return inner.Classify(err)
		}
	})
}
