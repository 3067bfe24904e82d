// Package classify provides retry classifiers for common failure sources:
// network errors, HTTP responses, gRPC statuses, Redis replies, Kubernetes
// API errors, Vault responses and circuit breakers, plus combinators, CEL
// rules and a token bucket retry budget.
//
// Every classifier is a retry.Classifier[time.Time] and is safe for
// concurrent use.
package classify

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaretry/internal/clock"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// Classifier is the classifier type produced by this package.
type Classifier = retry.Classifier[time.Time]

// Decision is the decision type produced by this package.
type Decision = retry.TimeDecision

// Nower supplies the current time for RetryAfter decisions.
type Nower interface {
	Now() time.Time
}

// Option configures a classifier.
type Option func(*options)

type options struct {
	now    Nower
	logger *zap.Logger
}

// WithClock sets the time source used to turn relative delays into
// RetryAfter instants. It should be the clock of the retry.Config the
// classifier is used with.
func WithClock(n Nower) Option {
	return func(o *options) {
		if n != nil {
			o.now = n
		}
	}
}

// WithLogger sets the logger used to report classifier problems, such as
// a rule that fails to evaluate.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{now: clock.System{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func retryNow() Decision {
	return retry.Retry[time.Time]()
}

func giveUp() Decision {
	return retry.GiveUp[time.Time]()
}

func retryAt(t time.Time) Decision {
	return retry.RetryAfter(t)
}

func retryAfter(now Nower, d time.Duration) Decision {
	if d <= 0 {
		return retryNow()
	}
	return retryAt(now.Now().Add(d))
}

// Func is an adapter that allows a function to be used as a Classifier.
type Func = retry.ClassifierFunc[time.Time]

// Always retries every failure.
func Always() Classifier {
	return Func(func(error) Decision { return retryNow() })
}

// Never gives up on every failure.
func Never() Classifier {
	return Func(func(error) Decision { return giveUp() })
}

// Predicate retries when fn reports true.
func Predicate(fn func(err error) bool) Classifier {
	return retry.FromShouldRetry[time.Time](fn)
}

// Errors retries failures that match any of targets with errors.Is.
func Errors(targets ...error) Classifier {
	return Predicate(func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// First asks each classifier in order and returns the first decision that
// is not a give-up. It gives up when every classifier does.
func First(classifiers ...Classifier) Classifier {
	return Func(func(err error) Decision {
		for _, c := range classifiers {
			if c == nil {
				continue
			}
			if d := c.Classify(err); d.Action != retry.ActionGiveUp {
				return d
			}
		}
		return giveUp()
	})
}

// All retries only when every classifier retries. The latest RetryAfter
// instant among them wins. It gives up when classifiers is empty.
func All(classifiers ...Classifier) Classifier {
	return Func(func(err error) Decision {
		if len(classifiers) == 0 {
			return giveUp()
		}
		result := retryNow()
		for _, c := range classifiers {
			d := c.Classify(err)
			switch d.Action {
			case retry.ActionGiveUp:
				return d
			case retry.ActionRetryAfter:
				if result.Action != retry.ActionRetryAfter || d.NotBefore.After(result.NotBefore) {
					result = d
				}
			}
		}
		return result
	})
}
