package classify

import (
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// Budget caps the retry rate of a process. Every retry decision of inner
// must take a token from limiter; when the bucket is empty the failure
// gives up instead, so retries cannot amplify an outage. Give-up decisions
// never consume tokens.
//
// The limiter is shared by every invocation using the classifier.
func Budget(limiter *rate.Limiter, inner Classifier, opts ...Option) Classifier {
	if inner == nil {
		inner = Always()
	}
	o := newOptions(opts)

	return Func(func(err error) Decision {
		d := inner.Classify(err)
		if d.Action == retry.ActionGiveUp || limiter == nil {
			return d
		}
		if !limiter.AllowN(o.now.Now(), 1) {
			return giveUp()
		}
		return d
	})
}

// NewBudgetLimiter returns a limiter refilled at perSecond retries per
// second holding up to burst tokens.
func NewBudgetLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
