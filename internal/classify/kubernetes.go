package classify

import (
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Kubernetes classifies Kubernetes API errors. A server-suggested client
// delay becomes a RetryAfter decision. Timeouts, throttling, internal
// errors, unavailability and optimistic-concurrency conflicts are retried.
// Everything else gives up.
func Kubernetes(opts ...Option) Classifier {
	o := newOptions(opts)

	return Func(func(err error) Decision {
		if seconds, ok := apierrors.SuggestsClientDelay(err); ok {
			return retryAfter(o.now, time.Duration(seconds)*time.Second)
		}

		switch {
		case apierrors.IsServerTimeout(err),
			apierrors.IsTimeout(err),
			apierrors.IsTooManyRequests(err),
			apierrors.IsInternalError(err),
			apierrors.IsServiceUnavailable(err),
			apierrors.IsConflict(err):
			return retryNow()
		}

		if IsNetwork(err) {
			return retryNow()
		}
		return giveUp()
	})
}
