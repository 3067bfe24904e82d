// Package requeue carries a retry policy across controller-runtime
// reconciles.
//
// A reconciler returns instead of sleeping, so the attempt count and
// backoff state of every object live in a Tracker between calls and each
// delay is handed back as ctrl.Result.RequeueAfter. Giving up returns a
// terminal error so controller-runtime stops requeueing the object.
//
//	strategy := requeue.New(policy, requeue.WithRecorder(mgr.GetEventRecorderFor("orders")))
//
//	func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
//		...
//		return r.strategy.Result(ctx, obj, r.sync(ctx, obj))
//	}
package requeue

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// Event reasons recorded when a strategy stops requeueing an object.
const (
	ReasonGaveUp    = "RetryGaveUp"
	ReasonExhausted = "RetryExhausted"
)

const (
	maxEventMessageLength = 1024

	// maxDraws bounds the backoff draws spent honoring a RetryAfter
	// decision when no attempt budget is set.
	maxDraws = 1 << 12
)

// Strategy maps reconcile outcomes to controller-runtime results under a
// retry policy.
type Strategy struct {
	policy          retry.Policy
	tracker         *Tracker
	recorder        record.EventRecorder
	logger          logr.Logger
	successInterval time.Duration
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithRecorder records a warning event on the object when retrying stops.
func WithRecorder(recorder record.EventRecorder) Option {
	return func(s *Strategy) {
		s.recorder = recorder
	}
}

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger logr.Logger) Option {
	return func(s *Strategy) {
		s.logger = logger
	}
}

// WithSuccessInterval requeues successfully reconciled objects after d.
func WithSuccessInterval(d time.Duration) Option {
	return func(s *Strategy) {
		if d > 0 {
			s.successInterval = d
		}
	}
}

// WithTracker shares a tracker between strategies.
func WithTracker(t *Tracker) Option {
	return func(s *Strategy) {
		if t != nil {
			s.tracker = t
		}
	}
}

// New creates a strategy for policy.
func New(policy retry.Policy, opts ...Option) *Strategy {
	s := &Strategy{
		policy: policy,
		logger: log.Log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracker == nil {
		s.tracker = NewTracker(DefaultTrackerConfig())
	}
	return s
}

// Tracker returns the per-object retry state.
func (s *Strategy) Tracker() *Tracker {
	return s.tracker
}

// Result turns the outcome of reconciling obj into what the reconciler
// returns. A nil err resets the object's state. A retryable failure is
// requeued after the next backoff delay with a nil error. Giving up, or
// running out of attempts, returns the failure as a terminal error.
// Cancellation is returned unchanged.
func (s *Strategy) Result(ctx context.Context, obj client.Object, err error) (ctrl.Result, error) {
	key := client.ObjectKeyFromObject(obj).String()

	if err == nil {
		s.tracker.Reset(key)
		return ctrl.Result{RequeueAfter: s.successInterval}, nil
	}

	logger := s.loggerFor(ctx).WithValues("operation", s.policy.Operation(), "object", key)

	decision, latest := s.policy.Decide(ctx, err)
	if retry.IsCancellation(ctx, latest) {
		return ctrl.Result{}, latest
	}

	clk := s.policy.Clock()
	now := clk.Now()

	var (
		delay    time.Duration
		attempts int
		reason   string
	)
	s.tracker.update(key, now, func() backoff.Algorithm[time.Duration] {
		return s.policy.Backoff().Make(clk)
	}, func(e *entry) bool {
		var consumed int
		var ok bool
		delay, consumed, ok = s.next(e, decision, now)
		if !ok {
			attempts = e.attempt + 1
			reason = ReasonExhausted
			if decision.Action == retry.ActionGiveUp {
				reason = ReasonGaveUp
			}
			return false
		}
		e.attempt += consumed
		attempts = e.attempt
		return true
	})

	if reason != "" {
		logger.Error(latest, "giving up", "attempts", attempts, "reason", reason)
		s.event(obj, reason, latest)
		return ctrl.Result{}, reconcile.TerminalError(latest)
	}

	delay = max(delay, clk.MinimumResolution())
	logger.Info("reconcile failed, requeueing",
		"error", latest.Error(),
		"attempt", attempts,
		"action", decision.Action.String(),
		"delay", delay.String(),
	)
	return ctrl.Result{RequeueAfter: delay}, nil
}

// next computes the delay before the next attempt and how many attempts
// it consumes. ok is false when no attempt may follow.
func (s *Strategy) next(e *entry, decision retry.TimeDecision, now time.Time) (delay time.Duration, consumed int, ok bool) {
	switch decision.Action {
	case retry.ActionRetry:
		if s.exhausted(e.attempt) {
			return 0, 0, false
		}
		return e.algorithm.NextDelay(), 1, true

	case retry.ActionRetryAfter:
		retryAfter := max(decision.NotBefore.Sub(now), 0)
		for {
			if s.exhausted(e.attempt + consumed) {
				return 0, 0, false
			}
			delay = retry.AddSaturating(delay, e.algorithm.NextDelay())
			consumed++
			if !now.Add(delay).Before(decision.NotBefore) {
				return delay, consumed, true
			}
			if consumed >= maxDraws {
				return max(delay, retryAfter), consumed, true
			}
		}

	default:
		return 0, 0, false
	}
}

func (s *Strategy) exhausted(attempt int) bool {
	limit, limited := s.policy.MaxAttempts()
	return limited && attempt+1 >= limit
}

func (s *Strategy) loggerFor(ctx context.Context) logr.Logger {
	if logger, err := logr.FromContext(ctx); err == nil {
		return logger
	}
	return s.logger
}

func (s *Strategy) event(obj client.Object, reason string, err error) {
	if s.recorder == nil {
		return
	}

	s.recorder.Event(obj, corev1.EventTypeWarning, reason, truncateMessage(err.Error(), maxEventMessageLength))
}

// truncateMessage shortens message to at most limit bytes, ending in "..."
// and never splitting a UTF-8 sequence.
func truncateMessage(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := limit - len("...")
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + "..."
}
