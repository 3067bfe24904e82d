package retry

import (
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
	"github.com/vyrodovalexey/avaretry/internal/clock"
)

// DefaultMaxAttempts is the default attempt budget, first attempt included.
const DefaultMaxAttempts = 3

// Config is an immutable retry policy: attempt budget, clock, backoff
// factory and classifier, plus the logging and observation collaborators.
//
// Every With method returns a modified copy and leaves the receiver
// untouched, so a Config can be shared freely between goroutines and
// reused across invocations.
type Config[I clock.Instant[I, D], D clock.Duration] struct {
	// maxAttempts is the attempt budget; zero means unlimited.
	maxAttempts int
	clock       clock.Clock[I, D]
	backoff     backoff.Backoff[D]
	classifier  Classifier[I]
	logger      *zap.Logger
	observers   []Observer[D]
	operation   string
}

// Policy is the Config used with the system clock.
type Policy = Config[time.Time, time.Duration]

// New returns a Config with the given clock and backoff, DefaultMaxAttempts
// attempts and a classifier that retries every failure.
func New[I clock.Instant[I, D], D clock.Duration](clk clock.Clock[I, D], b backoff.Backoff[D]) Config[I, D] {
	return Config[I, D]{
		maxAttempts: DefaultMaxAttempts,
		clock:       clk,
		backoff:     b,
		classifier:  AlwaysRetry[I](),
		logger:      zap.NewNop(),
	}
}

// Default returns the default policy: the system clock, full jitter backoff
// with a one second base and a twenty second cap, DefaultMaxAttempts
// attempts, and a classifier that retries every failure.
func Default() Policy {
	return New[time.Time, time.Duration](
		clock.System{},
		backoff.FullJitter(backoff.DefaultBaseDelay, backoff.DefaultMaxDelay),
	)
}

// NoRetry returns the default policy limited to a single attempt.
func NoRetry() Policy {
	return Default().WithMaxAttempts(1)
}

// WithMaxAttempts returns a copy with an attempt budget of n, first attempt
// included. It panics if n is not positive.
func (c Config[I, D]) WithMaxAttempts(n int) Config[I, D] {
	if n <= 0 {
		panic("retry: max attempts must be positive")
	}
	c.maxAttempts = n
	return c
}

// WithUnlimitedAttempts returns a copy without an attempt budget.
func (c Config[I, D]) WithUnlimitedAttempts() Config[I, D] {
	c.maxAttempts = 0
	return c
}

// WithClock returns a copy that uses clk for time and suspension.
func (c Config[I, D]) WithClock(clk clock.Clock[I, D]) Config[I, D] {
	c.clock = clk
	return c
}

// WithBackoff returns a copy that uses b to compute delays.
func (c Config[I, D]) WithBackoff(b backoff.Backoff[D]) Config[I, D] {
	c.backoff = b
	return c
}

// WithClassifier returns a copy that uses cl to classify failures.
// A nil classifier restores the default.
func (c Config[I, D]) WithClassifier(cl Classifier[I]) Config[I, D] {
	if cl == nil {
		cl = AlwaysRetry[I]()
	}
	c.classifier = cl
	return c
}

// WithClassifierFunc is WithClassifier for a plain function.
func (c Config[I, D]) WithClassifierFunc(fn func(err error) Decision[I]) Config[I, D] {
	if fn == nil {
		return c.WithClassifier(nil)
	}
	return c.WithClassifier(ClassifierFunc[I](fn))
}

// WithShouldRetry returns a copy that classifies with a boolean predicate.
func (c Config[I, D]) WithShouldRetry(fn ShouldRetryFunc) Config[I, D] {
	if fn == nil {
		return c.WithClassifier(nil)
	}
	return c.WithClassifier(FromShouldRetry[I](fn))
}

// WithLogger returns a copy that logs failed attempts at debug level.
// A nil logger disables logging.
func (c Config[I, D]) WithLogger(logger *zap.Logger) Config[I, D] {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
	return c
}

// WithObserver returns a copy with o added to the observers.
func (c Config[I, D]) WithObserver(o Observer[D]) Config[I, D] {
	if o == nil {
		return c
	}
	observers := make([]Observer[D], 0, len(c.observers)+1)
	observers = append(observers, c.observers...)
	c.observers = append(observers, o)
	return c
}

// WithOperation returns a copy labelled with name in logs, metrics and
// traces.
func (c Config[I, D]) WithOperation(name string) Config[I, D] {
	c.operation = name
	return c
}

// MaxAttempts returns the attempt budget and whether one is set.
func (c Config[I, D]) MaxAttempts() (int, bool) {
	return c.maxAttempts, c.maxAttempts > 0
}

// Clock returns the configured clock.
func (c Config[I, D]) Clock() clock.Clock[I, D] {
	return c.clock
}

// Backoff returns the configured backoff factory.
func (c Config[I, D]) Backoff() backoff.Backoff[D] {
	return c.backoff
}

// Classifier returns the configured classifier.
func (c Config[I, D]) Classifier() Classifier[I] {
	if c.classifier == nil {
		return AlwaysRetry[I]()
	}
	return c.classifier
}

// Logger returns the configured logger, never nil.
func (c Config[I, D]) Logger() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

// Operation returns the operation label.
func (c Config[I, D]) Operation() string {
	return c.operation
}

// validate reports configuration that cannot run.
func (c Config[I, D]) validate() error {
	if c.clock == nil {
		return ErrNoClock
	}
	if c.backoff.IsZero() {
		return ErrNoBackoff
	}
	return nil
}
