package circuitbreaker

import (
	"context"
	"errors"
	"math"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracer records state transitions as spans.
var tracer = otel.Tracer("avaretry/circuitbreaker")

// Breaker wraps gobreaker.CircuitBreaker for context-aware operations.
//
// Rejections are gobreaker.ErrOpenState and gobreaker.ErrTooManyRequests,
// which classify.CircuitBreaker turns into retry decisions.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithMetrics records requests and transitions in m.
func WithMetrics(m *Metrics) Option {
	return func(b *Breaker) {
		b.metrics = m
	}
}

// New creates a circuit breaker. A nil config uses DefaultConfig.
func New(name string, config *Config, logger *zap.Logger, opts ...Option) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{
		name:   name,
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}

	isSuccessful := cfg.IsSuccessful
	if isSuccessful == nil {
		isSuccessful = defaultIsSuccessful
	}
	maxFailures := safeIntToUint32(cfg.MaxFailures)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: safeIntToUint32(cfg.HalfOpenMax),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful:  isSuccessful,
		OnStateChange: b.onStateChange,
	})

	if b.metrics != nil {
		b.metrics.init(name)
	}
	return b
}

func defaultIsSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.logger.Info("circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)

	if b.metrics != nil {
		b.metrics.stateChanged(name, from, to)
	}

	_, span := tracer.Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()
}

// Execute runs fn if the circuit allows it. A rejected call returns
// gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests without running
// fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if b.metrics != nil {
		b.metrics.request(b.name, err)
	}
	return err
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the request counts of the current generation.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the name of the circuit breaker.
func (b *Breaker) Name() string {
	return b.name
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
