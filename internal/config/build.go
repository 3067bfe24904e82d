package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
	"github.com/vyrodovalexey/avaretry/internal/circuitbreaker"
	"github.com/vyrodovalexey/avaretry/internal/classify"
	"github.com/vyrodovalexey/avaretry/internal/clock"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// BuildOptions supplies the runtime collaborators of a built policy.
type BuildOptions struct {
	// Clock defaults to clock.System.
	Clock clock.Clock[time.Time, time.Duration]

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Observers are attached to the policy in order.
	Observers []retry.Observer[time.Duration]

	// Classifiers are extra failure sources consulted after the
	// configured ones.
	Classifiers []classify.Classifier
}

// Build turns the policy configuration into a retry.Policy. The
// classifier is layered as rules, then the enabled sources, wrapped by the
// circuit breaker and the retry budget when configured.
func (p *PolicyConfig) Build(opts BuildOptions) (retry.Policy, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	classifier, err := p.classifier(clk, logger, opts.Classifiers)
	if err != nil {
		return retry.Policy{}, err
	}

	policy := retry.New[time.Time, time.Duration](clk, backoff.NewFromConfig(p.Backoff.backoffConfig())).
		WithClassifier(classifier).
		WithLogger(logger).
		WithOperation(p.Name)

	if p.MaxAttempts != nil {
		if *p.MaxAttempts == 0 {
			policy = policy.WithUnlimitedAttempts()
		} else if *p.MaxAttempts > 0 {
			policy = policy.WithMaxAttempts(*p.MaxAttempts)
		}
	}

	for _, o := range opts.Observers {
		policy = policy.WithObserver(o)
	}

	return policy, nil
}

func (p *PolicyConfig) classifier(
	clk clock.Clock[time.Time, time.Duration],
	logger *zap.Logger,
	extra []classify.Classifier,
) (classify.Classifier, error) {
	withClock := classify.WithClock(clk)
	r := p.RetryOn

	var sources []classify.Classifier
	if r.Network {
		sources = append(sources, classify.Network())
	}
	if len(r.HTTPStatus) > 0 {
		sources = append(sources, classify.HTTP(r.HTTPStatus, withClock))
	}
	if len(r.GRPCCodes) > 0 {
		grpcCodes, err := r.grpcCodes()
		if err != nil {
			return nil, err
		}
		sources = append(sources, classify.GRPC(grpcCodes, withClock))
	}
	if r.Redis {
		sources = append(sources, classify.Redis())
	}
	if r.Kubernetes {
		sources = append(sources, classify.Kubernetes(withClock))
	}
	if r.Vault {
		sources = append(sources, classify.Vault())
	}
	sources = append(sources, extra...)

	var c classify.Classifier
	switch {
	case len(sources) == 0 && len(r.Rules) == 0:
		c = classify.Always()
	default:
		c = classify.First(sources...)
	}

	if len(r.Rules) > 0 {
		rules := make([]classify.Rule, 0, len(r.Rules))
		for i, rc := range r.Rules {
			rule, err := rc.rule()
			if err != nil {
				return nil, fmt.Errorf("policy.retry_on.rules[%d]: %w", i, err)
			}
			rules = append(rules, rule)
		}
		compiled, err := classify.NewRules(rules, c, withClock, classify.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		c = compiled
	}

	if cb := p.CircuitBreaker; cb != nil && cb.Enabled {
		c = classify.CircuitBreaker(cb.openFor(), c, withClock)
	}

	if b := p.Budget; b != nil {
		c = classify.Budget(classify.NewBudgetLimiter(b.Rate, b.Burst), c, withClock)
	}

	return c, nil
}

func (r RetryOnConfig) grpcCodes() ([]codes.Code, error) {
	out := make([]codes.Code, 0, len(r.GRPCCodes))
	for _, name := range r.GRPCCodes {
		code, err := ParseGRPCCode(name)
		if err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

// ParseGRPCCode parses a gRPC code name. Case and underscores are ignored,
// so "unavailable", "RESOURCE_EXHAUSTED" and "DeadlineExceeded" all parse.
func ParseGRPCCode(name string) (codes.Code, error) {
	normalized := normalizeCodeName(name)
	for c := codes.OK; c <= codes.Unauthenticated; c++ {
		if normalizeCodeName(c.String()) == normalized {
			return c, nil
		}
	}
	return codes.Unknown, fmt.Errorf("unknown gRPC code %q", name)
}

func normalizeCodeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

func (cb *CircuitBreakerConfig) openFor() time.Duration {
	if cb.OpenFor <= 0 {
		return DefaultOpenFor.Duration()
	}
	return cb.OpenFor.Duration()
}

// BreakerConfig converts to the circuitbreaker package configuration.
// It returns nil when the breaker is disabled.
func (cb *CircuitBreakerConfig) BreakerConfig() *circuitbreaker.Config {
	if cb == nil || !cb.Enabled {
		return nil
	}
	threshold := cb.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	halfOpen := cb.HalfOpenRequests
	if halfOpen <= 0 {
		halfOpen = DefaultHalfOpenRequests
	}
	return circuitbreaker.DefaultConfig().
		WithMaxFailures(threshold).
		WithTimeout(cb.openFor()).
		WithHalfOpenMax(halfOpen)
}
