package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaretry/internal/circuitbreaker"
	"github.com/vyrodovalexey/avaretry/internal/config"
	"github.com/vyrodovalexey/avaretry/internal/health"
	"github.com/vyrodovalexey/avaretry/internal/idempotent"
	"github.com/vyrodovalexey/avaretry/internal/observability"
	"github.com/vyrodovalexey/avaretry/internal/retry"
	"github.com/vyrodovalexey/avaretry/internal/timeout"
)

// shutdownTimeout bounds flushing spans and stopping the metrics server.
const shutdownTimeout = 5 * time.Second

// application holds all application components.
type application struct {
	target         target
	logger         observability.Logger
	metrics        *retry.Metrics
	breakerMetrics *circuitbreaker.Metrics
	health         *health.Checker
	metricsServer  *observability.MetricsServer
	tracer         *observability.Tracer
	watcher        *config.Watcher

	mu             sync.RWMutex
	policy         retry.Policy
	breaker        *circuitbreaker.Breaker
	attemptTimeout time.Duration
}

// newApplication initializes all application components.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	t target,
	logger observability.Logger,
) (*application, error) {
	app := &application{
		target:         t,
		logger:         logger,
		metrics:        retry.NewMetrics(retry.DefaultMetricsNamespace),
		breakerMetrics: circuitbreaker.NewMetrics(retry.DefaultMetricsNamespace),
	}
	app.breakerMetrics.MustRegister(app.metrics.Registry())
	app.health = newHealthChecker(app, logger)

	tracer, err := initTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	if err := app.applyConfig(cfg); err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		app.metricsServer = observability.NewMetricsServer(addr, app.metrics.Registry(), logger.Zap(),
			observability.WithRoutes(app.health.RegisterRoutes))
		if err := app.metricsServer.Start(); err != nil {
			_ = tracer.Shutdown(ctx)
			return nil, err
		}
	}

	return app, nil
}

// newHealthChecker registers readiness checks for the circuit breaker and,
// when the target supports it, the target itself.
func newHealthChecker(app *application, logger observability.Logger) *health.Checker {
	healthMetrics := health.NewMetrics(retry.DefaultMetricsNamespace)
	healthMetrics.MustRegister(app.metrics.Registry())

	checker := health.NewChecker(version, logger.Zap(), health.WithMetrics(healthMetrics))
	checker.Register("circuit_breaker", health.BreakerCheck(app.breakerState))
	if ht, ok := app.target.(healthTarget); ok {
		checker.Register("target", ht.HealthCheck())
	}
	return checker
}

// initTracer initializes the tracer.
func initTracer(ctx context.Context, cfg *config.Config) (*observability.Tracer, error) {
	tc := cfg.Observability.Tracing
	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = config.DefaultServiceName
	}
	return observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   tc.OTLPEndpoint,
		SamplingRate:   tc.SamplingRate,
		Enabled:        tc.Enabled,
	})
}

// applyConfig builds the policy and circuit breaker from cfg and swaps
// them in. Invocations already running keep the previous ones.
func (a *application) applyConfig(cfg *config.Config) error {
	policyCfg := cfg.Policy
	if policyCfg.Name == "" || policyCfg.Name == config.DefaultPolicyName {
		policyCfg.Name = a.target.Name()
	}

	policy, err := policyCfg.Build(config.BuildOptions{
		Logger: a.logger.Zap(),
		Observers: []retry.Observer[time.Duration]{
			a.metrics,
			retry.NewTracing[time.Duration](),
		},
		Classifiers: a.target.Classifiers(),
	})
	if err != nil {
		return fmt.Errorf("failed to build retry policy: %w", err)
	}
	a.metrics.Init(policy.Operation())

	var breaker *circuitbreaker.Breaker
	if bc := policyCfg.CircuitBreaker.BreakerConfig(); bc != nil {
		breaker = circuitbreaker.New(policy.Operation(), bc, a.logger.Zap(),
			circuitbreaker.WithMetrics(a.breakerMetrics))
	}

	a.mu.Lock()
	a.policy = policy
	a.breaker = breaker
	a.attemptTimeout = policyCfg.AttemptTimeout.Duration()
	a.mu.Unlock()
	return nil
}

func (a *application) current() (retry.Policy, *circuitbreaker.Breaker, time.Duration) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy, a.breaker, a.attemptTimeout
}

// breakerState reports the current breaker's state. Without a breaker the
// circuit is always closed.
func (a *application) breakerState() gobreaker.State {
	_, breaker, _ := a.current()
	if breaker == nil {
		return gobreaker.StateClosed
	}
	return breaker.State()
}

// invoke runs the target once under the current policy.
func (a *application) invoke(ctx context.Context) error {
	policy, breaker, attemptTimeout := a.current()

	ctx = observability.ContextWithRunID(ctx, uuid.NewString())
	ctx, span := a.tracer.StartSpan(ctx, "retryctl.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("retry.operation", policy.Operation())),
	)
	defer span.End()
	logger := a.logger.WithContext(ctx)

	attempt := timeout.Attempt(attemptTimeout, a.target.Attempt)
	op := attempt
	if breaker != nil {
		op = func(ctx context.Context) error {
			return breaker.Execute(ctx, attempt)
		}
	}

	start := time.Now()
	var err error
	if rt, ok := a.target.(requestTarget); ok {
		err = idempotent.Do(ctx, policy, rt.Request(), op)
	} else {
		err = retry.Do(ctx, policy, op)
	}

	fields := []observability.Field{
		observability.String("operation", policy.Operation()),
		observability.Duration("elapsed", time.Since(start)),
	}
	switch {
	case err == nil:
		logger.Info("operation succeeded", fields...)
	case retry.IsCancellation(ctx, err) || errors.Is(ctx.Err(), context.Canceled):
		span.SetStatus(codes.Error, "cancelled")
		logger.Warn("operation cancelled", fields...)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("operation failed", append(fields, observability.Error(err))...)
	}
	return err
}

// watch invokes the target every interval until ctx is cancelled. Failed
// invocations are logged and do not stop the loop.
func (a *application) watch(ctx context.Context, interval time.Duration) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	invocations := 1
	stopped := func() int {
		a.logger.Info("watch stopped", observability.Int("invocations", invocations))
		return exitCancelled
	}

	if exitCode(ctx, a.invoke(ctx)) == exitCancelled {
		return stopped()
	}
	for {
		select {
		case <-ctx.Done():
			return stopped()
		case <-ticker.C:
			invocations++
			if exitCode(ctx, a.invoke(ctx)) == exitCancelled {
				return stopped()
			}
		}
	}
}

// watchConfig reloads the policy when the configuration file changes.
// Failing to watch is logged and the current policy stays in use.
func (a *application) watchConfig(ctx context.Context, path string) {
	watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
		a.logger.Info("configuration changed, reloading policy")
		if err := a.applyConfig(cfg); err != nil {
			a.logger.Error("failed to apply configuration", observability.Error(err))
		}
	}, config.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("failed to create config watcher", observability.Error(err))
		return
	}

	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return
	}
	a.watcher = watcher
}

// shutdown releases every component.
func (a *application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			a.logger.Error("failed to stop metrics server", observability.Error(err))
		}
	}

	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	if err := a.target.Close(); err != nil {
		a.logger.Debug("failed to close target", observability.Error(err))
	}
}
