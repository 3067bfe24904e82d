// Package health provides liveness and readiness checks for retryctl.
//
// A Checker runs named checks concurrently under a timeout. Readiness
// fails when any check fails; liveness only reports that the process is
// up.
//
//	checker := health.NewChecker(version, logger)
//	checker.Register("redis", health.RedisCheck(client))
//	checker.Register("circuit_breaker", health.BreakerCheck(breaker.State))
//	checker.RegisterRoutes(engine)
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a readiness run.
const DefaultTimeout = 5 * time.Second

// Status is the outcome of a check or a report.
type Status string

const (
	// StatusOK means the check passed.
	StatusOK Status = "ok"
	// StatusError means the check failed.
	StatusError Status = "error"
)

// CheckFunc reports the health of one dependency. A nil error is healthy.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of one check.
type Result struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is the outcome of a readiness run.
type Report struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Checks    map[string]*Result `json:"checks,omitempty"`
}

// Checker runs registered health checks.
type Checker struct {
	version   string
	startTime time.Time
	logger    *zap.Logger
	timeout   time.Duration
	metrics   *Metrics

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds every readiness run. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records check outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// NewChecker creates a health checker.
func NewChecker(version string, logger *zap.Logger, opts ...Option) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		logger:    logger,
		timeout:   DefaultTimeout,
		checks:    make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Unregister removes the check called name.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names returns the registered check names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Liveness reports that the process is running.
func (c *Checker) Liveness() *Report {
	return &Report{
		Status:    StatusOK,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// Readiness runs every check concurrently. The report fails when any
// check fails or does not finish within the timeout.
func (c *Checker) Readiness(ctx context.Context) *Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := &Report{
		Status:    StatusOK,
		Version:   c.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*Result, len(checks)),
	}
	if len(checks) == 0 {
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			duration := time.Since(start)

			result := &Result{
				Status:    StatusOK,
				Duration:  duration.String(),
				Timestamp: time.Now().UTC(),
			}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				c.logger.Warn("health check failed",
					zap.String("check", name),
					zap.Error(err),
					zap.Duration("duration", duration),
				)
			}
			if c.metrics != nil {
				c.metrics.record(name, err == nil)
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = result
			if err != nil {
				report.Status = StatusError
			}
		}(name, check)
	}

	wg.Wait()
	return report
}
