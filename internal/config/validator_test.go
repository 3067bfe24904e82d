package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
)

func intPtr(n int) *int { return &n }

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "policy.name: bad", (&ValidationError{Path: "policy.name", Message: "bad"}).Error())
	assert.Equal(t, "bad", (&ValidationError{Message: "bad"}).Error())
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.False(t, ValidationErrors{}.HasErrors())

	one := ValidationErrors{{Path: "a", Message: "x"}}
	assert.Equal(t, "a: x", one.Error())
	assert.True(t, one.HasErrors())

	two := ValidationErrors{{Path: "a", Message: "x"}, {Path: "b", Message: "y"}}
	assert.Equal(t, "2 validation errors:\n  1. a: x\n  2. b: y\n", two.Error())
	assert.Equal(t, []string{"a", "b"}, two.Paths())
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is nil")
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(cfg *Config)
		paths  []string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name: "unlimited attempts",
			modify: func(cfg *Config) {
				cfg.Policy.MaxAttempts = intPtr(0)
			},
		},
		{
			name: "negative attempts",
			modify: func(cfg *Config) {
				cfg.Policy.MaxAttempts = intPtr(-2)
			},
			paths: []string{"policy.max_attempts"},
		},
		{
			name: "negative attempt timeout",
			modify: func(cfg *Config) {
				cfg.Policy.AttemptTimeout = Duration(-time.Second)
			},
			paths: []string{"policy.attempt_timeout"},
		},
		{
			name: "unknown backoff",
			modify: func(cfg *Config) {
				cfg.Policy.Backoff.Type = backoff.Type("fibonacci")
			},
			paths: []string{"policy.backoff"},
		},
		{
			name: "linear backoff",
			modify: func(cfg *Config) {
				cfg.Policy.Backoff = BackoffConfig{
					Type:      backoff.TypeLinear,
					Base:      Duration(time.Second),
					Increment: Duration(time.Second),
					Max:       Duration(10 * time.Second),
				}
			},
		},
		{
			name: "http status out of range",
			modify: func(cfg *Config) {
				cfg.Policy.RetryOn.HTTPStatus = []int{503, 99, 600}
			},
			paths: []string{"policy.retry_on.http_status[1]", "policy.retry_on.http_status[2]"},
		},
		{
			name: "unknown grpc code",
			modify: func(cfg *Config) {
				cfg.Policy.RetryOn.GRPCCodes = []string{"unavailable", "flaky"}
			},
			paths: []string{"policy.retry_on.grpc_codes[1]"},
		},
		{
			name: "rule with unknown action",
			modify: func(cfg *Config) {
				cfg.Policy.RetryOn.Rules = []RuleConfig{{When: "true", Action: "maybe"}}
			},
			paths: []string{"policy.retry_on.rules[0].action"},
		},
		{
			name: "rule that does not compile",
			modify: func(cfg *Config) {
				cfg.Policy.RetryOn.Rules = []RuleConfig{
					{Name: "ok", When: "err.network", Action: "retry"},
					{Name: "broken", When: "err.http_status ==", Action: "retry"},
				}
			},
			paths: []string{"policy.retry_on.rules[1]"},
		},
		{
			name: "retry_after rule without delay",
			modify: func(cfg *Config) {
				cfg.Policy.RetryOn.Rules = []RuleConfig{{When: "true", Action: "retry_after"}}
			},
			paths: []string{"policy.retry_on.rules[0]"},
		},
		{
			name: "invalid budget",
			modify: func(cfg *Config) {
				cfg.Policy.Budget = &BudgetConfig{Rate: 0, Burst: -1}
			},
			paths: []string{"policy.budget.rate", "policy.budget.burst"},
		},
		{
			name: "invalid circuit breaker",
			modify: func(cfg *Config) {
				cfg.Policy.CircuitBreaker = &CircuitBreakerConfig{
					Enabled:          true,
					FailureThreshold: -1,
					OpenFor:          Duration(-time.Second),
					HalfOpenRequests: -1,
				}
			},
			paths: []string{
				"policy.circuit_breaker.failure_threshold",
				"policy.circuit_breaker.open_for",
				"policy.circuit_breaker.half_open_requests",
			},
		},
		{
			name: "disabled circuit breaker is not checked",
			modify: func(cfg *Config) {
				cfg.Policy.CircuitBreaker = &CircuitBreakerConfig{FailureThreshold: -1}
			},
		},
		{
			name: "invalid observability",
			modify: func(cfg *Config) {
				cfg.Observability.LogLevel = "loud"
				cfg.Observability.LogFormat = "xml"
				cfg.Observability.MetricsAddr = "localhost:99999"
				cfg.Observability.Tracing.SamplingRate = 1.5
			},
			paths: []string{
				"observability.log_level",
				"observability.log_format",
				"observability.metrics_addr",
				"observability.tracing.sampling_rate",
			},
		},
		{
			name: "metrics address without port",
			modify: func(cfg *Config) {
				cfg.Observability.MetricsAddr = "localhost"
			},
			paths: []string{"observability.metrics_addr"},
		},
		{
			name: "empty log settings",
			modify: func(cfg *Config) {
				cfg.Observability.LogLevel = ""
				cfg.Observability.LogFormat = ""
				cfg.Observability.MetricsAddr = ":9090"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.modify(cfg)

			err := NewValidator().Validate(cfg)
			if len(tt.paths) == 0 {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.paths, verrs.Paths())
		})
	}
}

func TestValidator_Reuse(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	bad := DefaultConfig()
	bad.Policy.MaxAttempts = intPtr(-1)
	require.Error(t, v.Validate(bad))

	assert.NoError(t, v.Validate(DefaultConfig()))
}
