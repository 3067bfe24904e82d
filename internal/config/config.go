package config

import (
	"time"

	"github.com/vyrodovalexey/avaretry/internal/backoff"
)

// Default configuration values.
const (
	DefaultPolicyName          = "default"
	DefaultFailureThreshold    = 5
	DefaultOpenFor             = Duration(30 * time.Second)
	DefaultHalfOpenRequests    = 1
	DefaultServiceName         = "retryctl"
	DefaultTracingSamplingRate = 1.0
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
)

// Config is the root of a retryctl configuration file.
type Config struct {
	Policy        PolicyConfig        `yaml:"policy" json:"policy"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// PolicyConfig describes a retry policy.
type PolicyConfig struct {
	// Name labels logs, metrics and spans for invocations of this policy.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// MaxAttempts is the attempt budget. Unset means the engine default,
	// zero means unlimited.
	MaxAttempts *int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	// AttemptTimeout bounds each attempt. Zero leaves attempts unbounded.
	AttemptTimeout Duration `yaml:"attempt_timeout,omitempty" json:"attempt_timeout,omitempty"`

	Backoff        BackoffConfig         `yaml:"backoff" json:"backoff"`
	RetryOn        RetryOnConfig         `yaml:"retry_on" json:"retry_on"`
	Budget         *BudgetConfig         `yaml:"budget,omitempty" json:"budget,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty"`
}

// BackoffConfig selects the delay strategy between attempts.
type BackoffConfig struct {
	Type      backoff.Type `yaml:"type,omitempty" json:"type,omitempty"`
	Base      Duration     `yaml:"base,omitempty" json:"base,omitempty"`
	Max       Duration     `yaml:"max,omitempty" json:"max,omitempty"`
	Increment Duration     `yaml:"increment,omitempty" json:"increment,omitempty"`
}

// RetryOnConfig selects which failures are retried. Rules are evaluated
// first; unmatched failures fall through to the enabled sources. With no
// source and no rule every failure is retried.
type RetryOnConfig struct {
	Network    bool         `yaml:"network" json:"network"`
	HTTPStatus []int        `yaml:"http_status,omitempty" json:"http_status,omitempty"`
	GRPCCodes  []string     `yaml:"grpc_codes,omitempty" json:"grpc_codes,omitempty"`
	Redis      bool         `yaml:"redis,omitempty" json:"redis,omitempty"`
	Kubernetes bool         `yaml:"kubernetes,omitempty" json:"kubernetes,omitempty"`
	Vault      bool         `yaml:"vault,omitempty" json:"vault,omitempty"`
	Rules      []RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// RuleConfig is a CEL rule. See classify.Rule for the expression
// environment.
type RuleConfig struct {
	Name   string   `yaml:"name,omitempty" json:"name,omitempty"`
	When   string   `yaml:"when" json:"when"`
	Action string   `yaml:"action" json:"action"`
	After  Duration `yaml:"after,omitempty" json:"after,omitempty"`
}

// BudgetConfig is a process-local token bucket paying for retries.
type BudgetConfig struct {
	Rate  float64 `yaml:"rate" json:"rate"`
	Burst int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// CircuitBreakerConfig configures the breaker guarding the operation.
type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	FailureThreshold int      `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`
	OpenFor          Duration `yaml:"open_for,omitempty" json:"open_for,omitempty"`
	HalfOpenRequests int      `yaml:"half_open_requests,omitempty" json:"half_open_requests,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given and
// the base that configuration files are decoded onto.
func DefaultConfig() *Config {
	return &Config{
		Policy: PolicyConfig{
			Name: DefaultPolicyName,
			Backoff: BackoffConfig{
				Type: backoff.TypeFullJitter,
				Base: Duration(backoff.DefaultBaseDelay),
				Max:  Duration(backoff.DefaultMaxDelay),
			},
			RetryOn: RetryOnConfig{
				Network: true,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
			Tracing: TracingConfig{
				ServiceName:  DefaultServiceName,
				SamplingRate: DefaultTracingSamplingRate,
			},
		},
	}
}

// backoffConfig converts to the backoff package configuration.
func (b BackoffConfig) backoffConfig() *backoff.Config {
	return &backoff.Config{
		Type:            b.Type,
		InitialInterval: b.Base.Duration(),
		MaxInterval:     b.Max.Duration(),
		Increment:       b.Increment.Duration(),
	}
}
