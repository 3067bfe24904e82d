package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avaretry/internal/classify"
	"github.com/vyrodovalexey/avaretry/internal/observability"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Paths returns the path of every error, in order.
func (e ValidationErrors) Paths() []string {
	paths := make([]string, 0, len(e))
	for _, err := range e {
		paths = append(paths, err.Path)
	}
	return paths
}

// Validator validates retryctl configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a configuration.
func ValidateConfig(config *Config) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns ValidationErrors when
// anything is wrong.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validatePolicy(&config.Policy, "policy")
	v.validateObservability(&config.Observability, "observability")

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validatePolicy(p *PolicyConfig, path string) {
	if p.MaxAttempts != nil && *p.MaxAttempts < 0 {
		v.addError(path+".max_attempts", "must be zero (unlimited) or positive")
	}
	if p.AttemptTimeout < 0 {
		v.addError(path+".attempt_timeout", "must not be negative")
	}

	if err := p.Backoff.backoffConfig().Validate(); err != nil {
		v.addError(path+".backoff", err.Error())
	}

	v.validateRetryOn(&p.RetryOn, path+".retry_on")

	if p.Budget != nil {
		v.validateBudget(p.Budget, path+".budget")
	}
	if p.CircuitBreaker != nil && p.CircuitBreaker.Enabled {
		v.validateCircuitBreaker(p.CircuitBreaker, path+".circuit_breaker")
	}
}

func (v *Validator) validateRetryOn(r *RetryOnConfig, path string) {
	for i, code := range r.HTTPStatus {
		if code < 100 || code > 599 {
			v.addError(fmt.Sprintf("%s.http_status[%d]", path, i),
				fmt.Sprintf("invalid HTTP status code %d", code))
		}
	}

	for i, name := range r.GRPCCodes {
		if _, err := ParseGRPCCode(name); err != nil {
			v.addError(fmt.Sprintf("%s.grpc_codes[%d]", path, i), err.Error())
		}
	}

	for i, rule := range r.Rules {
		v.validateRule(rule, fmt.Sprintf("%s.rules[%d]", path, i))
	}
}

func (v *Validator) validateRule(rule RuleConfig, path string) {
	compiled, err := rule.rule()
	if err != nil {
		v.addError(path+".action", err.Error())
		return
	}
	if _, err := classify.NewRules([]classify.Rule{compiled}, nil); err != nil {
		v.addError(path, err.Error())
	}
}

func (v *Validator) validateBudget(b *BudgetConfig, path string) {
	if b.Rate <= 0 {
		v.addError(path+".rate", "must be positive")
	}
	if b.Burst < 0 {
		v.addError(path+".burst", "must not be negative")
	}
}

func (v *Validator) validateCircuitBreaker(cb *CircuitBreakerConfig, path string) {
	if cb.FailureThreshold < 0 {
		v.addError(path+".failure_threshold", "must not be negative")
	}
	if cb.OpenFor < 0 {
		v.addError(path+".open_for", "must not be negative")
	}
	if cb.HalfOpenRequests < 0 {
		v.addError(path+".half_open_requests", "must not be negative")
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig, path string) {
	if _, err := observability.ParseLevel(o.LogLevel); err != nil {
		v.addError(path+".log_level", err.Error())
	}

	switch o.LogFormat {
	case "", "json", "console":
	default:
		v.addError(path+".log_format", "must be json or console")
	}

	if o.MetricsAddr != "" {
		if err := validateListenAddr(o.MetricsAddr); err != nil {
			v.addError(path+".metrics_addr", err.Error())
		}
	}

	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError(path+".tracing.sampling_rate", "must be between 0 and 1")
	}
}

func validateListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// rule converts the configuration to a classify rule.
func (r RuleConfig) rule() (classify.Rule, error) {
	action, err := retry.ParseAction(r.Action)
	if err != nil {
		return classify.Rule{}, err
	}
	return classify.Rule{
		Name:   r.Name,
		When:   r.When,
		Action: action,
		After:  r.After.Duration(),
	}, nil
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
