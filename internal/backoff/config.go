package backoff

import (
	"fmt"
	"time"
)

// Type represents the type of backoff strategy.
type Type string

const (
	// TypeFullJitter uses exponential backoff with full jitter. This is the
	// default and the recommended strategy against retry storms.
	TypeFullJitter Type = "full_jitter"

	// TypeExponential uses exponential backoff without jitter.
	TypeExponential Type = "exponential"

	// TypeEqualJitter uses exponential backoff with equal jitter.
	TypeEqualJitter Type = "equal_jitter"

	// TypeDecorrelatedJitter uses AWS-style decorrelated jitter backoff.
	TypeDecorrelatedJitter Type = "decorrelated_jitter"

	// TypeConstant uses constant backoff.
	TypeConstant Type = "constant"

	// TypeLinear uses linear backoff.
	TypeLinear Type = "linear"
)

// Default backoff values.
const (
	// DefaultBaseDelay is the default initial delay.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay is the default delay cap.
	DefaultMaxDelay = 20 * time.Second
)

// Types lists every supported backoff type.
func Types() []Type {
	return []Type{
		TypeFullJitter,
		TypeExponential,
		TypeEqualJitter,
		TypeDecorrelatedJitter,
		TypeConstant,
		TypeLinear,
	}
}

// Config holds configuration for creating backoff strategies.
type Config struct {
	// Type is the backoff strategy type.
	Type Type

	// InitialInterval is the base delay.
	InitialInterval time.Duration

	// MaxInterval is the maximum delay.
	MaxInterval time.Duration

	// Increment is the linear increment (for linear backoff).
	Increment time.Duration
}

// DefaultConfig returns a Config with default values: full jitter with a
// one second base and a twenty second cap.
func DefaultConfig() *Config {
	return &Config{
		Type:            TypeFullJitter,
		InitialInterval: DefaultBaseDelay,
		MaxInterval:     DefaultMaxDelay,
	}
}

// Validate checks the configuration. Zero intervals are allowed and mean
// "use the default".
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Type != "" && !isKnownType(c.Type) {
		return fmt.Errorf("unknown backoff type %q", c.Type)
	}
	if c.InitialInterval < 0 {
		return fmt.Errorf("backoff initial interval must not be negative, got %s", c.InitialInterval)
	}
	if c.MaxInterval < 0 {
		return fmt.Errorf("backoff max interval must not be negative, got %s", c.MaxInterval)
	}
	if c.Increment < 0 {
		return fmt.Errorf("backoff increment must not be negative, got %s", c.Increment)
	}
	if c.MaxInterval > 0 && c.MaxInterval < c.initial() {
		return fmt.Errorf("backoff max interval %s is smaller than initial interval %s",
			c.MaxInterval, c.initial())
	}
	return nil
}

func (c *Config) initial() time.Duration {
	if c.InitialInterval <= 0 {
		return DefaultBaseDelay
	}
	return c.InitialInterval
}

func (c *Config) maxInterval() time.Duration {
	if c.MaxInterval <= 0 {
		if c.initial() > DefaultMaxDelay {
			return c.initial()
		}
		return DefaultMaxDelay
	}
	if c.MaxInterval < c.initial() {
		return c.initial()
	}
	return c.MaxInterval
}

// NewFromConfig creates a Backoff from the given configuration. Zero or
// inconsistent values fall back to defaults; call Validate first to reject
// them instead.
func NewFromConfig(config *Config) Backoff[time.Duration] {
	if config == nil {
		config = DefaultConfig()
	}

	initial := config.initial()
	maxInterval := config.maxInterval()

	switch config.Type {
	case TypeExponential:
		return Exponential(initial, maxInterval)
	case TypeEqualJitter:
		return EqualJitter(initial, maxInterval)
	case TypeDecorrelatedJitter:
		return DecorrelatedJitter(initial, maxInterval)
	case TypeConstant:
		return Constant(initial)
	case TypeLinear:
		increment := config.Increment
		if increment <= 0 {
			increment = initial
		}
		return Linear(initial, increment, maxInterval)
	default:
		return FullJitter(initial, maxInterval)
	}
}

func isKnownType(t Type) bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}
