// Package resilience provides retry and circuit breaker options for LLM providers.
package resilience

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/llm/resilience"
	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 供应商调用的重试与熔断配置。
type Options struct {
	// Enabled 为 true 时 Embedding 与 Chat 供应商外层包裹重试和熔断。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	MaxAttempts  int           `json:"max-attempts" mapstructure:"max-attempts"`
	InitialDelay time.Duration `json:"initial-delay" mapstructure:"initial-delay"`
	MaxDelay     time.Duration `json:"max-delay" mapstructure:"max-delay"`
	Multiplier   float64       `json:"multiplier" mapstructure:"multiplier"`

	// BreakerFailures 连续失败多少次后熔断。
	BreakerFailures int           `json:"breaker-failures" mapstructure:"breaker-failures"`
	BreakerTimeout  time.Duration `json:"breaker-timeout" mapstructure:"breaker-timeout"`
}

// NewOptions creates default resilience options.
func NewOptions() *Options {
	retry := resilience.DefaultRetryConfig()
	cb := resilience.DefaultCircuitBreakerConfig()
	return &Options{
		Enabled:         false,
		MaxAttempts:     retry.MaxAttempts,
		InitialDelay:    retry.InitialDelay,
		MaxDelay:        retry.MaxDelay,
		Multiplier:      retry.Multiplier,
		BreakerFailures: cb.MaxFailures,
		BreakerTimeout:  cb.Timeout,
	}
}

// AddFlags adds flags for resilience options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "resilience."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Wrap LLM providers with retry and circuit breaker.")
	fs.IntVar(&o.MaxAttempts, p+"max-attempts", o.MaxAttempts, "Attempts per call, including the first.")
	fs.DurationVar(&o.InitialDelay, p+"initial-delay", o.InitialDelay, "Delay before the first retry.")
	fs.DurationVar(&o.MaxDelay, p+"max-delay", o.MaxDelay, "Upper bound of the retry delay.")
	fs.Float64Var(&o.Multiplier, p+"multiplier", o.Multiplier, "Backoff multiplier.")
	fs.IntVar(&o.BreakerFailures, p+"breaker-failures", o.BreakerFailures, "Consecutive failures that open the breaker.")
	fs.DurationVar(&o.BreakerTimeout, p+"breaker-timeout", o.BreakerTimeout, "Time the breaker stays open.")
}

// Validate validates the resilience options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if o.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("resilience.max-attempts must be at least 1"))
	}
	if o.InitialDelay <= 0 || o.MaxDelay < o.InitialDelay {
		errs = append(errs, fmt.Errorf("resilience delays must satisfy 0 < initial-delay <= max-delay"))
	}
	if o.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("resilience.multiplier must be at least 1"))
	}
	if o.BreakerFailures < 1 || o.BreakerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("resilience breaker settings must be positive"))
	}
	return errs
}

// Complete fills in defaults.
func (o *Options) Complete() error {
	return nil
}

// RetryConfig converts to the retry policy.
func (o *Options) RetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:  o.MaxAttempts,
		InitialDelay: o.InitialDelay,
		MaxDelay:     o.MaxDelay,
		Multiplier:   o.Multiplier,
		Retryable:    resilience.IsRetryableError,
	}
}

// CircuitBreakerConfig converts to the breaker policy.
func (o *Options) CircuitBreakerConfig() *resilience.CircuitBreakerConfig {
	return &resilience.CircuitBreakerConfig{
		MaxFailures:      o.BreakerFailures,
		Timeout:          o.BreakerTimeout,
		HalfOpenMaxCalls: 1,
	}
}
