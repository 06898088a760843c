// Package resilience implements the protective policy stack applied to
// every outbound provider call: circuit breaker, rate limiter, retry, and
// an overall timeout.
//
// One Policy instance exists per named external operation and is shared by
// all concurrent callers; the breaker and limiter state inside it is the
// shared mutable resource that makes failure isolation work.
//
// Order of application: the timeout bounds the whole stack, retries run
// inside it, and each attempt checks the circuit breaker first (cheapest,
// fails fastest), then waits for a rate-limiter slot, then performs the
// raw call through the breaker so the outcome is recorded.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	verrors "github.com/bondalen/vuege/errors"
	"github.com/bondalen/vuege/pkg/retry"
)

// Config holds the tunable parameters of one policy instance. Defaults
// match the provider quotas the platform ships with.
type Config struct {
	// Circuit breaker
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"` // fraction, e.g. 0.5
	OpenStateDuration    time.Duration `yaml:"open_state_duration"`
	MinimumCalls         uint32        `yaml:"minimum_calls"`
	HalfOpenTrialCalls   uint32        `yaml:"half_open_trial_calls"`

	// Rate limiter
	RequestsPerPeriod int           `yaml:"requests_per_period"`
	RefreshPeriod     time.Duration `yaml:"refresh_period"`
	LimiterTimeout    time.Duration `yaml:"limiter_timeout"`

	// Retry
	RetryMaxAttempts int           `yaml:"retry_max_attempts"` // total attempts
	RetryDelay       time.Duration `yaml:"retry_delay"`

	// Overall call timeout, including retries
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultConfig returns the standard policy parameters.
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold: 0.5,
		OpenStateDuration:    60 * time.Second,
		MinimumCalls:         5,
		HalfOpenTrialCalls:   3,
		RequestsPerPeriod:    100,
		RefreshPeriod:        60 * time.Second,
		LimiterTimeout:       5 * time.Second,
		RetryMaxAttempts:     3,
		RetryDelay:           1 * time.Second,
		CallTimeout:          10 * time.Second,
	}
}

// Validate checks the policy configuration.
func (c Config) Validate() error {
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "resilience", "Validate",
			fmt.Sprintf("failure_rate_threshold must be in (0,1], got %v", c.FailureRateThreshold))
	}
	if c.OpenStateDuration <= 0 {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "resilience", "Validate",
			"open_state_duration must be positive")
	}
	if c.RequestsPerPeriod <= 0 || c.RefreshPeriod <= 0 {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "resilience", "Validate",
			"requests_per_period and refresh_period must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "resilience", "Validate",
			"retry_max_attempts must be positive")
	}
	if c.CallTimeout <= 0 {
		return verrors.WrapInvalid(verrors.ErrInvalidConfig, "resilience", "Validate",
			"call_timeout must be positive")
	}
	return nil
}

// StateChangeFunc is notified when a policy's circuit breaker changes state.
// State is one of "closed", "open", "half-open".
type StateChangeFunc func(operation, from, to string)

// Option configures optional policy behavior.
type Option func(*Policy)

// WithStateChange registers a circuit-breaker state change listener,
// typically used to export the state as a metric.
func WithStateChange(fn StateChangeFunc) Option {
	return func(p *Policy) {
		p.onStateChange = fn
	}
}

// Policy is the composed resilience stack for one named operation.
type Policy struct {
	name          string
	cfg           Config
	breaker       *gobreaker.CircuitBreaker
	limiter       *rate.Limiter
	retryCfg      retry.Config
	logger        *slog.Logger
	onStateChange StateChangeFunc
}

// New creates a policy for the named operation.
func New(name string, cfg Config, logger *slog.Logger, opts ...Option) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Policy{
		name:     name,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerPeriod)/cfg.RefreshPeriod.Seconds()), cfg.RequestsPerPeriod),
		retryCfg: retry.Fixed(cfg.RetryMaxAttempts, cfg.RetryDelay),
		logger:   logger.With("component", "resilience", "operation", name),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenTrialCalls,
		// Counts reset each interval while closed; gobreaker does not keep
		// a strict last-N sliding window, this approximates one.
		Interval: cfg.OpenStateDuration,
		Timeout:  cfg.OpenStateDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumCalls {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRateThreshold
		},
		// Caller input errors are not upstream failures and must not trip
		// the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || verrors.IsInvalid(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("Circuit breaker state changed",
				"from", from.String(), "to", to.String())
			if p.onStateChange != nil {
				p.onStateChange(name, from.String(), to.String())
			}
		},
	})

	return p, nil
}

// Name returns the operation name this policy protects.
func (p *Policy) Name() string {
	return p.name
}

// State returns the current circuit breaker state as a string.
func (p *Policy) State() string {
	return p.breaker.State().String()
}

// Execute runs call under the full policy stack. The returned error is
// classified: circuit-open and rate-limit rejections and exhausted retries
// are transient, caller input errors pass through as invalid.
func Execute[T any](ctx context.Context, p *Policy, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	result, err := retry.DoWithResult(ctx, p.retryCfg, func() (T, error) {
		return attempt(ctx, p, call)
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return zero, verrors.WrapTransient(verrors.ErrCallTimeout, "resilience", p.name, "call")
	}
	// The retry marker is internal routing; callers see the classified
	// error underneath it.
	var marker *retry.NonRetryableError
	if errors.As(err, &marker) {
		return zero, marker.Unwrap()
	}
	return zero, err
}

// attempt performs a single protected attempt: breaker check, limiter
// slot, then the raw call through the breaker.
func attempt[T any](ctx context.Context, p *Policy, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	// Fail fast while open without consuming a limiter slot. The breaker
	// itself transitions open -> half-open once the wait period elapses.
	if p.breaker.State() == gobreaker.StateOpen {
		return zero, retry.NonRetryable(
			verrors.WrapTransient(verrors.ErrCircuitOpen, "resilience", p.name, "circuit check"))
	}

	if err := p.waitForSlot(ctx); err != nil {
		return zero, err
	}

	out, err := p.breaker.Execute(func() (any, error) {
		return call(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, retry.NonRetryable(
				verrors.WrapTransient(verrors.ErrCircuitOpen, "resilience", p.name, "circuit rejection"))
		}
		if verrors.IsInvalid(err) {
			return zero, retry.NonRetryable(err)
		}
		return zero, err
	}

	result, ok := out.(T)
	if !ok {
		return zero, retry.NonRetryable(
			verrors.WrapFatal(fmt.Errorf("unexpected result type %T", out), "resilience", p.name, "call"))
	}
	return result, nil
}

// waitForSlot blocks for a rate-limiter slot, bounded by the limiter
// timeout and the overall call deadline.
func (p *Policy) waitForSlot(ctx context.Context) error {
	waitCtx := ctx
	if p.cfg.LimiterTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.LimiterTimeout)
		defer cancel()
	}

	if err := p.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			// The overall deadline expired while waiting
			return ctx.Err()
		}
		p.logger.Warn("Rate limit exceeded", "error", err)
		return retry.NonRetryable(
			verrors.WrapTransient(verrors.ErrRateLimited, "resilience", p.name, "rate limit"))
	}
	return nil
}
