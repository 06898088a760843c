package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/bondalen/vuege/apiclient"
	verrors "github.com/bondalen/vuege/errors"
	"github.com/bondalen/vuege/pkg/cache"
	"github.com/bondalen/vuege/resilience"
)

// parseErrorMessage is the generic message surfaced to callers when a
// provider response does not match the expected shape. Raw detail is
// logged only.
const parseErrorMessage = "could not parse provider response"

// StatsRecorder receives the outcome of every production call so live
// provider statistics include real traffic, not just health probes.
// Implemented by monitor.Tracker.
type StatsRecorder interface {
	RecordSuccess(provider string)
	RecordError(provider string)
}

// CallObserver extends StatsRecorder for recorders that also want call
// timing and cache outcomes. Implemented by metric.Metrics.
type CallObserver interface {
	StatsRecorder
	RecordCall(provider, outcome string, duration time.Duration)
	RecordCacheHit(provider string)
	RecordCacheMiss(provider string)
}

// Outcome labels shared with the metrics instruments.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// multiStats fans call outcomes out to several recorders.
type multiStats []StatsRecorder

func (m multiStats) RecordSuccess(provider string) {
	for _, r := range m {
		r.RecordSuccess(provider)
	}
}

func (m multiStats) RecordError(provider string) {
	for _, r := range m {
		r.RecordError(provider)
	}
}

// RecordCall routes one outcome to every recorder exactly once: observers
// get the timed event, plain recorders get the bare counter.
func (m multiStats) RecordCall(provider, outcome string, duration time.Duration) {
	for _, r := range m {
		if obs, ok := r.(CallObserver); ok {
			obs.RecordCall(provider, outcome, duration)
			continue
		}
		if outcome == outcomeSuccess {
			r.RecordSuccess(provider)
		} else {
			r.RecordError(provider)
		}
	}
}

func (m multiStats) RecordCacheHit(provider string) {
	for _, r := range m {
		if obs, ok := r.(CallObserver); ok {
			obs.RecordCacheHit(provider)
		}
	}
}

func (m multiStats) RecordCacheMiss(provider string) {
	for _, r := range m {
		if obs, ok := r.(CallObserver); ok {
			obs.RecordCacheMiss(provider)
		}
	}
}

// FanOut combines recorders so one call outcome reaches all of them,
// typically the monitoring tracker plus Prometheus.
func FanOut(recorders ...StatsRecorder) StatsRecorder {
	return multiStats(recorders)
}

// parser converts a raw provider JSON body into a CallResult. A parser
// returns an error only when the body shape is unusable; provider-level
// negative outcomes (invalid email, no match) are regular results.
type parser func(body map[string]any) (*CallResult, error)

// Dependencies holds what every domain service is built from, assigned at
// startup.
type Dependencies struct {
	Client *apiclient.Client
	Policy *resilience.Policy
	Cache  cache.Cache[*CallResult]
	Logger *slog.Logger
	Stats  StatsRecorder // optional
}

// base carries the shared pipeline used by the three domain services.
type base struct {
	provider string // stable key, e.g. "geocoding"
	source   string // display name, e.g. "OpenCage Data API"
	client   *apiclient.Client
	policy   *resilience.Policy
	cache    cache.Cache[*CallResult]
	logger   *slog.Logger
	stats    StatsRecorder

	healthPath  string
	healthQuery url.Values
}

func newBase(provider, source, healthPath string, healthQuery url.Values, deps Dependencies) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := deps.Cache
	if c == nil {
		c = cache.NewNoop[*CallResult]()
	}
	return base{
		provider:    provider,
		source:      source,
		client:      deps.Client,
		policy:      deps.Policy,
		cache:       c,
		logger:      logger.With("component", "service", "provider", provider),
		stats:       deps.Stats,
		healthPath:  healthPath,
		healthQuery: healthQuery,
	}
}

// Provider returns the stable provider key.
func (b *base) Provider() string {
	return b.provider
}

// CircuitState exposes the current breaker state for this provider.
func (b *base) CircuitState() string {
	return b.policy.State()
}

// call runs the full pipeline for one operation: cache check, policy-
// wrapped HTTP call, parse, stamp, cache store. It never returns an
// error; every failure resolves to an ERROR-status result.
func (b *base) call(ctx context.Context, cacheKey, path string, query url.Values, input string, parse parser) *CallResult {
	if cached, ok := b.cache.Get(cacheKey); ok {
		b.observeCache(true)
		b.logger.Debug("Cache hit", "key", cacheKey)
		return cachedCopy(cached)
	}
	b.observeCache(false)

	start := time.Now()

	body, err := resilience.Execute(ctx, b.policy, func(ctx context.Context) (map[string]any, error) {
		return b.client.GetJSON(ctx, path, query)
	})
	if err != nil {
		b.recordOutcome(false, time.Since(start))
		b.logger.Error("External call failed", "input", input, "error", err)
		return errorResult(input, b.source, err.Error(), start)
	}

	result, err := parse(body)
	if err != nil {
		// The response arrived but its shape is unusable; retrying the
		// same payload is pointless, so this is surfaced directly.
		b.recordOutcome(false, time.Since(start))
		b.logger.Error("Provider response parse failed", "input", input, "error", err)
		return errorResult(input, b.source, parseErrorMessage, start)
	}

	result.OriginalInput = input
	result.ResponseTimeMs = time.Since(start).Milliseconds()
	result.CreatedAt = time.Now()
	result.Source = b.source
	if result.Status == "" {
		result.Status = StatusSuccess
	}

	if _, err := b.cache.Set(cacheKey, result); err != nil {
		b.logger.Warn("Cache store failed", "key", cacheKey, "error", err)
	}

	b.recordOutcome(true, time.Since(start))
	return result
}

func (b *base) recordOutcome(success bool, duration time.Duration) {
	if b.stats == nil {
		return
	}
	outcome := outcomeError
	if success {
		outcome = outcomeSuccess
	}
	if obs, ok := b.stats.(CallObserver); ok {
		obs.RecordCall(b.provider, outcome, duration)
		return
	}
	if success {
		b.stats.RecordSuccess(b.provider)
	} else {
		b.stats.RecordError(b.provider)
	}
}

func (b *base) observeCache(hit bool) {
	obs, ok := b.stats.(CallObserver)
	if !ok {
		return
	}
	if hit {
		obs.RecordCacheHit(b.provider)
	} else {
		obs.RecordCacheMiss(b.provider)
	}
}

// HealthCheck issues a lightweight probe against the provider's test
// endpoint through the same policy instance as real calls, so a tripped
// circuit breaker manifests here too. It returns the HTTP status code and
// the probe duration.
func (b *base) HealthCheck(ctx context.Context) (int, time.Duration, error) {
	start := time.Now()
	status, err := resilience.Execute(ctx, b.policy, func(ctx context.Context) (int, error) {
		return b.client.Ping(ctx, b.healthPath, b.healthQuery)
	})
	return status, time.Since(start), err
}

// HealthEndpoint returns the probe path, used for reporting.
func (b *base) HealthEndpoint() string {
	return b.healthPath
}

// helpers shared by the provider-specific parsers

// firstResult extracts response["results"][0] as a map, the shape shared
// by the OpenCage and OpenCorporates APIs.
func firstResult(body map[string]any) (map[string]any, error) {
	results, ok := body["results"].([]any)
	if !ok || len(results) == 0 {
		return nil, verrors.WrapTransient(verrors.ErrParsingFailed, "service", "firstResult", "missing results array")
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil, verrors.WrapTransient(verrors.ErrParsingFailed, "service", "firstResult", "unexpected results element")
	}
	return first, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func intField(m map[string]any, key string) (int, bool) {
	// JSON numbers decode as float64
	if v, ok := m[key].(float64); ok {
		return int(v), true
	}
	return 0, false
}

func boolField(m map[string]any, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}
