package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	verrors "github.com/bondalen/vuege/errors"
)

// Status is the reported availability of a single provider.
type Status string

const (
	StatusUp       Status = "UP"
	StatusDown     Status = "DOWN"
	StatusDegraded Status = "DEGRADED"
	StatusUnknown  Status = "UNKNOWN"
)

// defaultProbeCacheTTL bounds how stale a served probe result may be
// before CheckHealth issues a fresh probe.
const defaultProbeCacheTTL = 30 * time.Second

// Prober is the health surface a provider service exposes. The domain
// services satisfy it implicitly.
type Prober interface {
	Provider() string
	HealthCheck(ctx context.Context) (int, time.Duration, error)
	HealthEndpoint() string
	CircuitState() string
}

// ProviderHealth is a point-in-time availability snapshot of one provider,
// combining the latest probe outcome with cumulative call statistics.
type ProviderHealth struct {
	Name               string    `json:"name"`
	Status             Status    `json:"status"`
	Endpoint           string    `json:"endpoint"`
	LastCheckedAt      time.Time `json:"last_checked_at"`
	LastHTTPStatus     int       `json:"last_http_status"`
	LastResponseTimeMs int64     `json:"last_response_time_ms"`
	SuccessCount       uint64    `json:"success_count"`
	ErrorCount         uint64    `json:"error_count"`
	SuccessRatePercent float64   `json:"success_rate_percent"`
	CircuitState       string    `json:"circuit_state"`
	ErrorMessage       string    `json:"error_message,omitempty"`
}

// Statistics is the cumulative call outcome summary for one provider.
type Statistics struct {
	SuccessCount       uint64  `json:"success_count"`
	ErrorCount         uint64  `json:"error_count"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

type providerState struct {
	prober    Prober
	successes uint64
	errors    uint64
	last      ProviderHealth
	probedAt  time.Time
}

// Tracker maintains per-provider health and call statistics in a
// thread-safe manner. It implements the services' stats recorder
// interface, so production calls feed the same counters the monitoring
// endpoints report.
type Tracker struct {
	mu            sync.RWMutex
	providers     map[string]*providerState
	order         []string
	logger        *slog.Logger
	probeCacheTTL time.Duration
	onHealth      func(ProviderHealth)
}

// NewTracker creates a tracker over the given providers. Every provider
// starts in the UNKNOWN state until its first probe.
func NewTracker(logger *slog.Logger, probers ...Prober) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		providers:     make(map[string]*providerState, len(probers)),
		order:         make([]string, 0, len(probers)),
		logger:        logger.With("component", "monitor"),
		probeCacheTTL: defaultProbeCacheTTL,
	}
	for _, p := range probers {
		t.Register(p)
	}
	return t
}

// Register adds a provider to the tracker. It allows the tracker to be
// constructed before the services that report into it. Re-registering a
// name replaces the prober but keeps accumulated counters.
func (t *Tracker) Register(p Prober) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := p.Provider()
	if state, ok := t.providers[name]; ok {
		state.prober = p
		return
	}
	t.providers[name] = &providerState{
		prober: p,
		last: ProviderHealth{
			Name:     name,
			Status:   StatusUnknown,
			Endpoint: p.HealthEndpoint(),
		},
	}
	t.order = append(t.order, name)
}

// OnHealthChange registers a listener invoked with every probe outcome,
// typically used to export provider health as a metric. Must be called
// before probing starts.
func (t *Tracker) OnHealthChange(fn func(ProviderHealth)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onHealth = fn
}

// RecordSuccess increments the success counter for a provider. Unknown
// provider names are ignored.
func (t *Tracker) RecordSuccess(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.providers[provider]; ok {
		state.successes++
	}
}

// RecordError increments the error counter for a provider. Unknown
// provider names are ignored.
func (t *Tracker) RecordError(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.providers[provider]; ok {
		state.errors++
	}
}

// CheckHealth reports the health of a named provider. A probe result
// younger than the cache TTL is served as-is; otherwise a fresh probe is
// issued.
func (t *Tracker) CheckHealth(ctx context.Context, name string) (ProviderHealth, error) {
	t.mu.RLock()
	state, ok := t.providers[name]
	if !ok {
		t.mu.RUnlock()
		return ProviderHealth{}, verrors.Wrap(
			fmt.Errorf("unknown provider %q", name), "monitor", "CheckHealth", "lookup provider")
	}
	fresh := time.Since(state.probedAt) < t.probeCacheTTL
	cached := t.snapshotLocked(state)
	t.mu.RUnlock()

	if fresh {
		return cached, nil
	}
	return t.probe(ctx, state), nil
}

// CheckAll probes every registered provider concurrently and returns the
// snapshots keyed by provider name. Cached results are bypassed; every
// provider is probed.
func (t *Tracker) CheckAll(ctx context.Context) map[string]ProviderHealth {
	t.mu.RLock()
	states := make([]*providerState, 0, len(t.order))
	for _, name := range t.order {
		states = append(states, t.providers[name])
	}
	t.mu.RUnlock()

	results := make([]ProviderHealth, len(states))
	var wg sync.WaitGroup
	for i, state := range states {
		wg.Add(1)
		go func(i int, state *providerState) {
			defer wg.Done()
			results[i] = t.probe(ctx, state)
		}(i, state)
	}
	wg.Wait()

	out := make(map[string]ProviderHealth, len(results))
	for _, health := range results {
		out[health.Name] = health
	}
	return out
}

// Snapshot returns the last known health of every provider without
// issuing any probes.
func (t *Tracker) Snapshot() map[string]ProviderHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]ProviderHealth, len(t.providers))
	for name, state := range t.providers {
		out[name] = t.snapshotLocked(state)
	}
	return out
}

// Statistics returns the cumulative call statistics per provider.
func (t *Tracker) Statistics() map[string]Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Statistics, len(t.providers))
	for name, state := range t.providers {
		out[name] = Statistics{
			SuccessCount:       state.successes,
			ErrorCount:         state.errors,
			SuccessRatePercent: successRate(state.successes, state.errors),
		}
	}
	return out
}

// ResetStatistics zeroes all success and error counters. Probe state is
// untouched.
func (t *Tracker) ResetStatistics() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, state := range t.providers {
		state.successes = 0
		state.errors = 0
	}
	t.logger.Info("Provider statistics reset")
}

// Providers returns the registered provider names in registration order.
func (t *Tracker) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// probe runs a single health check and stores the outcome.
func (t *Tracker) probe(ctx context.Context, state *providerState) ProviderHealth {
	httpStatus, elapsed, err := state.prober.HealthCheck(ctx)
	circuit := state.prober.CircuitState()

	health := ProviderHealth{
		Name:               state.prober.Provider(),
		Endpoint:           state.prober.HealthEndpoint(),
		LastCheckedAt:      time.Now(),
		LastHTTPStatus:     httpStatus,
		LastResponseTimeMs: elapsed.Milliseconds(),
		CircuitState:       circuit,
	}
	switch {
	case err != nil:
		health.Status = StatusDown
		health.ErrorMessage = err.Error()
	case circuit != "closed":
		// The probe went through but production traffic is being shed.
		health.Status = StatusDegraded
	default:
		health.Status = StatusUp
	}

	t.mu.Lock()
	// Probes count toward the same statistics as production calls.
	if err != nil {
		state.errors++
	} else {
		state.successes++
	}
	health.SuccessCount = state.successes
	health.ErrorCount = state.errors
	health.SuccessRatePercent = successRate(state.successes, state.errors)
	state.last = health
	state.probedAt = health.LastCheckedAt
	listener := t.onHealth
	t.mu.Unlock()

	if listener != nil {
		listener(health)
	}
	return health
}

// snapshotLocked copies the stored health with current counters. The
// caller must hold at least a read lock.
func (t *Tracker) snapshotLocked(state *providerState) ProviderHealth {
	health := state.last
	health.SuccessCount = state.successes
	health.ErrorCount = state.errors
	health.SuccessRatePercent = successRate(state.successes, state.errors)
	return health
}

// successRate is 100*successes/(successes+errors), or 0 when no calls
// have been recorded.
func successRate(successes, errors uint64) float64 {
	total := successes + errors
	if total == 0 {
		return 0
	}
	return 100 * float64(successes) / float64(total)
}
