package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// circuitStateValues maps circuit breaker state names to gauge values.
var circuitStateValues = map[string]float64{
	"closed":    0,
	"open":      1,
	"half-open": 2,
}

// healthStateValues maps provider health states to gauge values.
var healthStateValues = map[string]float64{
	"UNKNOWN":  -1,
	"DOWN":     0,
	"UP":       1,
	"DEGRADED": 2,
}

// Metrics contains all gateway-level instruments.
type Metrics struct {
	CallsTotal          *prometheus.CounterVec
	CallDuration        *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
	ProviderHealth      *prometheus.GaugeVec
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all gateway instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vuege",
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Total number of external provider calls",
			},
			[]string{"provider", "outcome"},
		),

		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vuege",
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "External provider call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vuege",
				Subsystem: "provider",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),

		ProviderHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vuege",
				Subsystem: "provider",
				Name:      "health_status",
				Help:      "Provider health (-1=unknown, 0=down, 1=up, 2=degraded)",
			},
			[]string{"provider"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vuege",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of result cache hits",
			},
			[]string{"provider"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vuege",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of result cache misses",
			},
			[]string{"provider"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vuege",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of gateway HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vuege",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Gateway HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordCall increments the call counter and observes the call duration.
func (m *Metrics) RecordCall(provider, outcome string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(provider, outcome).Inc()
	m.CallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSuccess increments the success outcome counter for a provider.
func (m *Metrics) RecordSuccess(provider string) {
	m.CallsTotal.WithLabelValues(provider, "success").Inc()
}

// RecordError increments the error outcome counter for a provider.
func (m *Metrics) RecordError(provider string) {
	m.CallsTotal.WithLabelValues(provider, "error").Inc()
}

// RecordCircuitState updates the breaker state gauge. Unrecognized state
// names are ignored.
func (m *Metrics) RecordCircuitState(provider, state string) {
	if value, ok := circuitStateValues[state]; ok {
		m.CircuitBreakerState.WithLabelValues(provider).Set(value)
	}
}

// RecordProviderHealth updates the health gauge. Unrecognized states are
// ignored.
func (m *Metrics) RecordProviderHealth(provider, status string) {
	if value, ok := healthStateValues[status]; ok {
		m.ProviderHealth.WithLabelValues(provider).Set(value)
	}
}

// RecordCacheHit increments the cache hit counter for a provider.
func (m *Metrics) RecordCacheHit(provider string) {
	m.CacheHits.WithLabelValues(provider).Inc()
}

// RecordCacheMiss increments the cache miss counter for a provider.
func (m *Metrics) RecordCacheMiss(provider string) {
	m.CacheMisses.WithLabelValues(provider).Inc()
}

// RecordHTTPRequest increments the request counter and observes the
// request duration for one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusLabel buckets HTTP status codes into class labels to bound
// cardinality.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
