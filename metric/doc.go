// Package metric exposes the gateway's Prometheus metrics: per-provider
// call outcomes and latencies, circuit breaker state, provider health,
// cache effectiveness, and HTTP request counters.
//
// # Core Components
//
// Metrics: the instrument set. It also satisfies the services' stats
// recorder interface, so provider call outcomes can be fanned out to both
// the monitoring tracker and Prometheus.
//
// Registry: a prometheus.Registry wrapper that registers the instrument
// set plus Go runtime collectors, guards against duplicate registration,
// and serves the scrape endpoint.
//
// # Basic Usage
//
//	registry := metric.NewRegistry()
//	registry.Metrics.RecordCall("opencage", "success", 120*time.Millisecond)
//	mux.Handle("/metrics", registry.Handler())
package metric
