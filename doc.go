// Package vuege is a resilient gateway for the external data providers used
// by the Vuege platform: address geocoding (OpenCage), contact-data
// validation (Abstract API), and company-data enrichment (OpenCorporates).
//
// Every outbound call is protected by a composed resilience stack (circuit
// breaker, rate limiter, retry, and an overall timeout) and memoized in a
// bounded TTL cache. Failures are never propagated to callers as errors:
// each operation resolves to a typed result whose status field reports the
// outcome. A monitoring subsystem probes each provider on a fixed interval
// and tracks live success/error statistics.
//
// Package layout:
//
//	cmd/vuege      - binary entry point and wiring
//	config         - YAML configuration with env overrides
//	errors         - classified error handling (transient/invalid/fatal)
//	pkg/retry      - context-aware retry with non-retryable markers
//	pkg/cache      - generic bounded TTL cache
//	resilience     - per-operation policy stack (breaker, limiter, retry, timeout)
//	apiclient      - outbound HTTP client adapter
//	service        - geocoding, validation, and enrichment services
//	monitor        - provider health tracking and the scheduled probe
//	metric         - Prometheus metrics registry
//	gateway/http   - inbound REST surface
package vuege
