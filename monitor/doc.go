// Package monitor tracks the availability of the external API providers
// behind the gateway with thread-safe call statistics and periodic health
// probes.
//
// # Health States
//
// Each provider reports one of four states:
//   - UP: the last probe succeeded
//   - DEGRADED: the probe succeeded but the provider's circuit breaker is
//     open or half-open, so production traffic is failing
//   - DOWN: the last probe failed
//   - UNKNOWN: the provider has not been probed yet
//
// # Core Components
//
// Tracker: thread-safe registry of providers that accumulates
// success/error counters from production calls and holds the latest probe
// outcome per provider. Probe results are served from a short-lived cache
// so that polling the health endpoint does not hammer the upstream APIs.
//
// Scheduler: periodic probe loop that refreshes every provider's health
// on a fixed interval. A tick is skipped when the previous probe cycle is
// still in flight.
//
// # Basic Usage
//
//	tracker := monitor.NewTracker(logger, geocoding, validation, enrichment)
//
//	// Production calls feed the counters through RecordSuccess and
//	// RecordError; probes feed the same counters.
//	health, err := tracker.CheckHealth(ctx, "geocoding")
//	stats := tracker.Statistics()
//
//	scheduler := monitor.NewScheduler(tracker, 5*time.Minute, logger)
//	scheduler.Start(ctx)
//	defer scheduler.Stop()
package monitor
