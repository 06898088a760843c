package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProbeInterval is how often the scheduler refreshes provider
// health when no interval is configured.
const DefaultProbeInterval = 5 * time.Minute

// Scheduler periodically probes every provider registered with a Tracker.
// Cycles never overlap: a tick that arrives while the previous cycle is
// still in flight is skipped.
type Scheduler struct {
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger

	probing  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler for the tracker. A non-positive
// interval falls back to DefaultProbeInterval.
func NewScheduler(tracker *Tracker, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tracker:  tracker,
		interval: interval,
		logger:   logger.With("component", "monitor-scheduler"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the probe loop in a background goroutine. An initial
// probe cycle runs immediately so health is populated before the first
// interval elapses. The loop ends when Stop is called or ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop terminates the probe loop and waits for an in-flight cycle to
// finish. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.wg.Wait()

	s.logger.Info("Starting provider health probes", "interval", s.interval)
	s.launchCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping provider health probes", "reason", ctx.Err())
			return
		case <-s.stop:
			s.logger.Info("Stopping provider health probes")
			return
		case <-ticker.C:
			s.launchCycle(ctx)
		}
	}
}

// launchCycle starts one probe cycle in the background. A tick that
// arrives while the previous cycle is still in flight is skipped.
func (s *Scheduler) launchCycle(ctx context.Context) {
	if !s.probing.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping probe cycle, previous cycle still running")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.probeCycle(ctx)
	}()
}

// probeCycle probes all providers once and logs each outcome. The
// probing flag is cleared on return so the next tick can fire.
func (s *Scheduler) probeCycle(ctx context.Context) {
	defer s.probing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Probe cycle panicked", "panic", r)
		}
	}()

	for name, health := range s.tracker.CheckAll(ctx) {
		switch health.Status {
		case StatusUp:
			s.logger.Info("Provider healthy",
				"provider", name,
				"http_status", health.LastHTTPStatus,
				"response_time_ms", health.LastResponseTimeMs)
		case StatusDegraded:
			s.logger.Warn("Provider degraded",
				"provider", name,
				"circuit_state", health.CircuitState,
				"http_status", health.LastHTTPStatus)
		default:
			s.logger.Warn("Provider unavailable",
				"provider", name,
				"error", health.ErrorMessage)
		}
	}
}
