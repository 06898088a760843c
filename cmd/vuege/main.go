// Package main implements the entry point for the Vuege external API
// gateway. Vuege fronts third-party geocoding, validation, and enrichment
// APIs behind a uniform REST surface with circuit breaking, rate
// limiting, retries, caching, and provider health monitoring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bondalen/vuege/apiclient"
	"github.com/bondalen/vuege/config"
	gwhttp "github.com/bondalen/vuege/gateway/http"
	"github.com/bondalen/vuege/metric"
	"github.com/bondalen/vuege/monitor"
	"github.com/bondalen/vuege/pkg/cache"
	"github.com/bondalen/vuege/resilience"
	"github.com/bondalen/vuege/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "vuege"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags win over the config file for logging
	level := cliCfg.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	format := cliCfg.LogFormat
	if format == "" {
		format = cfg.Logging.Format
	}
	logger := setupLogger(level, format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting Vuege external API gateway",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx := context.Background()
	registry := metric.NewRegistry()

	tracker := monitor.NewTracker(logger)
	tracker.OnHealthChange(func(h monitor.ProviderHealth) {
		registry.Metrics.RecordProviderHealth(h.Name, string(h.Status))
	})
	stats := service.FanOut(tracker, registry.Metrics)

	providers, err := buildProviders(ctx, cfg, logger, registry, stats)
	if err != nil {
		return err
	}
	defer providers.close()

	tracker.Register(providers.geocoding)
	tracker.Register(providers.validation)
	tracker.Register(providers.enrichment)

	server, err := gwhttp.NewServer(cfg.Server, gwhttp.Dependencies{
		Geocoding:      providers.geocoding,
		Validation:     providers.validation,
		Enrichment:     providers.enrichment,
		Tracker:        tracker,
		Metrics:        registry.Metrics,
		MetricsHandler: registry.Handler(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create gateway server: %w", err)
	}

	return runWithSignalHandling(ctx, server, tracker, cfg, logger, cliCfg.ShutdownTimeout)
}

// providerStack bundles the three wired domain services and the caches
// that must be closed on shutdown.
type providerStack struct {
	geocoding  *service.Geocoding
	validation *service.Validation
	enrichment *service.Enrichment
	caches     []cache.Cache[*service.CallResult]
}

func (p *providerStack) close() {
	for _, c := range p.caches {
		if err := c.Close(); err != nil {
			slog.Warn("Cache close failed", "error", err)
		}
	}
}

// buildProviders wires one client, policy, and cache per provider.
func buildProviders(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	registry *metric.Registry,
	stats service.StatsRecorder,
) (*providerStack, error) {
	stack := &providerStack{}

	newDeps := func(name string, provider config.ProviderConfig) (service.Dependencies, error) {
		client, err := apiclient.New(name, apiclient.Config{
			BaseURL: provider.BaseURL,
			APIKey:  provider.APIKey,
		}, logger)
		if err != nil {
			return service.Dependencies{}, fmt.Errorf("create %s client: %w", name, err)
		}

		policy, err := resilience.New(name, cfg.Resilience, logger,
			resilience.WithStateChange(func(operation, _, to string) {
				registry.Metrics.RecordCircuitState(operation, to)
			}))
		if err != nil {
			return service.Dependencies{}, fmt.Errorf("create %s policy: %w", name, err)
		}

		resultCache, err := cache.New[*service.CallResult](ctx, cfg.Cache)
		if err != nil {
			return service.Dependencies{}, fmt.Errorf("create %s cache: %w", name, err)
		}
		stack.caches = append(stack.caches, resultCache)

		return service.Dependencies{
			Client: client,
			Policy: policy,
			Cache:  resultCache,
			Logger: logger,
			Stats:  stats,
		}, nil
	}

	geoDeps, err := newDeps("geocoding", cfg.Providers.OpenCage)
	if err != nil {
		return nil, err
	}
	stack.geocoding = service.NewGeocoding(geoDeps)

	valDeps, err := newDeps("validation", cfg.Providers.Abstract)
	if err != nil {
		return nil, err
	}
	stack.validation = service.NewValidation(valDeps)

	enrDeps, err := newDeps("enrichment", cfg.Providers.OpenCorporates)
	if err != nil {
		return nil, err
	}
	stack.enrichment = service.NewEnrichment(enrDeps)

	return stack, nil
}

// runWithSignalHandling starts the probe scheduler and gateway server,
// then blocks until a shutdown signal or server failure.
func runWithSignalHandling(
	ctx context.Context,
	server *gwhttp.Server,
	tracker *monitor.Tracker,
	cfg *config.Config,
	logger *slog.Logger,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	scheduler := monitor.NewScheduler(tracker, cfg.Monitoring.ProbeInterval, logger)
	scheduler.Start(signalCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	slog.Info("Vuege started", "addr", cfg.Server.Addr())

	select {
	case err := <-serverErr:
		scheduler.Stop()
		if err != nil {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Vuege shutdown complete")
	return nil
}
