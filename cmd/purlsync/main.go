// Package main implements the standalone entry point for the purlsync
// agent synchronization client. The sync layer is primarily embedded as
// a library; this binary runs one client against a configured agent,
// exposing its Prometheus metrics and logging the adaptive poll state.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/config"
	"github.com/ShadeREPO/elizaOS-sub000/metric"
	"github.com/ShadeREPO/elizaOS-sub000/syncclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "purlsync"
)

func main() {
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
		printHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting purlsync (agent memory synchronization)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewMetricsRegistry()

	client, err := syncclient.New(cfg,
		syncclient.WithLogger(logger),
		syncclient.WithMetrics(registry.CoreMetrics()))
	if err != nil {
		return fmt.Errorf("create sync client: %w", err)
	}

	metricsSrv := startMetricsServer(cliCfg.MetricsPort, registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	statusTicker := time.NewTicker(cliCfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received")
			return shutdown(client, metricsSrv, runErr, cliCfg.ShutdownTimeout)
		case err := <-runErr:
			_ = shutdownMetrics(metricsSrv, cliCfg.ShutdownTimeout)
			_ = client.Close()
			return err
		case <-statusTicker.C:
			status := client.Status()
			slog.Info("sync status",
				"conversations", len(client.Conversations()),
				"consecutive_errors", status.ConsecutiveErrors,
				"breaker_open", status.CircuitBreakerOpen,
				"backoff_remaining", status.RateLimitBackoff,
				"total_requests", status.Performance.TotalRequests,
				"cache_hits", status.Performance.CacheHits,
				"avg_latency", status.Performance.AverageLatency)
		}
	}
}

// loadConfig reads the config file when one is given, otherwise builds
// the configuration from environment variables alone.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.FromEnv(), nil
	}
	return config.Load(path)
}

// startMetricsServer exposes the metrics handler, or returns nil when
// disabled.
func startMetricsServer(port int, registry *metric.MetricsRegistry) *http.Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return srv
}

// shutdown tears down the client and metrics server within the timeout.
func shutdown(client *syncclient.Client, metricsSrv *http.Server, runErr <-chan error, timeout time.Duration) error {
	deadline := time.After(timeout)

	if err := client.Close(); err != nil {
		slog.Warn("Client close failed", "error", err)
	}

	select {
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			slog.Warn("Run loop ended with error", "error", err)
		}
	case <-deadline:
		slog.Warn("Timed out waiting for run loop")
	}

	return shutdownMetrics(metricsSrv, timeout)
}

func shutdownMetrics(srv *http.Server, timeout time.Duration) error {
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
