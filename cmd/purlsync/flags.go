package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	MetricsPort     int
	StatusInterval  time.Duration
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("PURLSYNC_CONFIG", ""),
		"Path to configuration file, empty for env-only config (env: PURLSYNC_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("PURLSYNC_CONFIG", ""),
		"Path to configuration file, empty for env-only config (env: PURLSYNC_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("PURLSYNC_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: PURLSYNC_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("PURLSYNC_LOG_FORMAT", "json"),
		"Log format: json, text (env: PURLSYNC_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("PURLSYNC_DEBUG", false),
		"Enable debug mode (env: PURLSYNC_DEBUG)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("PURLSYNC_METRICS_PORT", 9090),
		"Prometheus metrics port, 0 to disable (env: PURLSYNC_METRICS_PORT)")

	flag.DurationVar(&cfg.StatusInterval, "status-interval",
		getEnvDuration("PURLSYNC_STATUS_INTERVAL", time.Minute),
		"Interval between sync status log lines (env: PURLSYNC_STATUS_INTERVAL)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("PURLSYNC_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: PURLSYNC_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printHelp

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port %d", cfg.MetricsPort)
	}
	if cfg.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be positive, got %v", cfg.StatusInterval)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", cfg.ShutdownTimeout)
	}

	return nil
}

func printHelp() {
	fmt.Printf(`%s - adaptive memory synchronization client for agent servers

Usage:
  %s [flags]

Flags:
`, appName, appName)
	flag.PrintDefaults()
	fmt.Printf(`
Configuration:
  Settings load from the YAML file given by -config, then PURLSYNC_*
  environment variables override individual values. Without -config the
  client runs on defaults plus environment overrides; at minimum
  PURLSYNC_AGENT_ID and PURLSYNC_API_BASE_URL must be set.
`)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
