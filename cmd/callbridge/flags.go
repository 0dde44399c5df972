package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	Simulate        bool
	Remote          bool
	Symbol          string
	Timeout         time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("CALLBRIDGE_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: CALLBRIDGE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("CALLBRIDGE_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: CALLBRIDGE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CALLBRIDGE_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides the config file (env: CALLBRIDGE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CALLBRIDGE_LOG_FORMAT", ""),
		"Log format: json, text; overrides the config file (env: CALLBRIDGE_LOG_FORMAT)")
	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("CALLBRIDGE_DEBUG", false),
		"Enable debug logging (env: CALLBRIDGE_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("CALLBRIDGE_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: CALLBRIDGE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.Simulate, "simulate", false,
		"Run the demo against an in-process simulated remote")
	fs.BoolVar(&cfg.Remote, "remote", false,
		"Serve the simulated remote on the configured transport instead of calling it")
	fs.StringVar(&cfg.Symbol, "symbol", "IBM", "Symbol the demo requests data for")
	fs.DurationVar(&cfg.Timeout, "timeout", 0,
		"Per-call timeout; 0 uses command.default_timeout from the config")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.LogLevel != "" && !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.Simulate && cfg.Remote {
		return fmt.Errorf("-simulate and -remote are mutually exclusive")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - synchronous calls over an asynchronous brokerage API

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Demo against an in-process simulated remote
  %s -simulate -log-format=text

  # Serve the simulated remote over NATS, then call it from another shell
  %s -config=callbridge.yaml -remote
  %s -config=callbridge.yaml -symbol=AAPL

  # Validate configuration only
  %s -config=callbridge.yaml -validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
