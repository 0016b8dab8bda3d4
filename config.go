package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the server. All values are optional and
// fall back to the defaults below.
type Config struct {
	TransactionTimeout     time.Duration
	MonitorInterval        time.Duration
	MonitorEnabled         bool
	MaxPendingTransactions int
	MaxConnections         int
	PoolIdleTimeout        time.Duration
	StatementTimeout       time.Duration
	ConnectTimeout         time.Duration
	MaxResultRows          int
	LogLevel               string
	MetricsAddr            string
}

// DefaultConfig returns the configuration used when no environment overrides are set.
func DefaultConfig() Config {
	return Config{
		TransactionTimeout:     15 * time.Second,
		MonitorInterval:        5 * time.Second,
		MonitorEnabled:         true,
		MaxPendingTransactions: 10,
		MaxConnections:         20,
		PoolIdleTimeout:        30 * time.Second,
		StatementTimeout:       30 * time.Second,
		ConnectTimeout:         10 * time.Second,
		MaxResultRows:          10000,
		LogLevel:               "info",
	}
}

// LoadConfig reads MCP_* variables through lookup (os.LookupEnv in production).
func LoadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"MCP_TRANSACTION_TIMEOUT_MS", &cfg.TransactionTimeout},
		{"MCP_MONITOR_INTERVAL_MS", &cfg.MonitorInterval},
		{"MCP_POOL_IDLE_TIMEOUT_MS", &cfg.PoolIdleTimeout},
		{"MCP_STATEMENT_TIMEOUT_MS", &cfg.StatementTimeout},
		{"MCP_CONNECT_TIMEOUT_MS", &cfg.ConnectTimeout},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		ms, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || ms <= 0 {
			return cfg, &ConfigError{Key: d.key, Reason: "must be a positive number of milliseconds"}
		}
		*d.dst = time.Duration(ms) * time.Millisecond
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MCP_MAX_PENDING_TRANSACTIONS", &cfg.MaxPendingTransactions},
		{"MCP_MAX_CONNECTIONS", &cfg.MaxConnections},
		{"MCP_MAX_ROWS", &cfg.MaxResultRows},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return cfg, &ConfigError{Key: i.key, Reason: "must be a positive integer"}
		}
		*i.dst = n
	}

	if v, ok := lookup("MCP_MONITOR_ENABLED"); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return cfg, &ConfigError{Key: "MCP_MONITOR_ENABLED", Reason: "must be true or false"}
		}
		cfg.MonitorEnabled = enabled
	}

	if v, ok := lookup("MCP_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("MCP_METRICS_ADDR"); ok {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}

	return cfg, nil
}

// collectEndpoints picks endpoints from CLI args, then MCP_DATABASE_URLS,
// then the per-driver environment variables understood by each adapter.
func collectEndpoints(args []string, lookup func(string) (string, bool)) ([]string, error) {
	var endpoints []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			endpoints = append(endpoints, a)
		}
	}
	if len(endpoints) > 0 {
		return endpoints, nil
	}

	if v, ok := lookup("MCP_DATABASE_URLS"); ok {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				endpoints = append(endpoints, part)
			}
		}
	}
	if len(endpoints) > 0 {
		return endpoints, nil
	}

	for _, adapter := range adapters {
		dsn, ok, err := adapter.BuildDSN(lookup)
		if err != nil {
			return nil, err
		}
		if ok {
			endpoints = append(endpoints, dsn)
		}
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	return endpoints, nil
}

func osLookup(key string) (string, bool) { return os.LookupEnv(key) }
