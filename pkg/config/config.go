// Package config provides environment- and file-driven configuration for the
// solution builder core: pool sizing, timeout budgets, session retention, the
// context buffer budget, and the MCP server registry.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for tunable knobs. Each may be overridden by the
// corresponding environment variable.
const (
	DefaultPoolSize       = 10
	DefaultPoolMaxWait    = 30 * time.Second
	DefaultStartupTimeout = 60 * time.Second
	DefaultToolTimeout    = 60 * time.Second
	DefaultSessionIdleTTL = time.Hour
	DefaultContextBudget  = 32_000

	// DefaultSweepInterval is how often the session store scans for
	// idle-expired sessions.
	DefaultSweepInterval = time.Minute
)

// Per-mode wall-clock budgets.
const (
	DefaultBrainstormDeadline = 30 * time.Second
	DefaultAnalyzeDeadline    = 120 * time.Second
	DefaultGenerateDeadline   = 180 * time.Second
)

// Config holds the resolved runtime configuration.
type Config struct {
	// PoolSize is the target capacity N per pool (POOL_SIZE).
	PoolSize int

	// PoolMaxWait is the acquire deadline (POOL_MAX_WAIT_SECONDS).
	PoolMaxWait time.Duration

	// StartupTimeout is the MCP initialize handshake budget
	// (MCP_STARTUP_TIMEOUT_SECONDS).
	StartupTimeout time.Duration

	// ToolTimeout is the per-invocation budget (MCP_TOOL_TIMEOUT_SECONDS).
	ToolTimeout time.Duration

	// SessionIdleTTL controls session eviction (SESSION_IDLE_TTL_SECONDS).
	SessionIdleTTL time.Duration

	// SweepInterval is the session sweeper tick.
	SweepInterval time.Duration

	// ContextBudgetChars bounds a session's context buffer (CONTEXT_BUDGET_CHARS).
	ContextBudgetChars int

	// Servers is the configured MCP tool-server fleet.
	Servers *ServerRegistry

	// HTTPPort is the listen port for the API server (HTTP_PORT).
	HTTPPort string
}

// Load resolves configuration from the environment and, when
// SERVERS_CONFIG_PATH is set, from the YAML server list it points at.
func Load() (*Config, error) {
	cfg := &Config{
		PoolSize:           envInt("POOL_SIZE", DefaultPoolSize),
		PoolMaxWait:        envSeconds("POOL_MAX_WAIT_SECONDS", DefaultPoolMaxWait),
		StartupTimeout:     envSeconds("MCP_STARTUP_TIMEOUT_SECONDS", DefaultStartupTimeout),
		ToolTimeout:        envSeconds("MCP_TOOL_TIMEOUT_SECONDS", DefaultToolTimeout),
		SessionIdleTTL:     envSeconds("SESSION_IDLE_TTL_SECONDS", DefaultSessionIdleTTL),
		SweepInterval:      DefaultSweepInterval,
		ContextBudgetChars: envInt("CONTEXT_BUDGET_CHARS", DefaultContextBudget),
		HTTPPort:           envString("HTTP_PORT", "8080"),
	}

	if cfg.PoolSize < 0 {
		return nil, NewValidationError("pool", "pool", "POOL_SIZE",
			fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if cfg.ContextBudgetChars <= 0 {
		return nil, NewValidationError("session", "buffer", "CONTEXT_BUDGET_CHARS",
			fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}

	path := os.Getenv("SERVERS_CONFIG_PATH")
	if path == "" {
		// An empty fleet is valid for tests and for front-ends that inject
		// pools directly.
		registry, _ := NewServerRegistry(nil)
		cfg.Servers = registry
		return cfg, nil
	}

	registry, err := LoadServers(path)
	if err != nil {
		return nil, err
	}
	cfg.Servers = registry

	slog.Info("Configuration loaded",
		"pool_size", cfg.PoolSize,
		"pool_max_wait", cfg.PoolMaxWait,
		"servers", len(cfg.Servers.Keys()))
	return cfg, nil
}

// serversFile is the on-disk shape of the SERVERS list.
type serversFile struct {
	Servers []ServerConfig `yaml:"servers"`
}

// LoadServers reads the YAML server list, expanding ${VAR} references from
// the environment before parsing.
func LoadServers(path string) (*ServerRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{File: path, Err: ErrConfigNotFound}
		}
		return nil, &LoadError{File: path, Err: err}
	}

	var file serversFile
	if err := yaml.Unmarshal(ExpandEnv(data), &file); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
	}

	registry, err := NewServerRegistry(file.Servers)
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}
	return registry, nil
}

// ExpandEnv expands environment variables in YAML content using Go's standard
// library. Supports both ${VAR} and $VAR syntax. Missing variables expand to
// empty string; validation catches required fields that end up empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", v)
		return fallback
	}
	return n
}

// envSeconds reads a float number of seconds (POOL_MAX_WAIT_SECONDS may be
// fractional) and returns it as a duration.
func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		slog.Warn("Ignoring invalid duration environment value", "key", key, "value", v)
		return fallback
	}
	return time.Duration(f * float64(time.Second))
}
