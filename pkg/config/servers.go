package config

import (
	"fmt"
	"sync"
	"time"
)

// TransportType identifies how an MCP server is reached.
type TransportType string

const (
	// TransportTypeStdio spawns the server as a child process and speaks
	// JSON-RPC over its stdin/stdout.
	TransportTypeStdio TransportType = "stdio"

	// TransportTypeHTTP talks to a remote server over streamable HTTP.
	TransportTypeHTTP TransportType = "http"
)

// ServerConfig is the identity and launch descriptor of one MCP tool-server.
// Two ServerConfigs are equal iff their keys are equal; pool identity is
// derived from the key alone.
type ServerConfig struct {
	// Key is the stable pool identity (e.g. "docs", "diagram", "cfn").
	Key string `yaml:"key"`

	// Transport selects stdio or http.
	Transport TransportType `yaml:"transport"`

	// For stdio transport.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// For http transport.
	URL         string `yaml:"url,omitempty"`
	BearerToken string `yaml:"bearer_token,omitempty"`
	VerifySSL   *bool  `yaml:"verify_ssl,omitempty"`

	// AllowPrefixes restricts, by fully-qualified tool name, which of this
	// server's advertised tools are offered to the oracle. Empty means all
	// tools are offered. The filter is not applied again at dispatch time.
	AllowPrefixes []string `yaml:"allow_prefixes,omitempty"`

	// DenySubstrings adds mutation blockers on top of the global sanitizer
	// denylist. They are merged into that single list, so they apply to the
	// tool names of every server, not only this one.
	DenySubstrings []string `yaml:"deny_substrings,omitempty"`

	// StartupTimeout bounds the initialize handshake. Zero means the
	// system-wide MCP_STARTUP_TIMEOUT_SECONDS default.
	StartupTimeout time.Duration `yaml:"startup_timeout,omitempty"`

	// ToolTimeout bounds a single tool invocation. Zero means the
	// system-wide MCP_TOOL_TIMEOUT_SECONDS default.
	ToolTimeout time.Duration `yaml:"tool_timeout,omitempty"`
}

// Fingerprint returns a string describing the launch identity of the config.
// Used to detect distinct configs that illegally share a key.
func (c *ServerConfig) Fingerprint() string {
	if c.Transport == TransportTypeHTTP {
		return fmt.Sprintf("http|%s", c.URL)
	}
	return fmt.Sprintf("stdio|%s|%v", c.Command, c.Args)
}

// Validate checks a single server entry for structural problems.
func (c *ServerConfig) Validate() error {
	if c.Key == "" {
		return NewValidationError("server", c.Key, "key", ErrMissingRequiredField)
	}
	switch c.Transport {
	case TransportTypeStdio:
		if c.Command == "" {
			return NewValidationError("server", c.Key, "command", ErrMissingRequiredField)
		}
	case TransportTypeHTTP:
		if c.URL == "" {
			return NewValidationError("server", c.Key, "url", ErrMissingRequiredField)
		}
	default:
		return NewValidationError("server", c.Key, "transport",
			fmt.Errorf("%w: %q", ErrInvalidValue, c.Transport))
	}
	return nil
}

// ServerRegistry stores MCP server configurations in memory with thread-safe access.
type ServerRegistry struct {
	servers map[string]*ServerConfig
	mu      sync.RWMutex
}

// NewServerRegistry creates a registry from a list of server entries.
// Duplicate keys are rejected.
func NewServerRegistry(servers []ServerConfig) (*ServerRegistry, error) {
	byKey := make(map[string]*ServerConfig, len(servers))
	for i := range servers {
		s := servers[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byKey[s.Key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateServerKey, s.Key)
		}
		byKey[s.Key] = &s
	}
	return &ServerRegistry{servers: byKey}, nil
}

// Get retrieves a server configuration by key (thread-safe).
func (r *ServerRegistry) Get(key string) (*ServerConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	server, exists := r.servers[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, key)
	}
	return server, nil
}

// Has checks if a server exists in the registry (thread-safe).
func (r *ServerRegistry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.servers[key]
	return exists
}

// Keys returns all registered server keys (thread-safe).
func (r *ServerRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.servers))
	for k := range r.servers {
		keys = append(keys, k)
	}
	return keys
}
