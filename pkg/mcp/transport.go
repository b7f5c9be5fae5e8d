package mcp

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
)

// createTransport builds an MCP SDK transport from a server config.
// For stdio servers the returned ring buffer captures the child's stderr;
// it is nil for http servers.
func createTransport(cfg *config.ServerConfig) (mcpsdk.Transport, *RingBuffer, error) {
	switch cfg.Transport {
	case config.TransportTypeStdio:
		return createStdioTransport(cfg)
	case config.TransportTypeHTTP:
		t, err := createHTTPTransport(cfg)
		return t, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}
}

func createStdioTransport(cfg *config.ServerConfig) (*mcpsdk.CommandTransport, *RingBuffer, error) {
	if cfg.Command == "" {
		return nil, nil, fmt.Errorf("stdio transport requires command")
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)

	// Inherit parent environment + config overrides.
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	// The tail of stderr is kept for diagnostics when the server misbehaves.
	ring := NewRingBuffer(stderrRingSize)
	cmd.Stderr = ring

	return &mcpsdk.CommandTransport{Command: cmd}, ring, nil
}

func createHTTPTransport(cfg *config.ServerConfig) (*mcpsdk.StreamableClientTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("HTTP transport requires url")
	}
	transport := &mcpsdk.StreamableClientTransport{
		Endpoint: cfg.URL,
	}
	if cfg.BearerToken != "" || cfg.VerifySSL != nil || cfg.ToolTimeout > 0 {
		transport.HTTPClient = buildHTTPClient(cfg)
	}
	return transport, nil
}

// buildHTTPClient creates an http.Client with auth, TLS, and timeout settings.
func buildHTTPClient(cfg *config.ServerConfig) *http.Client {
	httpTransport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.VerifySSL != nil && !*cfg.VerifySSL {
		httpTransport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,             //nolint:gosec // user-configured
			MinVersion:         tls.VersionTLS12, // prevent protocol downgrade even in relaxed mode
		}
	}

	client := &http.Client{
		Transport: httpTransport,
	}

	if cfg.BearerToken != "" {
		client.Transport = &bearerTokenTransport{
			base:  client.Transport,
			token: cfg.BearerToken,
		}
	}

	if cfg.ToolTimeout > 0 {
		// Leave headroom over the per-call context deadline so cancellation
		// is attributed to the call, not the shared client.
		client.Timeout = cfg.ToolTimeout + 5*time.Second
	}

	return client
}

// bearerTokenTransport wraps an http.RoundTripper to add Authorization headers.
type bearerTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}
