package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
)

// NewInjectedClient wraps a pre-connected MCP SDK session as a PooledClient.
// Intended for test infrastructure that wires in-memory MCP servers without
// going through the real Dial transport-creation path.
func NewInjectedClient(cfg *config.ServerConfig, sdkClient *mcpsdk.Client, session *mcpsdk.ClientSession, toolTimeout time.Duration) *PooledClient {
	if toolTimeout == 0 {
		toolTimeout = config.DefaultToolTimeout
	}
	c := &PooledClient{
		key:         cfg.Key,
		cfg:         cfg,
		client:      sdkClient,
		session:     session,
		toolTimeout: toolTimeout,
		createdAt:   time.Now(),
		logger:      slog.Default(),
	}
	c.state.Store(int32(StateIdle))
	return c
}

// InMemoryServer describes one scripted test server: toolName → handler.
type InMemoryServer map[string]mcpsdk.ToolHandler

// emptySchema is a minimal valid JSON Schema for test tools.
var emptySchema = json.RawMessage(`{"type":"object"}`)

// NewInMemoryDialer returns a dial function that connects each config key to
// a fresh in-memory MCP server built from the scripted handlers. Every dial
// boots its own server instance, matching the process-per-client semantics of
// stdio transports.
//
// The returned function has the same shape as Dial and plugs into a pool as
// its dialer.
func NewInMemoryDialer(servers map[string]InMemoryServer) func(ctx context.Context, cfg *config.ServerConfig, startupDefault, toolDefault time.Duration) (*PooledClient, error) {
	return func(ctx context.Context, cfg *config.ServerConfig, _, toolDefault time.Duration) (*PooledClient, error) {
		tools, ok := servers[cfg.Key]
		if !ok {
			return nil, ErrClientBroken
		}

		server := mcpsdk.NewServer(&mcpsdk.Implementation{
			Name: cfg.Key, Version: "test",
		}, nil)
		for toolName, handler := range tools {
			server.AddTool(&mcpsdk.Tool{
				Name:        toolName,
				Description: "test tool: " + toolName,
				InputSchema: emptySchema,
			}, handler)
		}

		clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

		serverCtx, cancel := context.WithCancel(context.Background())
		go func() {
			_ = server.Run(serverCtx, serverTransport)
		}()

		sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
			Name: "solutionbuilder-test", Version: "test",
		}, nil)
		session, err := sdkClient.Connect(ctx, clientTransport, nil)
		if err != nil {
			cancel()
			return nil, err
		}

		c := NewInjectedClient(cfg, sdkClient, session, toolDefault)
		c.onClose = cancel
		return c, nil
	}
}
